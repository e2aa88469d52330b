// Package llms provides GenerationService implementations: an Anthropic
// adapter for real runs and a deterministic offline stub for demos and tests.
package llms

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/logging"
)

// Config selects models per quality tier and bounds request rate.
type Config struct {
	// APIKey falls back to ANTHROPIC_API_KEY when empty.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Model overrides per quality tier. Empty entries use the defaults.
	FastModel     string `yaml:"fast_model"`
	BalancedModel string `yaml:"balanced_model"`
	QualityModel  string `yaml:"quality_model"`

	// RequestsPerMinute throttles outgoing calls. Zero disables throttling.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"min=0"`
}

// DefaultConfig routes the three quality tiers to haiku, sonnet, and opus.
func DefaultConfig() Config {
	return Config{
		FastModel:         string(anthropic.ModelClaude_3_Haiku_20240307),
		BalancedModel:     string(anthropic.ModelClaudeSonnet4_5_20250929),
		QualityModel:      string(anthropic.ModelClaudeOpus4_1_20250805),
		RequestsPerMinute: 60,
	}
}

// capabilityPreambles prime the model for its role before the caller's
// prompt. Extraction and validation want literal-minded output; reasoning
// and synthesis want deliberate chains.
var capabilityPreambles = map[core.Capability]string{
	core.CapabilityExtraction: "You extract structured data exactly as instructed. Output only the requested format with no commentary.",
	core.CapabilityReasoning:  "You are a careful analyst. Reason step by step and state your conclusions plainly.",
	core.CapabilitySynthesis:  "You synthesize findings into clear, well-organized prose.",
	core.CapabilityValidation: "You check claims against rules. Answer exactly in the requested verdict format.",
}

// AnthropicService is the production GenerationService backed by the
// Anthropic Messages API.
type AnthropicService struct {
	client  anthropic.Client
	models  map[core.Quality]anthropic.Model
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewAnthropicService builds the adapter. It fails fast on a missing API key
// so misconfiguration surfaces at startup, not mid-run.
func NewAnthropicService(cfg Config, logger *logging.Logger) (*AnthropicService, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "Anthropic API key is required")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}

	defaults := DefaultConfig()
	models := map[core.Quality]anthropic.Model{
		core.QualityFast:     modelOrDefault(cfg.FastModel, defaults.FastModel),
		core.QualityBalanced: modelOrDefault(cfg.BalancedModel, defaults.BalancedModel),
		core.QualityQuality:  modelOrDefault(cfg.QualityModel, defaults.QualityModel),
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &AnthropicService{
		client:  anthropic.NewClient(clientOpts...),
		models:  models,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func modelOrDefault(model, fallback string) anthropic.Model {
	if model == "" {
		return anthropic.Model(fallback)
	}
	return anthropic.Model(model)
}

// Generate implements core.GenerationService.
func (s *AnthropicService) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.Response, error) {
	options := core.NewGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, mapContextError(err)
		}
	}

	model := s.modelFor(options.Quality)
	started := time.Now()

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       model,
		System:      systemBlocks(options.Capability),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   int64(options.MaxTokens),
		Temperature: anthropic.Float(options.Temperature),
	})
	if err != nil {
		return nil, s.mapAPIError(ctx, err, model)
	}
	if message == nil || len(message.Content) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.GenerationFailed, "empty response from Anthropic API"),
			errors.Fields{"model": string(model)},
		)
	}

	var content string
	if block := message.Content[0]; block.Type == "text" {
		content = block.Text
	}

	usage := &core.TokenUsage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	s.logger.Debug(ctx, "Anthropic %s: %d prompt + %d completion tokens",
		model, usage.PromptTokens, usage.CompletionTokens)

	return &core.Response{
		Content: content,
		Usage:   usage,
		ModelID: string(model),
		Latency: time.Since(started),
	}, nil
}

func (s *AnthropicService) modelFor(q core.Quality) anthropic.Model {
	if m, ok := s.models[q]; ok {
		return m
	}
	return s.models[core.QualityBalanced]
}

func systemBlocks(c core.Capability) []anthropic.TextBlockParam {
	preamble, ok := capabilityPreambles[c]
	if !ok {
		return nil
	}
	return []anthropic.TextBlockParam{{Text: preamble}}
}

// mapAPIError translates SDK failures into this module's error taxonomy so
// callers can apply their neutral-default policies by code.
func (s *AnthropicService) mapAPIError(ctx context.Context, err error, model anthropic.Model) error {
	if ctxErr := mapContextError(err); ctxErr != nil {
		return ctxErr
	}

	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		s.logger.Error(ctx, "Anthropic API error: status %d", apiErr.StatusCode)
		code := errors.GenerationFailed
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			code = errors.ServiceUnavailable
		}
		return errors.WithFields(
			errors.Wrap(err, code, "Anthropic API request failed"),
			errors.Fields{"model": string(model), "status": apiErr.StatusCode},
		)
	}

	return errors.WithFields(
		errors.Wrap(err, errors.ServiceUnavailable, "Anthropic API unreachable"),
		errors.Fields{"model": string(model)},
	)
}

func mapContextError(err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(err, errors.Timeout, "generation timed out")
	case stderrors.Is(err, context.Canceled):
		return errors.Wrap(err, errors.Canceled, "generation canceled")
	default:
		return nil
	}
}

var _ core.GenerationService = (*AnthropicService)(nil)
