package core

import (
	"context"
	"time"
)

// Capability describes what kind of work a generation call performs. The
// service may route different capabilities to different models or prompt
// preambles.
type Capability string

const (
	CapabilityExtraction Capability = "extraction"
	CapabilityReasoning  Capability = "reasoning"
	CapabilitySynthesis  Capability = "synthesis"
	CapabilityValidation Capability = "validation"
)

// Quality selects the cost/latency tier for a generation call.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityQuality  Quality = "quality"
)

// TokenUsage tracks token consumption for a single generation call.
// One budget unit corresponds to one token-equivalent.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a generation call.
type Response struct {
	Content string
	Usage   *TokenUsage
	ModelID string
	Latency time.Duration
}

// GenerationService is the opaque language-model boundary consumed by every
// component in this module. Implementations must honor context cancellation;
// callers absorb Timeout/ServiceUnavailable failures locally via their
// documented neutral defaults.
type GenerationService interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error)
}

// GenerateOption represents an option for a generation call.
type GenerateOption func(*GenerateOptions)

// GenerateOptions holds configuration for a generation call.
type GenerateOptions struct {
	Capability  Capability
	Quality     Quality
	MaxTokens   int
	Temperature float64
}

// NewGenerateOptions creates a new GenerateOptions with default values.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		Capability:  CapabilityReasoning,
		Quality:     QualityBalanced,
		MaxTokens:   4096,
		Temperature: 0.5,
	}
}

// WithCapability sets the capability routing for the call.
func WithCapability(c Capability) GenerateOption {
	return func(o *GenerateOptions) {
		o.Capability = c
	}
}

// WithQuality sets the cost/latency tier for the call.
func WithQuality(q Quality) GenerateOption {
	return func(o *GenerateOptions) {
		o.Quality = q
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}
