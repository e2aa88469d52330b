package llms

import (
	"context"
	"strconv"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/utils"
)

func newService(t *testing.T, mutate func(*Config)) *AnthropicService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewAnthropicService(cfg, nil)
	require.NoError(t, err)
	return svc
}

func TestNewAnthropicServiceRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicService(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}

func TestModelRouting(t *testing.T) {
	svc := newService(t, func(cfg *Config) {
		cfg.QualityModel = "claude-opus-override"
	})

	assert.Equal(t, anthropic.Model(DefaultConfig().FastModel), svc.modelFor(core.QualityFast))
	assert.Equal(t, anthropic.Model("claude-opus-override"), svc.modelFor(core.QualityQuality))
	assert.Equal(t, svc.modelFor(core.QualityBalanced), svc.modelFor(core.Quality("unknown")),
		"unknown tiers fall back to balanced")
}

func TestCapabilityPreambles(t *testing.T) {
	for _, c := range []core.Capability{
		core.CapabilityExtraction,
		core.CapabilityReasoning,
		core.CapabilitySynthesis,
		core.CapabilityValidation,
	} {
		blocks := systemBlocks(c)
		require.Len(t, blocks, 1, "capability %s", c)
		assert.NotEmpty(t, blocks[0].Text)
	}
	assert.Empty(t, systemBlocks(core.Capability("unknown")))
}

func TestMapAPIError(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		status int
		want   errors.ErrorCode
	}{
		{"rate limited", 429, errors.ServiceUnavailable},
		{"server error", 500, errors.ServiceUnavailable},
		{"overloaded", 529, errors.ServiceUnavailable},
		{"bad request", 400, errors.GenerationFailed},
		{"unauthorized", 401, errors.GenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.mapAPIError(ctx, &anthropic.Error{StatusCode: tt.status}, "model")
			assert.Equal(t, tt.want, errors.CodeOf(err))
		})
	}
}

func TestMapContextErrors(t *testing.T) {
	assert.Equal(t, errors.Timeout, errors.CodeOf(mapContextError(context.DeadlineExceeded)))
	assert.Equal(t, errors.Canceled, errors.CodeOf(mapContextError(context.Canceled)))
	assert.NoError(t, mapContextError(nil))
}

func TestStubDeterminism(t *testing.T) {
	stub := NewStubService()
	ctx := context.Background()

	a, err := stub.Generate(ctx, "Break the following research question into parts: X")
	require.NoError(t, err)
	b, err := stub.Generate(ctx, "Break the following research question into parts: X")
	require.NoError(t, err)
	assert.Equal(t, a.Content, b.Content)
}

func TestStubDecomposition(t *testing.T) {
	stub := NewStubService()
	resp, err := stub.Generate(context.Background(), "Break the following research question into parts: X")
	require.NoError(t, err)

	items := utils.ParseNumberedList(resp.Content)
	assert.Len(t, items, 3)
}

func TestStubPrior(t *testing.T) {
	stub := NewStubService()
	resp, err := stub.Generate(context.Background(), "You are triaging research directions. Q?")
	require.NoError(t, err)

	prior, err := strconv.ParseFloat(resp.Content, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prior, 0.0)
	assert.LessOrEqual(t, prior, 1.0)
}

func TestStubExtraction(t *testing.T) {
	stub := NewStubService()
	resp, err := stub.Generate(context.Background(), "Extract factual claims from the text below.")
	require.NoError(t, err)

	triples, err := utils.ParseJSONArray(resp.Content)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.NotEmpty(t, triples[0]["subject"])
	assert.NotEmpty(t, triples[0]["relation"])
}

func TestStubVariant(t *testing.T) {
	stub := NewStubService()
	resp, err := stub.Generate(context.Background(), "Answer the question below with reasoning steps.")
	require.NoError(t, err)

	parsed, err := utils.ParseJSONResponse(resp.Content)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed["steps"])
	assert.NotEmpty(t, parsed["conclusion"])
}

func TestStubAxiomVerdict(t *testing.T) {
	stub := NewStubService()
	resp, err := stub.Generate(context.Background(), "You are evaluating content against a value rule.")
	require.NoError(t, err)

	parsed, err := utils.ParseJSONResponse(resp.Content)
	require.NoError(t, err)
	assert.Contains(t, parsed, "score")
	assert.Contains(t, parsed, "violated")
}

func TestStubUsage(t *testing.T) {
	stub := NewStubService()
	resp, err := stub.Generate(context.Background(), "a b c")
	require.NoError(t, err)

	require.NotNil(t, resp.Usage)
	assert.Equal(t, 3, resp.Usage.PromptTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	assert.Equal(t, "stub", resp.ModelID)
}

func TestStubHonorsCancellation(t *testing.T) {
	stub := NewStubService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stub.Generate(ctx, "anything")
	require.Error(t, err)
	assert.Equal(t, errors.Canceled, errors.CodeOf(err))
}
