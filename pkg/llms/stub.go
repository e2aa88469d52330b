package llms

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/pondera-ai/pondera/pkg/core"
)

// StubService is a deterministic offline GenerationService. It recognizes the
// prompt shapes the deliberation loop produces and answers each with
// plausible canned content, so demos and integration tests run without an API
// key. Responses are a pure function of the prompt.
type StubService struct {
	// Latency is reported on every response. Zero means instant.
	Latency time.Duration
}

// NewStubService creates an offline service.
func NewStubService() *StubService {
	return &StubService{}
}

var stubTopics = []string{
	"historical growth rates",
	"supply chain constraints",
	"regulatory outlook",
	"cost trajectories",
	"regional adoption patterns",
}

var stubConclusions = []string{
	"the evidence points to steady growth",
	"the trend is likely to continue near-term",
	"the outcome depends on policy support",
	"current capacity falls short of projected demand",
}

// Generate implements core.GenerationService.
func (s *StubService) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextError(err)
	}

	content := s.respond(prompt)
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(content))

	return &core.Response{
		Content: content,
		Usage: &core.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		ModelID: "stub",
		Latency: s.Latency,
	}, nil
}

func (s *StubService) respond(prompt string) string {
	seed := hashPrompt(prompt)

	switch {
	case strings.Contains(prompt, "Break the following research question"):
		a := stubTopics[seed%uint32(len(stubTopics))]
		b := stubTopics[(seed+1)%uint32(len(stubTopics))]
		c := stubTopics[(seed+2)%uint32(len(stubTopics))]
		return fmt.Sprintf("1. What do %s indicate?\n2. What do %s suggest?\n3. How does the %s factor in?", a, b, c)

	case strings.Contains(prompt, "triaging research directions"):
		// Spread priors across [0.3, 0.8] so selection has something to rank.
		return fmt.Sprintf("%.2f", 0.3+float64(seed%6)*0.1)

	case strings.Contains(prompt, "Extract factual claims"):
		topic := stubTopics[seed%uint32(len(stubTopics))]
		return fmt.Sprintf(`[{"subject": "%s", "relation": "grew", "object": "%d%% year over year", "confidence": 0.%d}]`,
			topic, 5+seed%20, 5+seed%4)

	case strings.Contains(prompt, "evaluating content against a value rule"):
		return `{"score": 0.9, "violated": false, "explanation": "No rule violations detected."}`

	case strings.Contains(prompt, `"score"`):
		return fmt.Sprintf(`{"score": 0.%d}`, 5+seed%4)

	default:
		conclusion := stubConclusions[seed%uint32(len(stubConclusions))]
		return fmt.Sprintf(
			`{"steps": ["Reported figures show %d%% growth.", "Independent sources broadly agree."], "conclusion": "Overall, %s.", "confidence": 0.%d}`,
			5+seed%20, conclusion, 6+seed%3)
	}
}

func hashPrompt(prompt string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return h.Sum32()
}

var _ core.GenerationService = (*StubService)(nil)
