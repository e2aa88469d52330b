// Package testutil provides shared fakes for exercising components against a
// scripted generation service without network access.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
)

// Call records one Generate invocation.
type Call struct {
	Prompt  string
	Options core.GenerateOptions
}

type step struct {
	content string
	err     error
}

type rule struct {
	substr  string
	content string
	err     error
}

// ScriptedService is a core.GenerationService whose responses are scripted by
// the test: queued steps are consumed first, then prompt-substring rules,
// then the default response.
type ScriptedService struct {
	mu    sync.Mutex
	queue []step
	rules []rule
	calls []Call

	// DefaultContent is returned when nothing else matches.
	DefaultContent string

	// Delay simulates latency before each response, honoring ctx cancellation.
	Delay time.Duration

	// FixedUsage overrides the estimated token usage when set.
	FixedUsage *core.TokenUsage
}

// NewScriptedService creates a service with an "OK" default response.
func NewScriptedService() *ScriptedService {
	return &ScriptedService{DefaultContent: "OK"}
}

// Queue enqueues a response consumed in FIFO order.
func (s *ScriptedService) Queue(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, step{content: content})
}

// QueueError enqueues a failure consumed in FIFO order.
func (s *ScriptedService) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, step{err: err})
}

// Respond registers a response for any prompt containing substr.
func (s *ScriptedService) Respond(substr, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{substr: substr, content: content})
}

// RespondError registers a failure for any prompt containing substr.
func (s *ScriptedService) RespondError(substr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{substr: substr, err: err})
}

// Calls returns a copy of all recorded invocations.
func (s *ScriptedService) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of Generate invocations so far.
func (s *ScriptedService) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *ScriptedService) next(prompt string) step {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		head := s.queue[0]
		s.queue = s.queue[1:]
		return head
	}
	// Most recent registration wins, so tests can override a base script.
	for i := len(s.rules) - 1; i >= 0; i-- {
		if r := s.rules[i]; strings.Contains(prompt, r.substr) {
			return step{content: r.content, err: r.err}
		}
	}
	return step{content: s.DefaultContent}
}

// Generate implements core.GenerationService.
func (s *ScriptedService) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.Response, error) {
	options := core.NewGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Prompt: prompt, Options: *options})
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, errors.CheckContext(ctx, "scripted generation")
		}
	}
	if err := errors.CheckContext(ctx, "scripted generation"); err != nil {
		return nil, err
	}

	chosen := s.next(prompt)
	if chosen.err != nil {
		return nil, chosen.err
	}

	usage := s.FixedUsage
	if usage == nil {
		usage = &core.TokenUsage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(chosen.content) / 4,
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &core.Response{
		Content: chosen.content,
		Usage:   usage,
		ModelID: "scripted",
	}, nil
}

var _ core.GenerationService = (*ScriptedService)(nil)

// FailingService always fails with the given error.
type FailingService struct {
	Err error
}

func (f *FailingService) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.Response, error) {
	err := f.Err
	if err == nil {
		err = errors.New(errors.ServiceUnavailable, "generation service unavailable")
	}
	return nil, err
}

var _ core.GenerationService = (*FailingService)(nil)
