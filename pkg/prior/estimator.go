// Package prior estimates branch promise without expanding a node. One
// lightweight generation call with a strict number-only output constraint
// approximates how promising a question is given the path that led to it,
// at a fraction of the cost of a full expansion.
package prior

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
)

const neutralPrior = 0.5

const estimatePrompt = `You are triaging research directions. Given the reasoning path so far and a candidate question, estimate how promising the question is for answering the root inquiry.

Path so far:
%s

Candidate question:
%s

Respond with ONLY a single number between 0.0 and 1.0. No words, no explanation.`

// Estimator issues fast prior estimates with per-node memoization. Estimates
// must stay well under the cost of an expansion call, so the timeout is short
// and every failure collapses to a neutral 0.5.
type Estimator struct {
	service core.GenerationService
	state   *core.RunState
	timeout time.Duration

	mu    sync.RWMutex
	cache map[int]float64
}

// NewEstimator creates an estimator. A non-positive timeout defaults to 5s.
func NewEstimator(service core.GenerationService, state *core.RunState, timeout time.Duration) *Estimator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Estimator{
		service: service,
		state:   state,
		timeout: timeout,
		cache:   make(map[int]float64),
	}
}

// Estimate returns the prior for a node, computing it once and serving the
// memoized value afterwards. Failures return neutral without caching so a
// transient outage is not sticky.
func (e *Estimator) Estimate(ctx context.Context, nodeID int, pathSummary, question string) float64 {
	e.mu.RLock()
	cached, ok := e.cache[nodeID]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	prior, ok := e.estimate(ctx, pathSummary, question)
	if !ok {
		return neutralPrior
	}

	e.mu.Lock()
	e.cache[nodeID] = prior
	e.mu.Unlock()
	return prior
}

// Pin fixes a node's prior, used for escalated research nodes that must sort
// ahead of ordinary siblings.
func (e *Estimator) Pin(nodeID int, prior float64) {
	e.mu.Lock()
	e.cache[nodeID] = prior
	e.mu.Unlock()
}

func (e *Estimator) estimate(ctx context.Context, pathSummary, question string) (float64, bool) {
	if e.service == nil {
		return 0, false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if pathSummary == "" {
		pathSummary = "(root)"
	}

	resp, err := e.service.Generate(callCtx,
		fmt.Sprintf(estimatePrompt, pathSummary, question),
		core.WithCapability(core.CapabilityReasoning),
		core.WithQuality(core.QualityFast),
		core.WithMaxTokens(16),
	)
	if err != nil {
		if e.state != nil && errors.CodeOf(err) == errors.Timeout {
			e.state.RecordTimeout()
		}
		return 0, false
	}

	prior, err := parseNumber(resp.Content)
	if err != nil {
		if e.state != nil {
			e.state.RecordParseFailure()
		}
		return 0, false
	}
	return prior, true
}

// parseNumber enforces the number-only contract: one token, parseable as a
// float in [0,1]. Anything else is a parse failure.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if len(strings.Fields(s)) != 1 {
		return 0, errors.New(errors.ParseFailure, "expected a single number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ParseFailure, "expected a number")
	}
	if v < 0 || v > 1 {
		return 0, errors.WithFields(
			errors.New(errors.ParseFailure, "prior out of range"),
			errors.Fields{"value": v},
		)
	}
	return v, nil
}
