package search

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/pondera-ai/pondera/pkg/axiom"
	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/utils"
)

// strategies are the reasoning framings used to diversify variants. With more
// variants than framings the list cycles.
var strategies = []string{"deductive", "evidence-based", "first-principles"}

var strategyFraming = map[string]string{
	"deductive":        "Reason deductively: derive the answer step by step from established premises.",
	"evidence-based":   "Reason from evidence: ground every step in data, studies, or cited sources.",
	"first-principles": "Reason from first principles: decompose the question into fundamentals and build the answer up.",
}

const expandPrompt = `%s

Context so far:
%s

Question: %s

Respond with ONLY a JSON object:
{"steps": ["<step 1>", "<step 2>", ...], "conclusion": "<your answer>", "confidence": <0.0-1.0>}`

// Expand generates candidate reasoning chains for an unexpanded leaf, scores
// them, and installs the best as the node's answer. Fact extraction and
// conflict detection run as side effects. Returns false without error when
// the node was pruned concurrently, the budget ran out, or no variant
// survived; those are normal outcomes of a bounded search, not failures.
func (e *Engine) Expand(ctx context.Context, nodeID int) (bool, error) {
	node, err := e.tree.Get(nodeID)
	if err != nil {
		return false, err
	}
	if node.Status == StatusPruned {
		return false, nil
	}
	if node.Status == StatusExpanded {
		return false, errors.WithFields(
			errors.New(errors.NotExpandable, "node is already expanded"),
			errors.Fields{"node_id": nodeID},
		)
	}
	if e.governor.GlobalExhausted() {
		return false, nil
	}

	started := e.state.Clock.Now()
	pathSummary := e.summarizePath(nodeID)
	allocPriority := e.estimator.Estimate(ctx, nodeID, pathSummary, node.Question)
	if _, err := e.governor.Allocate(ctx, nodeID, allocPriority); err != nil {
		return false, err
	}

	variants, overBudget := e.generateVariants(ctx, nodeID, pathSummary, node.Question)
	if overBudget {
		if err := e.prune(ctx, nodeID, PruneBudget); err != nil {
			return false, err
		}
		return false, nil
	}
	if len(variants) == 0 {
		e.logger.Warn(ctx, "node %d produced no usable variants", nodeID)
		return false, nil
	}

	chosen, anySurvivor := e.gateAndChoose(ctx, nodeID, variants)
	if !anySurvivor {
		if err := e.prune(ctx, nodeID, PruneAxiom); err != nil {
			return false, err
		}
		return false, nil
	}
	if chosen == nil {
		if err := e.prune(ctx, nodeID, PruneLowScore); err != nil {
			return false, err
		}
		return false, nil
	}

	err = e.tree.Update(nodeID, func(n *Node) {
		n.Status = StatusExpanded
		n.Answer = chosen.Conclusion
		n.Variants = variants
	})
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	e.expanded++
	e.mu.Unlock()
	if e.trace != nil {
		_ = e.trace.EmitExpansion(nodeID, len(variants),
			chosen.MeanScore, e.state.Clock.Now().Sub(started).Milliseconds())
	}

	e.afterExpansion(ctx, nodeID, chosen)
	return true, nil
}

// generateVariants runs the configured number of variant calls concurrently,
// charging each call's token usage against the node. overBudget reports a
// prune signal from the governor.
func (e *Engine) generateVariants(ctx context.Context, nodeID int, pathSummary, question string) ([]Variant, bool) {
	k := e.cfg.Variants
	if k <= 0 {
		k = 1
	}
	if pathSummary == "" {
		pathSummary = "(start of investigation)"
	}

	results := make([]*Variant, k)
	var pruneSignal atomic.Bool

	p := pool.New().WithMaxGoroutines(k)
	for i := 0; i < k; i++ {
		i := i
		p.Go(func() {
			strategy := strategies[i%len(strategies)]
			v, usage, ok := e.generateVariant(ctx, pathSummary, question, strategy)
			if usage > 0 {
				signal, err := e.governor.Consume(ctx, nodeID, usage)
				if err != nil {
					e.logger.Warn(ctx, "budget charge failed for node %d: %v", nodeID, err)
				} else if bool(signal) {
					pruneSignal.Store(true)
				}
			}
			if ok {
				results[i] = v
			}
		})
	}
	p.Wait()

	if pruneSignal.Load() {
		return nil, true
	}

	var variants []Variant
	for _, v := range results {
		if v != nil {
			variants = append(variants, *v)
		}
	}
	return variants, false
}

func (e *Engine) generateVariant(ctx context.Context, pathSummary, question, strategy string) (*Variant, int64, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExpansionTimeout)
	defer cancel()

	resp, err := e.service.Generate(callCtx,
		fmt.Sprintf(expandPrompt, strategyFraming[strategy], pathSummary, question),
		core.WithCapability(core.CapabilityReasoning),
		core.WithQuality(core.QualityBalanced),
	)
	if err != nil {
		if errors.CodeOf(err) == errors.Timeout {
			e.state.RecordTimeout()
		}
		e.logger.Debug(ctx, "variant generation (%s) failed: %v", strategy, err)
		return nil, 0, false
	}
	e.state.RecordGeneration()

	var usage int64
	if resp.Usage != nil {
		usage = int64(resp.Usage.TotalTokens)
	}

	v := e.parseVariant(resp.Content, strategy)
	return v, usage, v != nil
}

// parseVariant decodes the structured variant response. An unparseable
// response degrades to a single-step variant with the raw text as its
// conclusion rather than discarding the model's work.
func (e *Engine) parseVariant(content, strategy string) *Variant {
	parsed, err := utils.ParseJSONResponse(content)
	if err != nil {
		e.state.RecordParseFailure()
		text := strings.TrimSpace(content)
		if text == "" {
			return nil
		}
		return &Variant{
			Strategy:   strategy,
			Steps:      []string{text},
			Conclusion: text,
			Confidence: 0.5,
		}
	}

	v := &Variant{Strategy: strategy, Confidence: 0.5}
	if raw, ok := parsed["steps"].([]interface{}); ok {
		for _, s := range raw {
			if step, ok := s.(string); ok && strings.TrimSpace(step) != "" {
				v.Steps = append(v.Steps, step)
			}
		}
	}
	v.Conclusion, _ = parsed["conclusion"].(string)
	if c, ok := parsed["confidence"].(float64); ok && c >= 0 && c <= 1 {
		v.Confidence = c
	}

	if v.Conclusion == "" && len(v.Steps) == 0 {
		e.state.RecordParseFailure()
		return nil
	}
	if v.Conclusion == "" {
		v.Conclusion = v.Steps[len(v.Steps)-1]
	}
	if len(v.Steps) == 0 {
		v.Steps = []string{v.Conclusion}
	}
	return v
}

// gateAndChoose step-scores every variant, applies the axiom gate, and picks
// the winner: highest mean step score, ties broken by the higher minimum
// (prefer chains with no weak links). anySurvivor is false when every variant
// carries a critical violation; a nil chosen with survivors means the best
// variant still scored below the threshold.
func (e *Engine) gateAndChoose(ctx context.Context, nodeID int, variants []Variant) (chosen *Variant, anySurvivor bool) {
	const tieEpsilon = 1e-9

	var best *Variant
	for i := range variants {
		v := &variants[i]
		v.StepScores, v.MeanScore, v.MinScore = e.scorer.ScoreSteps(ctx, v.Steps)

		if e.evaluator != nil {
			weighted := e.evaluator.EvaluateAll(ctx, axiom.Content{
				Text: strings.Join(v.Steps, "\n") + "\n" + v.Conclusion,
			})
			if weighted.CriticalViolation {
				v.CriticalViolation = true
				continue
			}
			if weighted.Score < e.cfg.ScoreThreshold {
				anySurvivor = true
				continue
			}
		}
		anySurvivor = true

		if best == nil ||
			v.MeanScore > best.MeanScore+tieEpsilon ||
			(v.MeanScore > best.MeanScore-tieEpsilon && v.MinScore > best.MinScore) {
			best = v
		}
	}
	return best, anySurvivor
}

// afterExpansion runs the extraction, promotion, and conflict pipeline. Every
// failure here is logged and absorbed; expansion already succeeded.
func (e *Engine) afterExpansion(ctx context.Context, nodeID int, chosen *Variant) {
	prov := facts.Provenance{
		NodeID:    nodeID,
		Method:    "extraction",
		Source:    fmt.Sprintf("node:%d", nodeID),
		Timestamp: e.state.Clock.Now(),
	}

	text := strings.Join(chosen.Steps, "\n") + "\n" + chosen.Conclusion
	extracted, err := e.extractor.Extract(ctx, text, prov)
	if err != nil {
		e.logger.Warn(ctx, "fact extraction failed for node %d: %v", nodeID, err)
	}
	if len(extracted) == 0 {
		return
	}
	if e.trace != nil {
		for _, f := range extracted {
			_ = e.trace.EmitFact(f.ID, f.Subject, f.Tier.String())
		}
	}

	if _, err := e.store.PromoteAll(ctx); err != nil {
		e.logger.Warn(ctx, "promotion sweep failed: %v", err)
	}

	conflicts, err := e.detector.DetectNew(ctx, e.store, extracted)
	if err != nil {
		e.logger.Warn(ctx, "conflict detection failed: %v", err)
		return
	}
	for _, c := range conflicts {
		if err := e.resolver.Resolve(ctx, c); err != nil {
			e.logger.Warn(ctx, "conflict resolution failed: %v", err)
		}
		if e.trace != nil {
			_ = e.trace.EmitConflict(c.ID, string(c.Kind), string(c.Outcome))
		}
	}
	if len(conflicts) > 0 {
		e.mu.Lock()
		e.conflicts = append(e.conflicts, conflicts...)
		e.mu.Unlock()
	}
}
