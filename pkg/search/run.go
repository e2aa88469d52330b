package search

import (
	"context"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// Run drives the full loop for a question: decompose, select, expand,
// backpropagate, until the budget, the iteration cap, the tree, or the
// context runs out. Termination is always graceful: the report carries the
// best path found so far plus diagnostics, never an empty result without
// explanation.
func (e *Engine) Run(ctx context.Context, question string) (*Report, error) {
	started := e.state.Clock.Now()

	if _, err := e.CreateRoot(question); err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "run %s started: %s", e.state.RunID, question)

	err := e.loop(ctx)
	report := e.buildReport(ctx, started)
	e.logger.Info(ctx, "run %s finished: %d iterations, %d expanded, %d pruned, %d/%d budget",
		e.state.RunID, report.Iterations, report.NodesExpanded, report.NodesPruned,
		report.Budget.Consumed, report.Budget.Total)
	return report, err
}

// Resume continues a run whose tree was restored from a snapshot.
func (e *Engine) Resume(ctx context.Context) (*Report, error) {
	if e.tree.Len() == 0 {
		return nil, errors.New(errors.InvalidInput, "nothing to resume: tree is empty")
	}
	started := e.state.Clock.Now()
	e.logger.Info(ctx, "run %s resumed with %d nodes", e.state.RunID, e.tree.Len())

	err := e.loop(ctx)
	return e.buildReport(ctx, started), err
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		e.mu.Lock()
		iteration := e.iteration
		e.mu.Unlock()
		if iteration >= e.cfg.MaxIterations {
			e.logger.Info(ctx, "iteration cap reached")
			return nil
		}
		if err := ctx.Err(); err != nil {
			e.logger.Info(ctx, "run cancelled: %v", err)
			return nil
		}
		if e.governor.GlobalExhausted() {
			e.logger.Info(ctx, "global budget exhausted")
			return nil
		}

		nodeID, ok := e.SelectNext(ctx)
		if !ok {
			e.logger.Info(ctx, "tree exhausted")
			return nil
		}

		node, err := e.tree.Get(nodeID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		e.iteration++
		e.mu.Unlock()

		if node.Status == StatusExpanded {
			// Selected for decomposition.
			if _, err := e.Decompose(ctx, nodeID, e.cfg.BranchingFactor); err != nil {
				return err
			}
			continue
		}

		expanded, err := e.Expand(ctx, nodeID)
		if err != nil {
			return err
		}
		if !expanded {
			continue
		}

		value := e.expansionValue(nodeID)
		if err := e.Backpropagate(nodeID, value); err != nil {
			return err
		}
	}
}

// expansionValue is the backpropagated reward of a fresh expansion: the
// chosen variant's mean step score.
func (e *Engine) expansionValue(nodeID int) float64 {
	var value float64
	_ = e.tree.Read(nodeID, func(n *Node) {
		for _, v := range n.Variants {
			if !v.CriticalViolation && v.Conclusion == n.Answer && v.MeanScore > value {
				value = v.MeanScore
			}
		}
	})
	return value
}
