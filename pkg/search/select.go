package search

import (
	"context"
	"math"
)

// SelectNext traverses from the root, choosing at each level the selectable
// child with the highest priority, and returns the node to work on next:
// an unexpanded leaf to expand, or an expanded childless node to decompose.
// ok is false when the tree is exhausted or the global budget is spent.
func (e *Engine) SelectNext(ctx context.Context) (nodeID int, ok bool) {
	if e.governor.GlobalExhausted() {
		return 0, false
	}
	nodes := e.tree.Snapshot()
	if len(nodes) == 0 {
		return 0, false
	}

	current := nodes[0]
	if !e.open(nodes, current) {
		return 0, false
	}

	for {
		if current.Status == StatusUnexpanded {
			e.emitSelection(current.ID, nodes)
			return current.ID, true
		}
		if len(current.Children) == 0 {
			// Expanded leaf with depth to spare: decompose it.
			e.emitSelection(current.ID, nodes)
			return current.ID, true
		}

		var best *Node
		bestPriority := math.Inf(-1)
		bestUnvisited := false
		for _, childID := range current.Children {
			child := nodes[childID]
			if !e.open(nodes, child) {
				continue
			}

			unvisited := child.Visits == 0
			p := e.priority(ctx, nodes, current, child)
			// Unvisited nodes always beat visited ones; among
			// themselves they order by the static bonus terms.
			if unvisited && !bestUnvisited {
				best, bestPriority, bestUnvisited = child, p, true
			} else if unvisited == bestUnvisited && p > bestPriority {
				best, bestPriority = child, p
			}
		}
		if best == nil {
			return 0, false
		}
		current = best
	}
}

// open reports whether a node's subtree still has work: an unexpanded node,
// or room to decompose, or any open descendant. Pruned subtrees are closed.
func (e *Engine) open(nodes []*Node, n *Node) bool {
	if n.Status == StatusPruned {
		return false
	}
	if n.Status == StatusUnexpanded {
		return true
	}
	if len(n.Children) == 0 {
		return !n.Exhausted && n.Depth < e.cfg.MaxDepth
	}
	for _, childID := range n.Children {
		if e.open(nodes, nodes[childID]) {
			return true
		}
	}
	return false
}

// priority computes the selection score of child under parent. For visited
// nodes this is the full formula; for unvisited nodes only the static bonus
// terms matter, since the infinite exploration term is handled by the caller.
func (e *Engine) priority(ctx context.Context, nodes []*Node, parent, child *Node) float64 {
	bonus := e.coverageWeight()*(1-localCoverage(nodes, child)) +
		e.cfg.PriorWeight*e.estimator.Estimate(ctx, child.ID, e.summarizePath(parent.ID), child.Question) +
		e.factWeight(ctx)*e.factQuality(ctx, child.ID)

	if child.Visits == 0 {
		return bonus
	}

	q := child.MeanValue()
	exploration := 0.0
	if parent.Visits > 0 {
		exploration = e.cfg.ExplorationC * math.Sqrt(math.Log(float64(parent.Visits))/float64(child.Visits))
	}
	return q + exploration + bonus
}

// coverageWeight decays exponentially with iterations toward the floor,
// shifting selection from exploration to exploitation over the run.
func (e *Engine) coverageWeight() float64 {
	e.mu.Lock()
	iteration := e.iteration
	e.mu.Unlock()

	w := e.cfg.CoverageWeight * math.Exp(-e.cfg.CoverageDecay*float64(iteration))
	if w < e.cfg.CoverageFloor {
		return e.cfg.CoverageFloor
	}
	return w
}

// localCoverage is the expanded share of a node's children. A childless node
// has coverage 0, so unexplored regions collect the full coverage bonus.
func localCoverage(nodes []*Node, n *Node) float64 {
	if len(n.Children) == 0 {
		return 0
	}
	expanded := 0
	for _, childID := range n.Children {
		if nodes[childID].Status == StatusExpanded {
			expanded++
		}
	}
	return float64(expanded) / float64(len(n.Children))
}

// factWeight ramps linearly with store size up to the configured ceiling, so
// a sparse store cannot bias selection toward whichever branch happened to
// produce facts first.
func (e *Engine) factWeight(ctx context.Context) float64 {
	count, err := e.store.Count(ctx)
	if err != nil {
		return 0
	}
	if count >= e.cfg.FactRampSize {
		return e.cfg.FactWeight
	}
	return e.cfg.FactWeight * float64(count) / float64(e.cfg.FactRampSize)
}

var tierQuality = map[string]float64{
	"unverified":   0.4,
	"corroborated": 0.7,
	"verified":     1.0,
}

// factQuality scores how well-grounded a node is: the mean tier-weighted
// effective confidence of the facts extracted at it, 0 with no facts.
func (e *Engine) factQuality(ctx context.Context, nodeID int) float64 {
	nodeFacts, err := e.store.ByNode(ctx, nodeID)
	if err != nil || len(nodeFacts) == 0 {
		return 0
	}
	var sum float64
	for _, f := range nodeFacts {
		sum += tierQuality[f.Tier.String()] * f.EffectiveConfidence()
	}
	return sum / float64(len(nodeFacts))
}

func (e *Engine) emitSelection(nodeID int, nodes []*Node) {
	if e.trace == nil {
		return
	}
	_ = e.trace.EmitSelection(nodeID, nodes[nodeID].MeanValue())
}
