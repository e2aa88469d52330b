// Package search runs the deliberation loop: a best-first tree search that
// decomposes a research question into sub-questions, expands leaves into
// candidate reasoning chains, grounds them in the fact store, and
// backpropagates step-scored values toward the root. The tree is an arena of
// dense integer ids rather than pointer-linked nodes, so snapshots are cheap
// and concurrent reads during parallel variant scoring are safe.
package search

import (
	"github.com/pondera-ai/pondera/pkg/reward"
)

// Status is a node's lifecycle state. The state machine is small and closed:
// unexpanded nodes can be expanded or pruned, expanded nodes can be pruned,
// pruned is terminal. Nodes are never removed from the tree.
type Status string

const (
	StatusUnexpanded Status = "unexpanded"
	StatusExpanded   Status = "expanded"
	StatusPruned     Status = "pruned"
)

// PruneReason records why a node was cut.
type PruneReason string

const (
	PruneBudget   PruneReason = "budget-exhausted"
	PruneAxiom    PruneReason = "axiom-violation"
	PruneLowScore PruneReason = "score-below-threshold"
	PruneOperator PruneReason = "operator-signal"
)

// Variant is one candidate reasoning chain generated during expansion. All
// variants stay on the node for audit even after one is chosen.
type Variant struct {
	Strategy   string             `json:"strategy"`
	Steps      []string           `json:"steps"`
	Conclusion string             `json:"conclusion"`
	Confidence float64            `json:"confidence"`
	StepScores []reward.StepScore `json:"step_scores,omitempty"`
	MeanScore  float64            `json:"mean_score"`
	MinScore   float64            `json:"min_score"`
	// CriticalViolation marks a variant the axiom gate rejected outright.
	CriticalViolation bool `json:"critical_violation,omitempty"`
}

// Node is one entry in the arena. Parent is -1 for the root; children hold
// arena ids in creation order.
type Node struct {
	ID       int    `json:"id"`
	Parent   int    `json:"parent"`
	Children []int  `json:"children"`
	Depth    int    `json:"depth"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Status   Status `json:"status"`

	Visits int64   `json:"visits"`
	Value  float64 `json:"value"`

	Variants    []Variant   `json:"variants,omitempty"`
	PruneReason PruneReason `json:"prune_reason,omitempty"`

	// Research marks a node spawned to resolve an escalated conflict.
	Research bool `json:"research,omitempty"`
	// Exhausted marks an expanded leaf that failed decomposition, so
	// selection stops revisiting it.
	Exhausted bool `json:"exhausted,omitempty"`
}

// MeanValue is the node's backpropagated value per visit, 0 when unvisited.
func (n *Node) MeanValue() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.Value / float64(n.Visits)
}
