// Package conflict keeps the fact store consistent. The detector scans facts
// that share a subject for contradictions; the resolver settles them by source
// authority, then recency, and escalates to active re-investigation when
// neither produces a clear winner. Losing facts are disputed, never deleted.
package conflict

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies how two facts contradict each other.
type Kind string

const (
	// KindDirectContradiction marks facts whose relations or objects carry
	// known-antonym terms ("grows" vs "shrinks").
	KindDirectContradiction Kind = "direct-contradiction"
	// KindNegation marks facts where one negates the other ("is renewable"
	// vs "is not renewable").
	KindNegation Kind = "negation"
	// KindNumericMismatch marks facts whose numeric objects differ in sign
	// or by more than half in relative terms.
	KindNumericMismatch Kind = "numeric-mismatch"
)

// Outcome is the resolution state of a conflict.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeByAuthority Outcome = "resolved-by-authority"
	OutcomeByRecency   Outcome = "resolved-by-recency"
	OutcomeEscalated   Outcome = "escalated-for-research"
)

// Conflict records a detected contradiction between two facts. FactA always
// carries the lexically smaller fact id so a pair is never reported twice.
type Conflict struct {
	ID         string    `json:"id"`
	FactA      string    `json:"fact_a"`
	FactB      string    `json:"fact_b"`
	Kind       Kind      `json:"kind"`
	Severity   float64   `json:"severity"`
	Outcome    Outcome   `json:"outcome"`
	WinnerID   string    `json:"winner_id,omitempty"`
	LoserID    string    `json:"loser_id,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

func newConflict(factA, factB string, kind Kind, severity float64, now time.Time) *Conflict {
	if factB < factA {
		factA, factB = factB, factA
	}
	return &Conflict{
		ID:         uuid.New().String(),
		FactA:      factA,
		FactB:      factB,
		Kind:       kind,
		Severity:   severity,
		Outcome:    OutcomePending,
		DetectedAt: now,
	}
}
