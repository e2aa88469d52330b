package facts

import (
	"context"
)

// AxiomChecker gates promotion to the verified tier. Implementations must
// absorb generation-service failures and return a verdict, never an error.
type AxiomChecker interface {
	// CheckFact returns true when the fact has no critical rule violation.
	CheckFact(ctx context.Context, f *Fact) bool
}

// Store is the single source of truth for fact tier state. Implementations
// serialize writes and allow concurrent reads. Facts are never deleted.
type Store interface {
	// Insert adds a fact, corroborating an existing semantically equivalent
	// fact instead when one exists. It returns the canonical stored fact
	// after any tier promotion.
	Insert(ctx context.Context, f *Fact) (*Fact, error)

	Get(ctx context.Context, id string) (*Fact, error)
	BySubject(ctx context.Context, subject string) ([]*Fact, error)
	ByTier(ctx context.Context, tier Tier) ([]*Fact, error)
	ByNode(ctx context.Context, nodeID int) ([]*Fact, error)
	All(ctx context.Context) ([]*Fact, error)
	Count(ctx context.Context) (int, error)

	// UpdateConfidence sets a fact's confidence. Only the conflict resolver
	// calls this; tiers are never lowered.
	UpdateConfidence(ctx context.Context, id string, confidence float64) error

	// MarkDisputed flags a fact as disputed. The fact remains visible.
	MarkDisputed(ctx context.Context, id string) error

	// PromoteAll re-evaluates the promotion rule for every fact. Promotion is
	// idempotent: a second pass over a stable store changes nothing.
	PromoteAll(ctx context.Context) (promoted int, err error)

	// Snapshot returns a deep copy of every fact for session persistence.
	Snapshot(ctx context.Context) ([]*Fact, error)

	// Restore replaces store contents from a snapshot.
	Restore(ctx context.Context, snapshot []*Fact) error

	Close() error
}

// PromotionPolicy holds the store-owned tier promotion rule. Tier advances
// only through explicit promotion here; demotion never happens automatically.
type PromotionPolicy struct {
	// SimilarityThreshold is the minimum token overlap for two facts to count
	// as semantically equivalent.
	SimilarityThreshold float64

	// CorroborateSources and CorroborateConfidence gate unverified → corroborated.
	CorroborateSources    int
	CorroborateConfidence float64

	// VerifySources gates corroborated → verified, together with an axiom
	// check carrying no critical violation.
	VerifySources int

	// Checker validates facts for the verified tier. A nil checker treats
	// every fact as passing.
	Checker AxiomChecker
}

// DefaultPromotionPolicy mirrors the configuration defaults.
func DefaultPromotionPolicy() PromotionPolicy {
	return PromotionPolicy{
		SimilarityThreshold:   0.6,
		CorroborateSources:    2,
		CorroborateConfidence: 0.7,
		VerifySources:         3,
	}
}

// Equivalent reports whether two facts corroborate each other: same
// normalized subject, matching polarity, and token overlap at or above the
// threshold. A negated claim never corroborates its positive form no matter
// how many tokens they share.
func (p PromotionPolicy) Equivalent(a, b *Fact) bool {
	return SameSubject(a, b) &&
		!OppositePolarity(a, b) &&
		Similarity(a, b) >= p.SimilarityThreshold
}

// Corroborate merges an incoming observation into the canonical fact:
// the incoming source joins the source set and the canonical confidence is
// recomputed as the noisy-OR aggregate.
func (p PromotionPolicy) Corroborate(canonical, incoming *Fact) {
	if canonical.Sources == nil {
		canonical.Sources = map[string]float64{}
	}
	src := incoming.Provenance.Source
	if src == "" {
		src = incoming.Provenance.Method
	}
	if src != "" {
		if _, seen := canonical.Sources[src]; !seen {
			canonical.Sources[src] = incoming.Confidence
		}
	}
	canonical.Confidence = canonical.AggregateConfidence()
}

// Promote applies the tier promotion rule in place and reports whether the
// tier advanced. Re-evaluating an already-verified fact has no effect.
func (p PromotionPolicy) Promote(ctx context.Context, f *Fact) bool {
	switch f.Tier {
	case TierUnverified:
		if f.SourceCount() >= p.CorroborateSources && f.AggregateConfidence() >= p.CorroborateConfidence {
			f.Tier = TierCorroborated
			return true
		}
	case TierCorroborated:
		if f.SourceCount() >= p.VerifySources && p.checkPasses(ctx, f) {
			f.Tier = TierVerified
			return true
		}
	}
	return false
}

func (p PromotionPolicy) checkPasses(ctx context.Context, f *Fact) bool {
	if p.Checker == nil {
		return true
	}
	return p.Checker.CheckFact(ctx, f)
}
