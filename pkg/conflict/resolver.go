package conflict

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/logging"
)

// TrustTable maps source identifiers to trust scores in [0,1]. Lookup tries
// an exact match, then the longest domain-suffix match ("www.nature.com"
// matches a "nature.com" entry), then the default.
type TrustTable struct {
	Sources map[string]float64 `yaml:"sources" json:"sources"`
	Default float64            `yaml:"default" json:"default"`
}

// Lookup returns the trust score for a source.
func (t TrustTable) Lookup(source string) float64 {
	if trust, ok := t.Sources[source]; ok {
		return trust
	}

	best := t.Default
	bestLen := 0
	for domain, trust := range t.Sources {
		if len(domain) > bestLen && hasDomainSuffix(source, domain) {
			best = trust
			bestLen = len(domain)
		}
	}
	return best
}

// hasDomainSuffix reports whether source ends with domain on a label
// boundary.
func hasDomainSuffix(source, domain string) bool {
	if !strings.HasSuffix(source, domain) {
		return false
	}
	if len(source) == len(domain) {
		return true
	}
	return source[len(source)-len(domain)-1] == '.'
}

// Escalator receives conflicts neither authority nor recency could settle.
// The search engine implements it by spawning a high-priority research node.
type Escalator interface {
	EscalateConflict(ctx context.Context, c *Conflict, a, b *facts.Fact) error
}

// Config tunes the resolution chain.
type Config struct {
	Trust TrustTable `yaml:"trust" json:"trust"`
	// AuthorityMargin is the minimum trust-score difference for an
	// authority decision.
	AuthorityMargin float64 `yaml:"authority_margin" json:"authority_margin" validate:"gte=0,lte=1"`
	// RecencyWindow is the minimum timestamp gap for a recency decision.
	RecencyWindow time.Duration `yaml:"recency_window" json:"recency_window" validate:"gte=0"`
}

// DefaultConfig returns the standard resolution tuning.
func DefaultConfig() Config {
	return Config{
		Trust:           TrustTable{Default: 0.5},
		AuthorityMargin: 0.2,
		RecencyWindow:   24 * time.Hour,
	}
}

// Resolver settles conflicts against the fact store. The losing fact is
// marked disputed, which halves its effective confidence for tier
// computation; it is never deleted.
type Resolver struct {
	store     facts.Store
	cfg       Config
	escalator Escalator
	logger    *logging.Logger
	clock     core.Clock
}

// NewResolver creates a resolver. The escalator may be nil, in which case
// unresolvable conflicts simply stay escalated with no research node.
func NewResolver(store facts.Store, cfg Config, escalator Escalator, logger *logging.Logger, clock core.Clock) *Resolver {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Resolver{store: store, cfg: cfg, escalator: escalator, logger: logger, clock: clock}
}

// Resolve settles one conflict in place: source authority first, recency
// second, escalation last. The conflict's outcome and winner/loser ids are
// filled in; store mutations happen only for automatic resolutions.
func (r *Resolver) Resolve(ctx context.Context, c *Conflict) error {
	if c.Outcome != OutcomePending {
		return nil
	}

	a, err := r.store.Get(ctx, c.FactA)
	if err != nil {
		return errors.Wrap(err, errors.ResourceNotFound, "conflict references missing fact")
	}
	b, err := r.store.Get(ctx, c.FactB)
	if err != nil {
		return errors.Wrap(err, errors.ResourceNotFound, "conflict references missing fact")
	}

	trustA := r.cfg.Trust.Lookup(a.Provenance.Source)
	trustB := r.cfg.Trust.Lookup(b.Provenance.Source)
	if math.Abs(trustA-trustB) > r.cfg.AuthorityMargin {
		winner, loser := a, b
		if trustB > trustA {
			winner, loser = b, a
		}
		return r.settle(ctx, c, OutcomeByAuthority, winner, loser)
	}

	gap := a.Provenance.Timestamp.Sub(b.Provenance.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if r.cfg.RecencyWindow > 0 && gap > r.cfg.RecencyWindow {
		winner, loser := a, b
		if b.Provenance.Timestamp.After(a.Provenance.Timestamp) {
			winner, loser = b, a
		}
		return r.settle(ctx, c, OutcomeByRecency, winner, loser)
	}

	c.Outcome = OutcomeEscalated
	c.ResolvedAt = r.clock.Now()
	r.logger.Info(ctx, "conflict %s between %s and %s escalated for research", c.ID, c.FactA, c.FactB)
	if r.escalator != nil {
		if err := r.escalator.EscalateConflict(ctx, c, a, b); err != nil {
			r.logger.Warn(ctx, "conflict escalation failed: %v", err)
		}
	}
	return nil
}

func (r *Resolver) settle(ctx context.Context, c *Conflict, outcome Outcome, winner, loser *facts.Fact) error {
	if err := r.store.MarkDisputed(ctx, loser.ID); err != nil {
		return err
	}
	c.Outcome = outcome
	c.WinnerID = winner.ID
	c.LoserID = loser.ID
	c.ResolvedAt = r.clock.Now()
	r.logger.Debug(ctx, "conflict %s resolved (%s): %s beats %s", c.ID, outcome, winner.ID, loser.ID)
	return nil
}

// ResolveAll resolves every conflict in the slice, stopping on the first
// store error.
func (r *Resolver) ResolveAll(ctx context.Context, conflicts []*Conflict) error {
	for _, c := range conflicts {
		if err := r.Resolve(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
