package budget

import (
	"context"

	"github.com/pondera-ai/pondera/pkg/logging"
)

// Config sizes allocations. Base is scaled by node priority and clamped to
// [MinAllocation, MaxAllocation].
type Config struct {
	Total          int64 `yaml:"total" json:"total" validate:"gt=0"`
	BaseAllocation int64 `yaml:"base_allocation" json:"base_allocation" validate:"gt=0"`
	MinAllocation  int64 `yaml:"min_allocation" json:"min_allocation" validate:"gt=0"`
	MaxAllocation  int64 `yaml:"max_allocation" json:"max_allocation" validate:"gtefield=MinAllocation"`
}

// DefaultConfig returns the standard budget envelope.
func DefaultConfig() Config {
	return Config{
		Total:          100_000,
		BaseAllocation: 1_000,
		MinAllocation:  250,
		MaxAllocation:  4_000,
	}
}

// Governor owns the ledger: components request allocation and record
// consumption through it, never against the ledger directly.
type Governor struct {
	cfg    Config
	ledger *Ledger
	logger *logging.Logger
}

// NewGovernor creates a governor with a fresh ledger.
func NewGovernor(cfg Config, logger *logging.Logger) (*Governor, error) {
	ledger, err := NewLedger(cfg.Total)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Governor{cfg: cfg, ledger: ledger, logger: logger}, nil
}

// Ledger exposes the underlying ledger for session persistence.
func (g *Governor) Ledger() *Ledger { return g.ledger }

// Allocate grants a node budget proportional to its priority score:
// base*(1+priority) clamped to the configured range. Higher-priority nodes
// get more room to generate variants.
func (g *Governor) Allocate(ctx context.Context, nodeID int, priority float64) (int64, error) {
	if priority < 0 {
		priority = 0
	}
	units := int64(float64(g.cfg.BaseAllocation) * (1 + priority))
	if units < g.cfg.MinAllocation {
		units = g.cfg.MinAllocation
	}
	if units > g.cfg.MaxAllocation {
		units = g.cfg.MaxAllocation
	}
	if err := g.ledger.Allocate(nodeID, units); err != nil {
		return 0, err
	}
	g.logger.Debug(ctx, "allocated %d budget units to node %d (priority %.3f)", units, nodeID, priority)
	return units, nil
}

// PruneSignal tells the search engine a node overran its allocation and
// should be pruned.
type PruneSignal bool

// Consume records usage against a node. When the node's consumed total
// crosses its allocation the signal asks the caller to prune it; the charge
// itself still lands so the ledger stays truthful about spend.
func (g *Governor) Consume(ctx context.Context, nodeID int, units int64) (PruneSignal, error) {
	consumed, over, err := g.ledger.Charge(nodeID, units)
	if err != nil {
		return false, err
	}
	if over {
		g.logger.Info(ctx, "node %d overran its budget (%d consumed), signalling prune", nodeID, consumed)
	}
	return PruneSignal(over), nil
}

// RemainingGlobal returns the unconsumed global budget.
func (g *Governor) RemainingGlobal() int64 { return g.ledger.Remaining() }

// GlobalExhausted reports whether the run's budget is spent.
func (g *Governor) GlobalExhausted() bool { return g.ledger.Exhausted() }

// Report is a point-in-time view of the ledger, included in run reports and
// session snapshots.
type Report struct {
	Total     int64               `json:"total"`
	Consumed  int64               `json:"consumed"`
	Remaining int64               `json:"remaining"`
	Nodes     []NodeUsageSnapshot `json:"nodes"`
}

// Report snapshots the full ledger.
func (g *Governor) Report() Report {
	return Report{
		Total:     g.ledger.Total(),
		Consumed:  g.ledger.Consumed(),
		Remaining: g.ledger.Remaining(),
		Nodes:     g.ledger.Snapshot(),
	}
}
