// Package budget bounds the computation spent on a run. A Ledger tracks a
// global token-equivalent budget plus per-node allocations with atomic
// increment-and-check counters so concurrent variant generation can charge the
// same node safely. The Governor sizes allocations by node priority and turns
// overruns into prune signals.
package budget

import (
	"sync"
	"sync/atomic"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// nodeAccount holds one node's allocation. Consumed is atomic because
// concurrent variant generation charges the same node from several goroutines.
type nodeAccount struct {
	allocated int64
	consumed  atomic.Int64
}

// Ledger is the bookkeeping core: a global budget, the consumed total, and a
// per-node allocation map. The Governor owns the ledger; other components read
// it through Governor methods only.
type Ledger struct {
	total    int64
	consumed atomic.Int64

	mu    sync.RWMutex
	nodes map[int]*nodeAccount
}

// NewLedger creates a ledger with the given global budget in token-equivalent
// units.
func NewLedger(total int64) (*Ledger, error) {
	if total <= 0 {
		return nil, errors.New(errors.InvalidInput, "global budget must be positive")
	}
	return &Ledger{
		total: total,
		nodes: make(map[int]*nodeAccount),
	}, nil
}

// Total returns the global budget.
func (l *Ledger) Total() int64 { return l.total }

// Consumed returns the units consumed across all nodes.
func (l *Ledger) Consumed() int64 { return l.consumed.Load() }

// Remaining returns the unconsumed share of the global budget, never negative.
func (l *Ledger) Remaining() int64 {
	r := l.total - l.consumed.Load()
	if r < 0 {
		return 0
	}
	return r
}

// Exhausted reports whether the global budget is spent.
func (l *Ledger) Exhausted() bool { return l.consumed.Load() >= l.total }

// Allocate records an allocation for a node. Re-allocating an existing node
// raises its ceiling without resetting what it already consumed.
func (l *Ledger) Allocate(nodeID int, units int64) error {
	if units <= 0 {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "allocation must be positive"),
			errors.Fields{"node_id": nodeID, "units": units},
		)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.nodes[nodeID]; ok {
		if units > acct.allocated {
			acct.allocated = units
		}
		return nil
	}
	l.nodes[nodeID] = &nodeAccount{allocated: units}
	return nil
}

// Charge atomically adds units to a node's consumed counter and the global
// total, returning the node's new consumed value and whether it now exceeds
// its allocation. Charging an unallocated node is an invariant violation.
func (l *Ledger) Charge(nodeID int, units int64) (consumed int64, over bool, err error) {
	if units < 0 {
		return 0, false, errors.WithFields(
			errors.New(errors.InvalidInput, "consumption cannot be negative"),
			errors.Fields{"node_id": nodeID, "units": units},
		)
	}
	l.mu.RLock()
	acct, ok := l.nodes[nodeID]
	l.mu.RUnlock()
	if !ok {
		return 0, false, errors.WithFields(
			errors.New(errors.InvalidInput, "consume before allocate"),
			errors.Fields{"node_id": nodeID},
		)
	}

	consumed = acct.consumed.Add(units)
	l.consumed.Add(units)
	return consumed, consumed > acct.allocated, nil
}

// NodeUsage returns a node's allocated and consumed units. ok is false when the
// node has no allocation.
func (l *Ledger) NodeUsage(nodeID int) (allocated, consumed int64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, found := l.nodes[nodeID]
	if !found {
		return 0, 0, false
	}
	return acct.allocated, acct.consumed.Load(), true
}

// NodeUsageSnapshot is one node's ledger entry at a point in time.
type NodeUsageSnapshot struct {
	NodeID    int   `json:"node_id"`
	Allocated int64 `json:"allocated"`
	Consumed  int64 `json:"consumed"`
}

// Snapshot returns every node's entry, for diagnostics and session
// persistence.
func (l *Ledger) Snapshot() []NodeUsageSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]NodeUsageSnapshot, 0, len(l.nodes))
	for id, acct := range l.nodes {
		out = append(out, NodeUsageSnapshot{
			NodeID:    id,
			Allocated: acct.allocated,
			Consumed:  acct.consumed.Load(),
		})
	}
	return out
}

// Restore reinstates node entries and the consumed total from a snapshot,
// replacing current state. Used on session resume.
func (l *Ledger) Restore(entries []NodeUsageSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes = make(map[int]*nodeAccount, len(entries))
	var total int64
	for _, e := range entries {
		acct := &nodeAccount{allocated: e.Allocated}
		acct.consumed.Store(e.Consumed)
		l.nodes[e.NodeID] = acct
		total += e.Consumed
	}
	l.consumed.Store(total)
}
