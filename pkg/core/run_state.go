package core

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pondera-ai/pondera/pkg/logging"
)

// RunState carries the per-run identity and diagnostics shared by every
// component. It is passed explicitly to constructors; there are no ambient
// singletons, which keeps checkpoint/resume straightforward.
type RunState struct {
	RunID  string
	Clock  Clock
	Logger *logging.Logger

	timeouts      atomic.Int64
	parseFailures atomic.Int64
	generations   atomic.Int64
}

// NewRunState creates a RunState with a fresh run id.
func NewRunState(clock Clock, logger *logging.Logger) *RunState {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &RunState{
		RunID:  uuid.New().String(),
		Clock:  clock,
		Logger: logger,
	}
}

// NewRunStateWithID reconstructs a RunState from a persisted run id,
// used when resuming a session.
func NewRunStateWithID(runID string, clock Clock, logger *logging.Logger) *RunState {
	rs := NewRunState(clock, logger)
	rs.RunID = runID
	return rs
}

// RecordTimeout counts a generation-service timeout absorbed by a component.
func (r *RunState) RecordTimeout() { r.timeouts.Add(1) }

// RecordParseFailure counts a malformed structured response absorbed by a
// component.
func (r *RunState) RecordParseFailure() { r.parseFailures.Add(1) }

// RecordGeneration counts a completed generation-service call.
func (r *RunState) RecordGeneration() { r.generations.Add(1) }

// Counters returns a snapshot of the diagnostic counters.
func (r *RunState) Counters() RunCounters {
	return RunCounters{
		Timeouts:      r.timeouts.Load(),
		ParseFailures: r.parseFailures.Load(),
		Generations:   r.generations.Load(),
	}
}

// RestoreCounters resets the counters from a persisted snapshot.
func (r *RunState) RestoreCounters(c RunCounters) {
	r.timeouts.Store(c.Timeouts)
	r.parseFailures.Store(c.ParseFailures)
	r.generations.Store(c.Generations)
}

// RunCounters is a point-in-time view of a run's diagnostic counters.
type RunCounters struct {
	Timeouts      int64 `json:"timeouts"`
	ParseFailures int64 `json:"parse_failures"`
	Generations   int64 `json:"generations"`
}
