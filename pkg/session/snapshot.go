// Package session checkpoints and resumes deliberation runs. A snapshot is
// the full mutable state of a run (tree, facts, conflicts, budget ledger,
// diagnostic counters) serialized as gzip-compressed JSON and persisted in a
// Badger store keyed by run id.
package session

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pondera-ai/pondera/pkg/budget"
	"github.com/pondera-ai/pondera/pkg/conflict"
	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/search"
)

// SnapshotVersion guards against loading snapshots written by an
// incompatible layout.
const SnapshotVersion = 1

// Snapshot is the serializable state of one run.
type Snapshot struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`

	Nodes     []*search.Node             `json:"nodes"`
	Facts     []*facts.Fact              `json:"facts"`
	Conflicts []*conflict.Conflict       `json:"conflicts"`
	Ledger    []budget.NodeUsageSnapshot `json:"ledger"`
	Counters  core.RunCounters           `json:"counters"`
}

// Capture builds a snapshot of a running engine and its stores.
func Capture(ctx context.Context, engine *search.Engine, store facts.Store, governor *budget.Governor, state *core.RunState) (*Snapshot, error) {
	nodes := engine.Tree().Snapshot()
	if len(nodes) == 0 {
		return nil, errors.New(errors.InvalidInput, "nothing to snapshot: tree is empty")
	}

	factSnap, err := store.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "fact snapshot failed")
	}

	return &Snapshot{
		Version:   SnapshotVersion,
		RunID:     state.RunID,
		Question:  nodes[0].Question,
		CreatedAt: state.Clock.Now(),
		Nodes:     nodes,
		Facts:     factSnap,
		Conflicts: engine.Conflicts(),
		Ledger:    governor.Ledger().Snapshot(),
		Counters:  state.Counters(),
	}, nil
}

// Encode serializes the snapshot as gzip-compressed JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(s); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "snapshot encoding failed")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "snapshot compression failed")
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses Encode, rejecting incompatible versions.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ParseFailure, "snapshot is not gzip data")
	}
	defer zr.Close()

	var snap Snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, errors.ParseFailure, "snapshot decoding failed")
	}
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, errors.Wrap(err, errors.ParseFailure, "snapshot is truncated")
	}
	if snap.Version != SnapshotVersion {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported snapshot version"),
			errors.Fields{"version": snap.Version},
		)
	}
	return &snap, nil
}

// Restore reinstates a snapshot into fresh components: the engine's tree, the
// fact store, the budget ledger, and the run counters. The engine must have
// been built with the same store and governor passed here.
func Restore(ctx context.Context, snap *Snapshot, engine *search.Engine, store facts.Store, governor *budget.Governor, state *core.RunState) error {
	if err := engine.Tree().Restore(snap.Nodes); err != nil {
		return err
	}
	if err := store.Restore(ctx, snap.Facts); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "fact restore failed")
	}
	engine.RestoreConflicts(snap.Conflicts)
	governor.Ledger().Restore(snap.Ledger)
	state.RunID = snap.RunID
	state.RestoreCounters(snap.Counters)
	return nil
}
