package session

import (
	"context"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/logging"
)

const keyPrefix = "session/"

// Config controls where and how snapshots are persisted.
type Config struct {
	// Path is the Badger database directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps the database entirely in process memory. Intended for
	// tests and throwaway runs.
	InMemory bool `yaml:"in_memory"`

	// TTL expires saved snapshots after this duration. Zero keeps them
	// forever.
	TTL time.Duration `yaml:"ttl" validate:"min=0"`
}

// DefaultConfig persists snapshots under .pondera/sessions with no expiry.
func DefaultConfig() Config {
	return Config{Path: ".pondera/sessions"}
}

// Store persists run snapshots in Badger, one entry per run id.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *logging.Logger
}

// NewStore opens the session database. The caller owns Close.
func NewStore(cfg Config, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New(errors.InvalidInput, "session store path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.Wrap(err, errors.StoreFailure, "failed to create session directory")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger's own logger is noisy at INFO; route nothing through it.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to open session database")
	}

	return &Store{db: db, ttl: cfg.TTL, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the snapshot under its run id, replacing any prior checkpoint
// for the same run.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap.RunID == "" {
		return errors.New(errors.InvalidInput, "snapshot has no run id")
	}
	data, err := snap.Encode()
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+snap.RunID), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to save session")
	}

	s.logger.Debug(ctx, "Saved session %s (%d nodes, %d bytes)",
		snap.RunID, len(snap.Nodes), len(data))
	return nil
}

// Load reads the snapshot for a run id.
func (s *Store) Load(ctx context.Context, runID string) (*Snapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + runID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "session not found"),
			errors.Fields{"run_id": runID},
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to load session")
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "Loaded session %s (%d nodes)", runID, len(snap.Nodes))
	return snap, nil
}

// List returns the run ids of all saved sessions, sorted by key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to list sessions")
	}
	return ids, nil
}

// Delete removes a saved session. Deleting an absent run id is not an error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + runID))
	})
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to delete session")
	}
	return nil
}
