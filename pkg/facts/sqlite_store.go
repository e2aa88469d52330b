package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// SQLiteStore implements Store backed by SQLite. Behavior mirrors MemoryStore
// exactly; the equivalence scan runs in Go over the subject's rows.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	policy PromotionPolicy

	initialized sync.Once
}

// NewSQLiteStore creates a SQLite-backed fact store. If path is ":memory:",
// the database lives in-memory.
func NewSQLiteStore(path string, policy PromotionPolicy) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailure, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{
		db:     db,
		path:   path,
		policy: policy,
	}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StoreFailure, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS facts (
            id           TEXT PRIMARY KEY,
            subject      TEXT NOT NULL,
            subject_norm TEXT NOT NULL,
            relation     TEXT NOT NULL,
            object       TEXT NOT NULL,
            confidence   REAL NOT NULL,
            tier         TEXT NOT NULL,
            disputed     INTEGER NOT NULL DEFAULT 0,
            node_id      INTEGER NOT NULL,
            provenance   TEXT NOT NULL,
            sources      TEXT NOT NULL,
            created_at   DATETIME NOT NULL,
            updated_at   DATETIME NOT NULL
        );

        CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject_norm);
        CREATE INDEX IF NOT EXISTS idx_facts_tier ON facts(tier);
        CREATE INDEX IF NOT EXISTS idx_facts_node ON facts(node_id);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.StoreFailure, "failed to initialize facts schema")
			return
		}
	})
	return initErr
}

func (s *SQLiteStore) Insert(ctx context.Context, f *Fact) (*Fact, error) {
	if f == nil {
		return nil, errors.New(errors.InvalidInput, "fact must not be nil")
	}
	if err := errors.CheckContext(ctx, "fact insert"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject := NormalizeText(f.Subject)

	existing, err := s.querySubjectLocked(ctx, subject)
	if err != nil {
		return nil, err
	}

	for _, candidate := range existing {
		if s.policy.Equivalent(candidate, f) {
			s.policy.Corroborate(candidate, f)
			s.policy.Promote(ctx, candidate)
			candidate.UpdatedAt = now(f)
			if err := s.writeLocked(ctx, candidate, true); err != nil {
				return nil, err
			}
			return candidate.Clone(), nil
		}
	}

	stored := f.Clone()
	if err := s.writeLocked(ctx, stored, false); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// writeLocked upserts one fact row. Caller holds the write lock.
func (s *SQLiteStore) writeLocked(ctx context.Context, f *Fact, update bool) error {
	provJSON, err := json.Marshal(f.Provenance)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to marshal provenance")
	}
	sourcesJSON, err := json.Marshal(f.Sources)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to marshal sources")
	}

	query := `
    INSERT INTO facts (id, subject, subject_norm, relation, object, confidence,
                       tier, disputed, node_id, provenance, sources, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(id) DO UPDATE SET
        confidence = excluded.confidence,
        tier       = excluded.tier,
        disputed   = excluded.disputed,
        sources    = excluded.sources,
        updated_at = excluded.updated_at
    `

	_, err = s.db.ExecContext(ctx, query,
		f.ID, f.Subject, NormalizeText(f.Subject), f.Relation, f.Object, f.Confidence,
		f.Tier.String(), boolToInt(f.Disputed), f.Provenance.NodeID,
		string(provJSON), string(sourcesJSON), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailure, "failed to write fact"),
			errors.Fields{"fact_id": f.ID, "update": update},
		)
	}
	return nil
}

func (s *SQLiteStore) querySubjectLocked(ctx context.Context, subjectNorm string) ([]*Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM facts WHERE subject_norm = ? ORDER BY id", subjectNorm)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to query facts by subject")
	}
	defer rows.Close()
	return scanFacts(rows)
}

const selectColumns = `SELECT id, subject, relation, object, confidence, tier,
       disputed, provenance, sources, created_at, updated_at`

func scanFacts(rows *sql.Rows) ([]*Fact, error) {
	var out []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "error iterating fact rows")
	}
	return out, nil
}

func scanFact(rows *sql.Rows) (*Fact, error) {
	var (
		f           Fact
		tier        string
		disputed    int
		provJSON    string
		sourcesJSON string
	)

	if err := rows.Scan(&f.ID, &f.Subject, &f.Relation, &f.Object, &f.Confidence,
		&tier, &disputed, &provJSON, &sourcesJSON, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to scan fact row")
	}

	f.Tier = ParseTier(tier)
	f.Disputed = disputed != 0
	if err := json.Unmarshal([]byte(provJSON), &f.Provenance); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to unmarshal provenance")
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &f.Sources); err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to unmarshal sources")
	}
	return &f, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+" FROM facts WHERE id = ?", id)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to query fact")
	}
	defer rows.Close()

	found, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "fact not found"),
			errors.Fields{"fact_id": id},
		)
	}
	return found[0], nil
}

func (s *SQLiteStore) BySubject(ctx context.Context, subject string) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySubjectLocked(ctx, NormalizeText(subject))
}

func (s *SQLiteStore) ByTier(ctx context.Context, tier Tier) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM facts WHERE tier = ? ORDER BY id", tier.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to query facts by tier")
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *SQLiteStore) ByNode(ctx context.Context, nodeID int) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM facts WHERE node_id = ? ORDER BY id", nodeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to query facts by node")
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *SQLiteStore) All(ctx context.Context) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+" FROM facts ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to query facts")
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.StoreFailure, "failed to count facts")
	}
	return count, nil
}

func (s *SQLiteStore) UpdateConfidence(ctx context.Context, id string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "confidence must be in [0,1]"),
			errors.Fields{"confidence": confidence},
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE facts SET confidence = ?, updated_at = ? WHERE id = ?",
		confidence, time.Now(), id)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to update confidence")
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) MarkDisputed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE facts SET disputed = 1, updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to mark fact disputed")
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to get affected rows count")
	}
	if affected == 0 {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "fact not found"),
			errors.Fields{"fact_id": id},
		)
	}
	return nil
}

func (s *SQLiteStore) PromoteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+" FROM facts ORDER BY id")
	if err != nil {
		return 0, errors.Wrap(err, errors.StoreFailure, "failed to query facts")
	}
	all, err := scanFacts(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, f := range all {
		if s.policy.Promote(ctx, f) {
			f.UpdatedAt = time.Now()
			if err := s.writeLocked(ctx, f, true); err != nil {
				return promoted, err
			}
			promoted++
		}
	}
	return promoted, nil
}

func (s *SQLiteStore) Snapshot(ctx context.Context) ([]*Fact, error) {
	return s.All(ctx)
}

func (s *SQLiteStore) Restore(ctx context.Context, snapshot []*Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to begin restore transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM facts"); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to clear facts for restore")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to commit restore clear")
	}

	for _, f := range snapshot {
		if err := s.writeLocked(ctx, f, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to close database connection")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
