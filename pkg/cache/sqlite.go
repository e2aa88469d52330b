package cache

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// SQLiteCache persists responses across runs. Unlike the memory backend it
// does not enforce MaxSize; disk-backed entries age out by TTL only.
type SQLiteCache struct {
	db  *sql.DB
	cfg Config

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewSQLiteCache opens or creates the cache database.
func NewSQLiteCache(cfg Config) (*SQLiteCache, error) {
	if cfg.Path == "" {
		return nil, errors.New(errors.InvalidInput, "SQLite cache requires a path")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailure, "failed to open cache database"),
			errors.Fields{"path": cfg.Path},
		)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to enable WAL mode")
	}

	schema := `
    CREATE TABLE IF NOT EXISTS responses (
        key        TEXT PRIMARY KEY,
        value      BLOB NOT NULL,
        expires_at DATETIME,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_responses_expiry ON responses(expires_at);
    `
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StoreFailure, "failed to initialize cache schema")
	}

	return &SQLiteCache{db: db, cfg: cfg}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullTime

	row := c.db.QueryRowContext(ctx, "SELECT value, expires_at FROM responses WHERE key = ?", key)
	if err := row.Scan(&value, &expiresAt); err == sql.ErrNoRows {
		c.misses.Add(1)
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrap(err, errors.StoreFailure, "cache lookup failed")
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM responses WHERE key = ?", key); err != nil {
			return nil, false, errors.Wrap(err, errors.StoreFailure, "failed to expire cache entry")
		}
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	_, err := c.db.ExecContext(ctx, `
        INSERT INTO responses (key, value, expires_at, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            value = excluded.value,
            expires_at = excluded.expires_at`,
		key, value, expiresAt, time.Now())
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "cache write failed")
	}

	c.sets.Add(1)
	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM responses WHERE key = ?", key); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "cache delete failed")
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM responses"); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "cache clear failed")
	}
	return nil
}

func (c *SQLiteCache) Stats() Stats {
	var size int64
	row := c.db.QueryRow("SELECT COALESCE(SUM(LENGTH(value)), 0) FROM responses")
	_ = row.Scan(&size)

	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Size:   size,
	}
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

var _ Cache = (*SQLiteCache)(nil)
