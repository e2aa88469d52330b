// Package cache memoizes generation responses. Deliberation re-asks the same
// prompts often enough (prior estimates during reselection, repeated axiom
// checks) that a content-addressed cache meaningfully cuts spend.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized generation responses by key.
type Cache interface {
	// Get retrieves a cached value. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A non-positive ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Size    int64 `json:"size"`
	MaxSize int64 `json:"max_size"`
}

// HitRate is hits over total lookups, 0 when nothing has been asked.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config selects and sizes the cache backend.
type Config struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database file. ":memory:" keeps it in-process.
	Path string `yaml:"path"`

	// MaxSize bounds total cached bytes. Zero means unbounded.
	MaxSize int64 `yaml:"max_size" validate:"min=0"`

	// TTL expires entries after this duration. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl" validate:"min=0"`
}

// DefaultConfig is a 64 MiB in-memory cache with 24 hour expiry.
func DefaultConfig() Config {
	return Config{
		Backend: "memory",
		MaxSize: 64 << 20,
		TTL:     24 * time.Hour,
	}
}

// New builds the configured backend. An empty backend means memory.
func New(cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteCache(cfg)
	default:
		return NewMemoryCache(cfg), nil
	}
}
