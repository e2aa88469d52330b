package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// MemoryCache is an in-process LRU cache. Expired entries are dropped lazily
// on lookup; eviction happens on insert when the byte budget is exceeded.
type MemoryCache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	size    int64
	stats   Stats
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(cfg Config) *MemoryCache {
	return &MemoryCache{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if entryExpired(entry.expiresAt) {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false, nil
	}

	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return entry.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	size := int64(len(value))
	if c.cfg.MaxSize > 0 && size > c.cfg.MaxSize {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "value exceeds cache capacity"),
			errors.Fields{"size": size, "max_size": c.cfg.MaxSize},
		)
	}

	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		c.size += size - int64(len(entry.value))
		entry.value = value
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
	} else {
		if c.cfg.MaxSize > 0 {
			c.evictLocked(c.cfg.MaxSize - size)
		}
		elem := c.lru.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
		c.entries[key] = elem
		c.size += size
	}

	c.stats.Sets++
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.MaxSize = c.cfg.MaxSize
	return stats
}

func (c *MemoryCache) Close() error { return nil }

// evictLocked removes least-recently-used entries until size <= target.
func (c *MemoryCache) evictLocked(target int64) {
	for c.size > target {
		elem := c.lru.Back()
		if elem == nil {
			return
		}
		c.removeLocked(elem)
	}
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
	c.size -= int64(len(entry.value))
}

func entryExpired(expiresAt time.Time) bool {
	return !expiresAt.IsZero() && time.Now().After(expiresAt)
}

var _ Cache = (*MemoryCache)(nil)
