package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondera-ai/pondera/internal/testutil"
	"github.com/pondera-ai/pondera/pkg/core"
)

func backends(t *testing.T) map[string]Cache {
	t.Helper()

	sqlite, err := NewSQLiteCache(Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)

	caches := map[string]Cache{
		"memory": NewMemoryCache(Config{}),
		"sqlite": sqlite,
	}
	for _, c := range caches {
		c := c
		t.Cleanup(func() { c.Close() })
	}
	return caches
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
			got, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v"), got)

			require.NoError(t, c.Set(ctx, "k", []byte("v2"), 0))
			got, ok, err = c.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v2"), got, "set overwrites")

			require.NoError(t, c.Delete(ctx, "k"))
			_, ok, err = c.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Delete(ctx, "k"), "deleting absent key is fine")
		})
	}
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Millisecond))
			time.Sleep(10 * time.Millisecond)

			_, ok, err := c.Get(ctx, "short")
			require.NoError(t, err)
			assert.False(t, ok, "expired entry is a miss")
		})
	}
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
			require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
			require.NoError(t, c.Clear(ctx))

			for _, key := range []string{"a", "b"} {
				_, ok, err := c.Get(ctx, key)
				require.NoError(t, err)
				assert.False(t, ok)
			}
		})
	}
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(Config{})
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("value"), 0))
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(5), stats.Size)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)
}

func TestMemoryEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(Config{MaxSize: 10})
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("aaaaa"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("bbbbb"), 0))

	// Touch "a" so "b" is the eviction candidate.
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", []byte("ccccc"), 0))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry was evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryRejectsOversizedValue(t *testing.T) {
	c := NewMemoryCache(Config{MaxSize: 4})
	defer c.Close()

	err := c.Set(context.Background(), "k", []byte("too large"), 0)
	require.Error(t, err)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := NewSQLiteCache(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Close())

	reopened, err := NewSQLiteCache(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestKeyDeterminism(t *testing.T) {
	base := core.NewGenerateOptions()

	k1 := Key("prompt", base)
	k2 := Key("prompt", base)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, Key("other prompt", base))

	fast := core.NewGenerateOptions()
	core.WithQuality(core.QualityFast)(fast)
	assert.NotEqual(t, k1, Key("prompt", fast), "quality tier is part of the key")

	hot := core.NewGenerateOptions()
	core.WithTemperature(0.9)(hot)
	assert.NotEqual(t, k1, Key("prompt", hot), "temperature is part of the key")
}

func TestCachedServiceReadThrough(t *testing.T) {
	ctx := context.Background()
	service := testutil.NewScriptedService()
	service.DefaultContent = "answer"

	cached := Wrap(service, NewMemoryCache(Config{}), nil)

	first, err := cached.Generate(ctx, "question", core.WithCapability(core.CapabilityExtraction))
	require.NoError(t, err)
	assert.Equal(t, "answer", first.Content)
	assert.Equal(t, 1, service.CallCount())

	second, err := cached.Generate(ctx, "question", core.WithCapability(core.CapabilityExtraction))
	require.NoError(t, err)
	assert.Equal(t, "answer", second.Content)
	assert.Equal(t, 1, service.CallCount(), "second call was served from cache")
	assert.Equal(t, 0, second.Usage.TotalTokens, "cache hits consume no tokens")

	_, err = cached.Generate(ctx, "different question", core.WithCapability(core.CapabilityExtraction))
	require.NoError(t, err)
	assert.Equal(t, 2, service.CallCount())

	stats := cached.Stats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCachedServiceBypassesReasoning(t *testing.T) {
	ctx := context.Background()
	service := testutil.NewScriptedService()
	service.DefaultContent = "variant"

	cached := Wrap(service, NewMemoryCache(Config{}), nil)

	_, err := cached.Generate(ctx, "question", core.WithCapability(core.CapabilityReasoning))
	require.NoError(t, err)
	_, err = cached.Generate(ctx, "question", core.WithCapability(core.CapabilityReasoning))
	require.NoError(t, err)
	assert.Equal(t, 2, service.CallCount(), "reasoning calls are never cached")

	stats := cached.Stats()
	assert.Equal(t, int64(0), stats.Sets)
}

func TestCachedServiceDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	service := &testutil.FailingService{}

	cached := Wrap(service, NewMemoryCache(Config{}), nil)

	_, err := cached.Generate(ctx, "question", core.WithCapability(core.CapabilityValidation))
	require.Error(t, err)
	_, err = cached.Generate(ctx, "question", core.WithCapability(core.CapabilityValidation))
	require.Error(t, err, "failures pass through every time")

	stats := cached.Stats()
	assert.Equal(t, int64(0), stats.Sets)
}
