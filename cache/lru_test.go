package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/annbind/resource"
)

func TestLRUBlockCache(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRUBlockCache(50, rc) // Cache limit 50, Global limit 100
	ctx := context.Background()

	k1 := Key{Name: "snapshot.bin", Block: 1}
	v1 := make([]byte, 20)

	k2 := Key{Name: "snapshot.bin", Block: 2}
	v2 := make([]byte, 20)

	k3 := Key{Name: "snapshot.bin", Block: 3}
	v3 := make([]byte, 20)

	// 1. Set k1 (20 bytes)
	c.Set(ctx, k1, v1)
	assert.Equal(t, int64(20), c.Size())
	assert.Equal(t, int64(20), rc.MemoryUsage())

	// 2. Set k2 (20 bytes) -> Total 40
	c.Set(ctx, k2, v2)
	assert.Equal(t, int64(40), c.Size())
	assert.Equal(t, int64(40), rc.MemoryUsage())

	// 3. Set k3 (20 bytes) -> Total 60 > 50. Should evict k1 (LRU).
	c.Set(ctx, k3, v3)
	assert.Equal(t, int64(40), c.Size())
	assert.Equal(t, int64(40), rc.MemoryUsage())

	_, ok := c.Get(ctx, k1)
	assert.False(t, ok, "k1 should be evicted")

	_, ok = c.Get(ctx, k2)
	assert.True(t, ok, "k2 should be present")

	_, ok = c.Get(ctx, k3)
	assert.True(t, ok, "k3 should be present")
}

func TestLRUBlockCache_GlobalLimit(t *testing.T) {
	// Global limit smaller than cache limit
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 30})
	c := NewLRUBlockCache(100, rc)
	ctx := context.Background()

	k1 := Key{Name: "snapshot.bin", Block: 1}
	v1 := make([]byte, 20)

	k2 := Key{Name: "snapshot.bin", Block: 2}
	v2 := make([]byte, 20)

	// 1. Set k1 (20 bytes)
	c.Set(ctx, k1, v1)
	assert.Equal(t, int64(20), c.Size())

	// 2. Set k2 (20 bytes) -> Total 40 > Global 30. Should fail to acquire and not cache.
	c.Set(ctx, k2, v2)
	assert.Equal(t, int64(20), c.Size())

	_, ok := c.Get(ctx, k2)
	assert.False(t, ok, "k2 should not be cached due to global limit")
}

func TestLRUBlockCache_GetTouchesEntry(t *testing.T) {
	c := NewLRUBlockCache(40, nil)
	ctx := context.Background()

	k1 := Key{Name: "a", Block: 1}
	k2 := Key{Name: "a", Block: 2}
	k3 := Key{Name: "a", Block: 3}

	c.Set(ctx, k1, make([]byte, 20))
	c.Set(ctx, k2, make([]byte, 20))

	// Touch k1 so k2 becomes the eviction candidate.
	_, ok := c.Get(ctx, k1)
	assert.True(t, ok)

	c.Set(ctx, k3, make([]byte, 20))

	_, ok = c.Get(ctx, k1)
	assert.True(t, ok, "recently used k1 should survive")
	_, ok = c.Get(ctx, k2)
	assert.False(t, ok, "least recently used k2 should be evicted")
}

func TestLRUBlockCache_OversizeBlockSkipped(t *testing.T) {
	c := NewLRUBlockCache(10, nil)
	ctx := context.Background()

	k := Key{Name: "a", Block: 0}
	c.Set(ctx, k, make([]byte, 11))

	_, ok := c.Get(ctx, k)
	assert.False(t, ok, "block larger than the cache must not be stored")
	assert.Equal(t, int64(0), c.Size())
}

func TestLRUBlockCache_UpdateExisting(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRUBlockCache(50, rc)
	ctx := context.Background()

	k := Key{Name: "a", Block: 0}

	c.Set(ctx, k, make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())

	// Grow in place.
	c.Set(ctx, k, make([]byte, 30))
	assert.Equal(t, int64(30), c.Size())
	assert.Equal(t, int64(30), rc.MemoryUsage())

	// Shrink releases budget.
	c.Set(ctx, k, make([]byte, 10))
	assert.Equal(t, int64(10), c.Size())
	assert.Equal(t, int64(10), rc.MemoryUsage())

	v, ok := c.Get(ctx, k)
	assert.True(t, ok)
	assert.Len(t, v, 10)
}

func TestLRUBlockCache_Invalidate(t *testing.T) {
	c := NewLRUBlockCache(100, nil)
	ctx := context.Background()

	c.Set(ctx, Key{Name: "a", Block: 0}, make([]byte, 10))
	c.Set(ctx, Key{Name: "a", Block: 1}, make([]byte, 10))
	c.Set(ctx, Key{Name: "b", Block: 0}, make([]byte, 10))

	c.Invalidate(func(key Key) bool { return key.Name == "a" })

	_, ok := c.Get(ctx, Key{Name: "a", Block: 0})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Name: "a", Block: 1})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Name: "b", Block: 0})
	assert.True(t, ok, "entries for other blobs must survive")
	assert.Equal(t, int64(10), c.Size())
}

func TestLRUBlockCache_Stats(t *testing.T) {
	c := NewLRUBlockCache(100, nil)
	ctx := context.Background()

	k := Key{Name: "a", Block: 0}

	_, _ = c.Get(ctx, k) // miss
	c.Set(ctx, k, make([]byte, 10))
	_, _ = c.Get(ctx, k) // hit
	_, _ = c.Get(ctx, k) // hit

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUBlockCache_CloseReturnsBudget(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRUBlockCache(50, rc)
	ctx := context.Background()

	c.Set(ctx, Key{Name: "a", Block: 0}, make([]byte, 20))
	c.Set(ctx, Key{Name: "a", Block: 1}, make([]byte, 20))
	assert.Equal(t, int64(40), rc.MemoryUsage())

	assert.NoError(t, c.Close())
	assert.Equal(t, int64(0), c.Size())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}
