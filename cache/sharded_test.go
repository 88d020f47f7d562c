package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/annbind/resource"
)

func TestShardedLRUBlockCache(t *testing.T) {
	c := NewShardedLRUBlockCache(64*1024, nil)
	ctx := context.Background()

	// Spread keys across shards.
	for i := 0; i < 128; i++ {
		c.Set(ctx, Key{Name: "snapshot.bin", Block: uint64(i)}, []byte{byte(i)})
	}

	for i := 0; i < 128; i++ {
		v, ok := c.Get(ctx, Key{Name: "snapshot.bin", Block: uint64(i)})
		assert.True(t, ok, "block %d should be cached", i)
		assert.Equal(t, []byte{byte(i)}, v)
	}

	assert.Equal(t, int64(128), c.Size())

	hits, misses := c.Stats()
	assert.Equal(t, int64(128), hits)
	assert.Equal(t, int64(0), misses)

	_, ok := c.Get(ctx, Key{Name: "snapshot.bin", Block: 1000})
	assert.False(t, ok)

	_, misses = c.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestShardedLRUBlockCache_Invalidate(t *testing.T) {
	c := NewShardedLRUBlockCache(64*1024, nil)
	ctx := context.Background()

	for i := 0; i < 64; i++ {
		c.Set(ctx, Key{Name: "a", Block: uint64(i)}, []byte{1})
		c.Set(ctx, Key{Name: "b", Block: uint64(i)}, []byte{2})
	}

	// Invalidation must reach every shard.
	c.Invalidate(func(key Key) bool { return key.Name == "a" })

	for i := 0; i < 64; i++ {
		_, ok := c.Get(ctx, Key{Name: "a", Block: uint64(i)})
		assert.False(t, ok, "a/%d should be invalidated", i)
		_, ok = c.Get(ctx, Key{Name: "b", Block: uint64(i)})
		assert.True(t, ok, "b/%d should survive", i)
	}

	assert.Equal(t, int64(64), c.Size())
}

func TestShardedLRUBlockCache_GlobalBudget(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 50})
	c := NewShardedLRUBlockCache(64*1024, rc)
	ctx := context.Background()

	// The shared controller caps total cached bytes across all shards.
	for i := 0; i < 10; i++ {
		c.Set(ctx, Key{Name: "a", Block: uint64(i)}, make([]byte, 10))
	}

	assert.LessOrEqual(t, c.Size(), int64(50))
	assert.LessOrEqual(t, rc.MemoryUsage(), int64(50))

	assert.NoError(t, c.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestShardedLRUBlockCache_Concurrent(t *testing.T) {
	c := NewShardedLRUBlockCache(1024*1024, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			name := fmt.Sprintf("blob-%d", g)
			for i := 0; i < 100; i++ {
				key := Key{Name: name, Block: uint64(i)}
				c.Set(ctx, key, []byte{byte(g), byte(i)})
				v, ok := c.Get(ctx, key)
				if !ok || v[0] != byte(g) || v[1] != byte(i) {
					t.Errorf("lost or corrupted block %s/%d", name, i)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, int64(8*100*2), c.Size())
}

func TestShardedLRUBlockCache_TinyCapacity(t *testing.T) {
	// Capacity below the shard count still yields usable shards.
	c := NewShardedLRUBlockCache(8, nil)
	ctx := context.Background()

	k := Key{Name: "a", Block: 0}
	c.Set(ctx, k, []byte{42})

	v, ok := c.Get(ctx, k)
	assert.True(t, ok)
	assert.Equal(t, []byte{42}, v)
}
