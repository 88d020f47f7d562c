// Package cache provides byte-oriented block caches used to front
// remote snapshot storage. Blobs are immutable, so entries never go
// stale; they are only invalidated when a blob is overwritten or
// deleted under the same name.
package cache

import "context"

// Key identifies one fixed-size block of a named blob.
type Key struct {
	// Name is the blob name within its store.
	Name string
	// Block is the block index, byte offset divided by the block size.
	Block uint64
}

// BlockCache is a byte-oriented cache for immutable blocks. Returned
// slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. Implementations may retain b; the caller must
	// not mutate it afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close releases any resources.
	Close() error
	// Stats returns hit/miss counters.
	Stats() (hits, misses int64)
}
