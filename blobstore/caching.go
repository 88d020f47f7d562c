package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/annbind/cache"
	"golang.org/x/sync/errgroup"
)

// fillConcurrency bounds parallel backend fetches per read, to avoid
// descriptor exhaustion and backend rate limits.
const fillConcurrency = 16

// CachingStore wraps a Store and adds block-level read caching. It is
// meant to front remote stores so repeated snapshot reads do not hit
// the backend.
type CachingStore struct {
	inner     Store
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore creates a caching wrapper around inner. blockSize
// defaults to 4KB if not positive.
func NewCachingStore(inner Store, bc cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &CachingStore{inner: inner, cache: bc, blockSize: blockSize}
}

// Open opens a blob whose reads go through the block cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{inner: b, cache: s.cache, name: name, blockSize: s.blockSize}, nil
}

// Create passes through to the inner store. Cached blocks for the name
// are dropped so a rewritten blob is not served from stale cache.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

// Put writes through to the inner store, invalidating cached blocks.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob and its cached blocks.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List passes through to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.cache.Invalidate(func(key cache.Key) bool {
		return key.Name == name
	})
}

// CachingBlob serves reads from the block cache, fetching missing
// blocks from the inner blob in coalesced runs.
type CachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	size := b.inner.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if off+want > size {
		want = size - off
	}

	ctx := context.Background()
	startBlock := off / b.blockSize
	endBlock := (off + want - 1) / b.blockSize
	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	total := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		data, err := b.fetchBlock(ctx, blk)
		if err != nil {
			return total, err
		}
		blkStart := blk * b.blockSize
		lo := max(off, blkStart)
		hi := min(off+want, blkStart+int64(len(data)))
		if hi <= lo {
			continue
		}
		total += copy(p[lo-off:hi-off], data[lo-blkStart:hi-blkStart])
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fillCache loads the missing blocks in [startBlock, endBlock] into the
// cache, fetching each contiguous run of misses with a single backend
// read.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	type run struct {
		start, count int64
	}
	var missing []run

	runStart := int64(-1)
	runCount := int64(0)
	for blk := startBlock; blk <= endBlock; blk++ {
		key := cache.Key{Name: b.name, Block: uint64(blk)}
		if _, ok := b.cache.Get(ctx, key); ok {
			if runStart != -1 {
				missing = append(missing, run{runStart, runCount})
				runStart = -1
			}
			continue
		}
		if runStart == -1 {
			runStart = blk
			runCount = 1
		} else {
			runCount++
		}
	}
	if runStart != -1 {
		missing = append(missing, run{runStart, runCount})
	}
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fillConcurrency)
	for _, r := range missing {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteSize := r.count * b.blockSize
			size := b.inner.Size()
			if byteStart >= size {
				return nil
			}
			if byteStart+byteSize > size {
				byteSize = size - byteStart
			}

			buf := make([]byte, byteSize)
			n, err := b.inner.ReadAt(buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if n == 0 {
				return nil
			}
			valid := buf[:n]

			for i := int64(0); i < r.count; i++ {
				lo := i * b.blockSize
				if lo >= int64(len(valid)) {
					break
				}
				hi := min(lo+b.blockSize, int64(len(valid)))
				// Copy per block so the cache does not pin the run buffer.
				block := make([]byte, hi-lo)
				copy(block, valid[lo:hi])
				b.cache.Set(gctx, cache.Key{Name: b.name, Block: uint64(r.start + i)}, block)
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchBlock returns one block, from cache when possible. Blocks can be
// evicted between fillCache and here, so a backend fallback remains.
func (b *CachingBlob) fetchBlock(ctx context.Context, blk int64) ([]byte, error) {
	key := cache.Key{Name: b.name, Block: uint64(blk)}
	if data, ok := b.cache.Get(ctx, key); ok {
		return data, nil
	}

	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(buf, blk*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	valid := buf[:n]
	if n > 0 {
		b.cache.Set(ctx, key, valid)
	}
	return valid, nil
}
