package annbind

import (
	"fmt"
	"runtime"
	"runtime/cgo"
	"time"
	"unsafe"

	"github.com/hupe1980/annbind/capi"
)

// defaultReserve is the capacity claimed on the first add when the
// caller never reserved explicitly.
const defaultReserve = 1024

// Match pairs a result key with its distance to the query. Searches
// return matches in the engine's order, nearest first.
type Match struct {
	Key      uint64
	Distance float32
}

// FilterFunc decides whether a key may appear in filtered search
// results. Implementations must be fast, must not panic, and must not
// call back into the index; the engine may invoke them many times per
// query, from the calling goroutine.
type FilterFunc func(key uint64) bool

// filterTrampoline is the fixed-signature callback registered with the
// engine for every filtered search. The state word carries a cgo.Handle
// to the Go predicate; the handle lives only for the originating call.
var filterTrampoline capi.Predicate = func(key uint64, state uintptr) int32 {
	if cgo.Handle(state).Value().(FilterFunc)(key) {
		return 1
	}
	return 0
}

// Add inserts a float32 vector under key. Capacity is claimed
// automatically: defaultReserve slots on first use, doubling afterwards.
func (i *Index) Add(key uint64, vector []float32) error {
	start := time.Now()
	var err error
	if len(vector) != i.config.Dimensions {
		err = &ErrDimensionMismatch{Expected: i.config.Dimensions, Actual: len(vector)}
	} else {
		err = i.addVector(key, unsafe.Pointer(&vector[0]), capi.ScalarF32)
		runtime.KeepAlive(vector)
	}
	i.metrics.RecordAdd(time.Since(start), err)
	i.logger.LogAdd(key, len(vector), err)
	return err
}

// AddI8 inserts a pre-quantized int8 vector under key. The index must
// use QuantizationI8 storage for the codes to round-trip unchanged.
func (i *Index) AddI8(key uint64, vector []int8) error {
	start := time.Now()
	var err error
	if len(vector) != i.config.Dimensions {
		err = &ErrDimensionMismatch{Expected: i.config.Dimensions, Actual: len(vector)}
	} else {
		err = i.addVector(key, unsafe.Pointer(&vector[0]), capi.ScalarI8)
		runtime.KeepAlive(vector)
	}
	i.metrics.RecordAdd(time.Since(start), err)
	i.logger.LogAdd(key, len(vector), err)
	return err
}

func (i *Index) addVector(key uint64, vec unsafe.Pointer, kind capi.ScalarKind) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}

	// Serialize the size/capacity probe with the insert so concurrent
	// adds cannot race past a full index.
	i.addMu.Lock()
	defer i.addMu.Unlock()

	var cerr capi.Error
	size := i.table.Size(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	capacity := i.table.Capacity(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	if size >= capacity {
		need := max(uint64(defaultReserve), capacity*2)
		i.table.Reserve(i.handle, need, &cerr)
		if err := translateError(&cerr); err != nil {
			return err
		}
	}

	i.table.Add(i.handle, key, vec, kind, &cerr)
	return translateError(&cerr)
}

// Get retrieves up to maxCount vectors stored under key, decoded to
// float32. A missing key yields a nil slice and no error.
func (i *Index) Get(key uint64, maxCount int) ([][]float32, error) {
	if maxCount <= 0 {
		return nil, fmt.Errorf("%w: maxCount must be positive", ErrInvalidArgument)
	}
	dims := i.config.Dimensions
	total, ok := mulUint64(uint64(maxCount), uint64(dims))
	if !ok {
		return nil, ErrOverflow
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrClosed
	}

	buf := make([]float32, total)
	var cerr capi.Error
	found := i.table.Get(i.handle, key, uint64(maxCount), unsafe.Pointer(&buf[0]), capi.ScalarF32, &cerr)
	if err := translateError(&cerr); err != nil {
		return nil, err
	}
	if found == 0 {
		return nil, nil
	}
	out := make([][]float32, found)
	for j := range out {
		out[j] = buf[j*dims : (j+1)*dims : (j+1)*dims]
	}
	return out, nil
}

// Remove deletes every vector stored under key and reports how many
// were dropped. Removing an absent key is not an error.
func (i *Index) Remove(key uint64) (int, error) {
	start := time.Now()
	n, err := i.remove(key)
	i.metrics.RecordRemove(time.Since(start), err)
	i.logger.LogRemove(key, n, err)
	return n, err
}

func (i *Index) remove(key uint64) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Remove(i.handle, key, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Rename moves every vector stored under from to the key to, and
// reports how many moved. Renaming an absent key is not an error.
func (i *Index) Rename(from, to uint64) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Rename(i.handle, from, to, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Contains reports whether at least one vector is stored under key.
func (i *Index) Contains(key uint64) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return false, ErrClosed
	}
	var cerr capi.Error
	ok := i.table.Contains(i.handle, key, &cerr)
	if err := translateError(&cerr); err != nil {
		return false, err
	}
	return ok, nil
}

// Count returns the number of vectors stored under key. Keys of a
// non-multi index count at most one.
func (i *Index) Count(key uint64) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Count(i.handle, key, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Search returns the k nearest neighbors of query, nearest first. Fewer
// than k matches come back when the index holds fewer than k vectors.
func (i *Index) Search(query []float32, k int) ([]Match, error) {
	start := time.Now()
	matches, err := i.searchFloat(query, k, nil)
	i.metrics.RecordSearch(k, time.Since(start), err)
	i.logger.LogSearch(k, len(matches), false, err)
	return matches, err
}

// FilteredSearch returns the k nearest neighbors whose keys pass the
// filter. The predicate is bridged to the engine for the duration of
// this call only. A nil filter degrades to a plain search.
func (i *Index) FilteredSearch(query []float32, k int, filter FilterFunc) ([]Match, error) {
	start := time.Now()
	matches, err := i.searchFloat(query, k, filter)
	i.metrics.RecordSearch(k, time.Since(start), err)
	i.logger.LogSearch(k, len(matches), filter != nil, err)
	return matches, err
}

// SearchI8 searches with a pre-quantized int8 query.
func (i *Index) SearchI8(query []int8, k int) ([]Match, error) {
	start := time.Now()
	var matches []Match
	var err error
	if len(query) != i.config.Dimensions {
		err = &ErrDimensionMismatch{Expected: i.config.Dimensions, Actual: len(query)}
	} else {
		matches, err = i.searchRaw(unsafe.Pointer(&query[0]), capi.ScalarI8, k, nil)
		runtime.KeepAlive(query)
	}
	i.metrics.RecordSearch(k, time.Since(start), err)
	i.logger.LogSearch(k, len(matches), false, err)
	return matches, err
}

func (i *Index) searchFloat(query []float32, k int, filter FilterFunc) ([]Match, error) {
	if len(query) != i.config.Dimensions {
		return nil, &ErrDimensionMismatch{Expected: i.config.Dimensions, Actual: len(query)}
	}
	matches, err := i.searchRaw(unsafe.Pointer(&query[0]), capi.ScalarF32, k, filter)
	runtime.KeepAlive(query)
	return matches, err
}

// searchRaw drives the engine search with fixed-capacity result
// buffers: exactly k slots each, of which only the first found carry
// data. The engine's result order is preserved as returned.
func (i *Index) searchRaw(query unsafe.Pointer, kind capi.ScalarKind, k int, filter FilterFunc) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrClosed
	}

	keys := make([]uint64, k)
	distances := make([]float32, k)
	var cerr capi.Error
	var found uint64
	if filter == nil {
		found = i.table.Search(i.handle, query, kind, uint64(k), &keys[0], &distances[0], &cerr)
	} else {
		h := cgo.NewHandle(filter)
		found = i.table.FilteredSearch(i.handle, query, kind, uint64(k), filterTrampoline, uintptr(h), &keys[0], &distances[0], &cerr)
		h.Delete()
	}
	if err := translateError(&cerr); err != nil {
		return nil, err
	}
	if found > uint64(k) {
		found = uint64(k)
	}

	matches := make([]Match, found)
	for j := range matches {
		matches[j] = Match{Key: keys[j], Distance: distances[j]}
	}
	return matches, nil
}
