package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/annbind/capi"
	"github.com/hupe1980/annbind/internal/mmap"
)

const (
	defaultConnectivity    = 16
	defaultExpansionAdd    = 128
	defaultExpansionSearch = 64
)

// index is the in-process implementation behind a capi.Handle. All
// public entry points lock; graph helpers assume the caller holds mu.
type index struct {
	mu sync.RWMutex

	metric capi.MetricKind
	quant  capi.ScalarKind
	dims   int
	conn   int

	expansionAdd    int
	expansionSearch int
	threadsAdd      int
	threadsSearch   int
	multi           bool

	ml  float64
	rng *rand.Rand

	vs    *store
	nodes []node
	byKey map[uint64][]uint32

	// Removed slots: tombstoned until reused or compacted on save. The
	// graph keeps routing through them so recall does not collapse.
	tombs *roaring.Bitmap
	free  []uint32

	reserved int
	entry    uint32
	maxLevel int
	hasEntry bool

	// View state. A view index is immutable; vectors resolve against
	// the snapshot payload and viewMap pins a file mapping when the
	// snapshot came from disk.
	viewMode bool
	viewMap  *mmap.Mapping
}

func newIndex(opts *capi.InitOptions) (*index, error) {
	if opts == nil || opts.Dimensions == 0 {
		return nil, errors.New(msgBadDimensions)
	}
	metric := opts.Metric
	if metric == capi.MetricUnknown {
		metric = capi.MetricCos
	}
	if scalarKernel(metric) == nil && bitKernel(metric) == nil {
		return nil, fmt.Errorf(msgBadMetric, metric)
	}
	quant := opts.Quantization
	if quant == capi.ScalarUnknown {
		quant = capi.ScalarF32
	}
	switch quant {
	case capi.ScalarF32, capi.ScalarF64, capi.ScalarF16, capi.ScalarBF16, capi.ScalarI8, capi.ScalarB1:
	default:
		return nil, fmt.Errorf(msgBadScalar, quant)
	}
	conn := int(opts.Connectivity)
	if conn == 0 {
		conn = defaultConnectivity
	}
	if conn < 2 {
		conn = 2
	}
	expAdd := int(opts.ExpansionAdd)
	if expAdd == 0 {
		expAdd = defaultExpansionAdd
	}
	expSearch := int(opts.ExpansionSearch)
	if expSearch == 0 {
		expSearch = defaultExpansionSearch
	}
	return &index{
		metric:          metric,
		quant:           quant,
		dims:            int(opts.Dimensions),
		conn:            conn,
		expansionAdd:    expAdd,
		expansionSearch: expSearch,
		multi:           opts.Multi,
		ml:              1 / math.Log(float64(conn)),
		rng:             rand.New(rand.NewSource(42)),
		vs:              newStore(quant, int(opts.Dimensions)),
		byKey:           make(map[uint64][]uint32),
		tombs:           roaring.New(),
	}, nil
}

func (x *index) size() int {
	return len(x.nodes) - int(x.tombs.GetCardinality())
}

func (x *index) reserve(n int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.viewMode {
		return errors.New(msgImmutableView)
	}
	if n > x.reserved {
		x.reserved = n
	}
	x.vs.grow(n)
	if n > len(x.nodes) {
		x.nodes = slices.Grow(x.nodes, n-len(x.nodes))
	}
	return nil
}

// decodeInput copies an ABI vector of the given kind into float32 form.
func decodeInput(vec unsafe.Pointer, kind capi.ScalarKind, dims int) ([]float32, error) {
	out := make([]float32, dims)
	if !decodeRow(vec, kind, out) {
		return nil, fmt.Errorf(msgBadScalar, kind)
	}
	return out, nil
}

func (x *index) add(key uint64, vec unsafe.Pointer, kind capi.ScalarKind) error {
	v, err := decodeInput(vec, kind, x.dims)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.viewMode {
		return errors.New(msgImmutableView)
	}
	if !x.multi && len(x.byKey[key]) > 0 {
		return fmt.Errorf(msgDuplicateKey, key)
	}
	if len(x.free) == 0 && len(x.nodes) >= x.reserved {
		return errors.New(msgNeedsReserve)
	}

	slot := x.allocSlot(v)
	x.byKey[key] = append(x.byKey[key], slot)

	level := x.randomLevel()
	x.nodes[slot].key = key
	x.nodes[slot].links = make([][]uint32, level+1)

	if !x.hasEntry {
		x.entry = slot
		x.maxLevel = level
		x.hasEntry = true
		return nil
	}

	ctx := x.newSearchCtx(v)
	ep := candidate{slot: x.entry, dist: x.distTo(ctx, x.entry)}
	ep = x.descend(ctx, ep, x.maxLevel, min(level, x.maxLevel))

	for l := min(level, x.maxLevel); l >= 0; l-- {
		results := x.searchLayer(ctx, ep, x.expansionAdd, l, nil)
		neighbors := x.selectNeighbors(ctx, results, x.levelBudget(l))
		for _, nb := range neighbors {
			if nb == slot {
				continue
			}
			x.linkAt(ctx, slot, nb, l)
		}
		if len(neighbors) > 0 {
			ep = candidate{slot: neighbors[0], dist: x.distTo(ctx, neighbors[0])}
		}
	}

	if level > x.maxLevel {
		x.entry = slot
		x.maxLevel = level
	}
	return nil
}

// allocSlot claims a slot for a new vector, reusing a tombstoned one
// when available. Stale inbound links to a reused slot stay valid
// edges; they now route through the new vector.
func (x *index) allocSlot(v []float32) uint32 {
	if n := len(x.free); n > 0 {
		slot := x.free[n-1]
		x.free = x.free[:n-1]
		x.tombs.Remove(slot)
		x.vs.setVector(int(slot), v)
		return slot
	}
	slot := uint32(x.vs.appendVector(v))
	x.nodes = append(x.nodes, node{})
	return slot
}

func (x *index) search(query unsafe.Pointer, kind capi.ScalarKind, k int, pred capi.Predicate, state uintptr, keys *uint64, distances *float32) (int, error) {
	q, err := decodeInput(query, kind, x.dims)
	if err != nil {
		return 0, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.hasEntry || x.size() == 0 || k <= 0 {
		return 0, nil
	}

	ctx := x.newSearchCtx(q)
	allow := func(slot uint32) bool {
		if x.tombs.Contains(slot) {
			return false
		}
		return pred == nil || pred(x.nodes[slot].key, state) != 0
	}

	ep := candidate{slot: x.entry, dist: x.distTo(ctx, x.entry)}
	ep = x.descend(ctx, ep, x.maxLevel, 0)

	ef := x.expansionSearch
	if ef < k {
		ef = k
	}
	results := x.searchLayer(ctx, ep, ef, 0, allow)
	asc := results.drainAscending()
	if len(asc) > k {
		asc = asc[:k]
	}

	outKeys := unsafe.Slice(keys, k)
	outDists := unsafe.Slice(distances, k)
	for i, c := range asc {
		outKeys[i] = x.nodes[c.slot].key
		outDists[i] = c.dist
	}
	return len(asc), nil
}

func (x *index) get(key uint64, maxCount int, vectors unsafe.Pointer, kind capi.ScalarKind) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	slots := x.byKey[key]
	if len(slots) == 0 || maxCount == 0 {
		return 0, nil
	}
	n := min(len(slots), maxCount)
	scratch := make([]float32, x.dims)
	for i := 0; i < n; i++ {
		if !x.vs.writeOut(int(slots[i]), vectors, i, kind, scratch) {
			return 0, fmt.Errorf(msgBadScalar, kind)
		}
	}
	return n, nil
}

// remove tombstones every vector stored under key. Removing an absent
// key is not an error; the caller learns the count.
func (x *index) remove(key uint64) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.viewMode {
		return 0, errors.New(msgImmutableView)
	}
	slots := x.byKey[key]
	if len(slots) == 0 {
		return 0, nil
	}
	for _, slot := range slots {
		x.tombs.Add(slot)
		x.free = append(x.free, slot)
	}
	delete(x.byKey, key)
	return len(slots), nil
}

func (x *index) rename(from, to uint64) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.viewMode {
		return 0, errors.New(msgImmutableView)
	}
	if from == to {
		return len(x.byKey[from]), nil
	}
	slots := x.byKey[from]
	if len(slots) == 0 {
		return 0, nil
	}
	if !x.multi && len(x.byKey[to]) > 0 {
		return 0, fmt.Errorf(msgDuplicateKey, to)
	}
	for _, slot := range slots {
		x.nodes[slot].key = to
	}
	x.byKey[to] = append(x.byKey[to], slots...)
	delete(x.byKey, from)
	return len(slots), nil
}

func (x *index) contains(key uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byKey[key]) > 0
}

func (x *index) countOf(key uint64) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byKey[key])
}

// clearAll drops every vector but keeps the configuration and reserved
// capacity.
func (x *index) clearAll() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.viewMode {
		return errors.New(msgImmutableView)
	}
	x.vs.clear()
	x.nodes = x.nodes[:0]
	x.byKey = make(map[uint64][]uint32)
	x.tombs.Clear()
	x.free = x.free[:0]
	x.hasEntry = false
	x.maxLevel = 0
	x.entry = 0
	return nil
}

func (x *index) stats() (size, capacity, dims, conn, expAdd, expSearch uint64) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return uint64(x.size()), uint64(max(x.reserved, len(x.nodes))), uint64(x.dims),
		uint64(x.conn), uint64(x.expansionAdd), uint64(x.expansionSearch)
}

func (x *index) setExpansionAdd(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if n <= 0 {
		n = defaultExpansionAdd
	}
	x.expansionAdd = n
}

func (x *index) setExpansionSearch(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if n <= 0 {
		n = defaultExpansionSearch
	}
	x.expansionSearch = n
}

func (x *index) setThreadsAdd(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.threadsAdd = n
}

func (x *index) setThreadsSearch(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.threadsSearch = n
}

// setMetric swaps the distance function. Existing vectors keep their
// encoding; only comparisons change.
func (x *index) setMetric(m capi.MetricKind) error {
	if scalarKernel(m) == nil && bitKernel(m) == nil {
		return fmt.Errorf(msgBadMetric, m)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.metric = m
	return nil
}

// memoryUsage approximates resident bytes: payload, graph links, and the
// key map.
func (x *index) memoryUsage() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	total := x.vs.memory()
	total += uint64(cap(x.nodes)) * uint64(unsafe.Sizeof(node{}))
	for i := range x.nodes {
		for _, l := range x.nodes[i].links {
			total += uint64(cap(l)) * 4
		}
	}
	total += uint64(len(x.byKey)) * 40
	total += x.tombs.GetSizeInBytes()
	return total
}

func (x *index) releaseView() {
	if x.viewMap != nil {
		_ = x.viewMap.Close()
		x.viewMap = nil
	}
}
