package engine

import (
	"sync"
	"unsafe"

	"github.com/hupe1980/annbind/capi"
)

// Version is the engine release reported through the function table.
const Version = "1.0.0"

var (
	versionStr = capi.CString(Version)
	accelStr   = capi.CString(acceleration())
)

var (
	registryMu sync.RWMutex
	registry   = make(map[capi.Handle]*index)
	lastHandle capi.Handle
)

func register(x *index) capi.Handle {
	registryMu.Lock()
	defer registryMu.Unlock()
	lastHandle++
	registry[lastHandle] = x
	return lastHandle
}

func lookup(h capi.Handle, errOut *capi.Error) *index {
	registryMu.RLock()
	x := registry[h]
	registryMu.RUnlock()
	if x == nil {
		fail(errOut, msgInvalidHandle)
	}
	return x
}

var (
	tableOnce sync.Once
	table     *capi.Table
)

// Table returns the function table of the in-process engine. The table
// is a process-wide singleton; handles minted by it are only valid
// against it.
func Table() *capi.Table {
	tableOnce.Do(func() {
		table = buildTable()
	})
	return table
}

func buildTable() *capi.Table {
	return &capi.Table{
		Init: func(opts *capi.InitOptions, errOut *capi.Error) capi.Handle {
			x, err := newIndex(opts)
			if err != nil {
				fail(errOut, "%s", err)
				return 0
			}
			return register(x)
		},
		Free: func(h capi.Handle, errOut *capi.Error) {
			registryMu.Lock()
			x := registry[h]
			delete(registry, h)
			registryMu.Unlock()
			if x == nil {
				fail(errOut, msgInvalidHandle)
				return
			}
			x.mu.Lock()
			x.releaseView()
			x.mu.Unlock()
		},

		Save: func(h capi.Handle, path *byte, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.saveFile(capi.GoString(path)); err != nil {
				fail(errOut, "%s", err)
			}
		},
		Load: func(h capi.Handle, path *byte, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.loadFile(capi.GoString(path)); err != nil {
				fail(errOut, "%s", err)
			}
		},
		View: func(h capi.Handle, path *byte, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.viewFile(capi.GoString(path)); err != nil {
				fail(errOut, "%s", err)
			}
		},
		SaveBuffer: func(h capi.Handle, buf unsafe.Pointer, length uint64, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.saveBuffer(unsafe.Slice((*byte)(buf), length)); err != nil {
				fail(errOut, "%s", err)
			}
		},
		LoadBuffer: func(h capi.Handle, buf unsafe.Pointer, length uint64, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.loadBuffer(unsafe.Slice((*byte)(buf), length)); err != nil {
				fail(errOut, "%s", err)
			}
		},
		ViewBuffer: func(h capi.Handle, buf unsafe.Pointer, length uint64, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.viewBuffer(unsafe.Slice((*byte)(buf), length)); err != nil {
				fail(errOut, "%s", err)
			}
		},

		Metadata: func(path *byte, opts *capi.InitOptions, errOut *capi.Error) {
			meta, err := readMetadataFile(capi.GoString(path))
			if err != nil {
				fail(errOut, "%s", err)
				return
			}
			*opts = *meta
		},
		MetadataBuffer: func(buf unsafe.Pointer, length uint64, opts *capi.InitOptions, errOut *capi.Error) {
			meta, err := readMetadata(unsafe.Slice((*byte)(buf), length))
			if err != nil {
				fail(errOut, "%s", err)
				return
			}
			*opts = *meta
		},

		Size: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			size, _, _, _, _, _ := x.stats()
			return size
		},
		Capacity: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			_, capacity, _, _, _, _ := x.stats()
			return capacity
		},
		Dimensions: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			_, _, dims, _, _, _ := x.stats()
			return dims
		},
		Connectivity: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			_, _, _, conn, _, _ := x.stats()
			return conn
		},
		MemoryUsage: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			return x.memoryUsage()
		},
		SerializedLength: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			return x.serializedLength()
		},
		ExpansionAdd: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			_, _, _, _, expAdd, _ := x.stats()
			return expAdd
		},
		ExpansionSearch: func(h capi.Handle, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			_, _, _, _, _, expSearch := x.stats()
			return expSearch
		},
		HardwareAcceleration: func(h capi.Handle, errOut *capi.Error) *byte {
			if lookup(h, errOut) == nil {
				return nil
			}
			return &accelStr[0]
		},

		ChangeExpansionAdd: func(h capi.Handle, expansion uint64, errOut *capi.Error) {
			if x := lookup(h, errOut); x != nil {
				x.setExpansionAdd(int(expansion))
			}
		},
		ChangeExpansionSearch: func(h capi.Handle, expansion uint64, errOut *capi.Error) {
			if x := lookup(h, errOut); x != nil {
				x.setExpansionSearch(int(expansion))
			}
		},
		ChangeThreadsAdd: func(h capi.Handle, threads uint64, errOut *capi.Error) {
			if x := lookup(h, errOut); x != nil {
				x.setThreadsAdd(int(threads))
			}
		},
		ChangeThreadsSearch: func(h capi.Handle, threads uint64, errOut *capi.Error) {
			if x := lookup(h, errOut); x != nil {
				x.setThreadsSearch(int(threads))
			}
		},
		ChangeMetric: func(h capi.Handle, metric capi.MetricKind, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.setMetric(metric); err != nil {
				fail(errOut, "%s", err)
			}
		},

		Reserve: func(h capi.Handle, capacity uint64, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.reserve(int(capacity)); err != nil {
				fail(errOut, "%s", err)
			}
		},
		Add: func(h capi.Handle, key uint64, vector unsafe.Pointer, kind capi.ScalarKind, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.add(key, vector, kind); err != nil {
				fail(errOut, "%s", err)
			}
		},
		Get: func(h capi.Handle, key uint64, maxCount uint64, vectors unsafe.Pointer, kind capi.ScalarKind, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			n, err := x.get(key, int(maxCount), vectors, kind)
			if err != nil {
				fail(errOut, "%s", err)
				return 0
			}
			return uint64(n)
		},
		Remove: func(h capi.Handle, key uint64, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			n, err := x.remove(key)
			if err != nil {
				fail(errOut, "%s", err)
				return 0
			}
			return uint64(n)
		},
		Rename: func(h capi.Handle, from, to uint64, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			n, err := x.rename(from, to)
			if err != nil {
				fail(errOut, "%s", err)
				return 0
			}
			return uint64(n)
		},
		Contains: func(h capi.Handle, key uint64, errOut *capi.Error) bool {
			x := lookup(h, errOut)
			if x == nil {
				return false
			}
			return x.contains(key)
		},
		Count: func(h capi.Handle, key uint64, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			return uint64(x.countOf(key))
		},
		Clear: func(h capi.Handle, errOut *capi.Error) {
			x := lookup(h, errOut)
			if x == nil {
				return
			}
			if err := x.clearAll(); err != nil {
				fail(errOut, "%s", err)
			}
		},

		Search: func(h capi.Handle, query unsafe.Pointer, kind capi.ScalarKind, count uint64, keys *uint64, distances *float32, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			n, err := x.search(query, kind, int(count), nil, 0, keys, distances)
			if err != nil {
				fail(errOut, "%s", err)
				return 0
			}
			return uint64(n)
		},
		FilteredSearch: func(h capi.Handle, query unsafe.Pointer, kind capi.ScalarKind, count uint64, predicate capi.Predicate, state uintptr, keys *uint64, distances *float32, errOut *capi.Error) uint64 {
			x := lookup(h, errOut)
			if x == nil {
				return 0
			}
			n, err := x.search(query, kind, int(count), predicate, state, keys, distances)
			if err != nil {
				fail(errOut, "%s", err)
				return 0
			}
			return uint64(n)
		},
		ExactSearch: func(dataset unsafe.Pointer, datasetCount, datasetStride uint64, queries unsafe.Pointer, queryCount, queryStride uint64, kind capi.ScalarKind, dimensions uint64, metric capi.MetricKind, count, threads uint64, keys *uint64, keysStride uint64, distances *float32, distancesStride uint64, errOut *capi.Error) {
			err := exactSearch(dataset, datasetCount, datasetStride,
				queries, queryCount, queryStride,
				kind, dimensions, metric, count, threads,
				keys, keysStride, distances, distancesStride)
			if err != nil {
				fail(errOut, "%s", err)
			}
		},
		Distance: func(a, b unsafe.Pointer, kind capi.ScalarKind, dimensions uint64, metric capi.MetricKind, errOut *capi.Error) float32 {
			if dimensions == 0 {
				fail(errOut, msgBadDimensions)
				return 0
			}
			va := make([]float32, dimensions)
			vb := make([]float32, dimensions)
			if !decodeRow(a, kind, va) || !decodeRow(b, kind, vb) {
				fail(errOut, msgBadScalar, kind)
				return 0
			}
			if bk := bitKernel(metric); bk != nil {
				words := (int(dimensions) + 63) / 64
				return bk(packBits(va, words), packBits(vb, words))
			}
			k := scalarKernel(metric)
			if k == nil {
				fail(errOut, msgBadMetric, metric)
				return 0
			}
			return k(va, vb)
		},

		Version: func() *byte {
			return &versionStr[0]
		},
	}
}
