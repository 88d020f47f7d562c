package annbind

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/hupe1980/annbind/capi"
)

// Index is a handle-owning wrapper around one engine index. All methods
// are safe for concurrent use. After Close, every operation returns
// ErrClosed.
type Index struct {
	mu    sync.RWMutex
	addMu sync.Mutex

	table  *capi.Table
	handle capi.Handle
	closed bool

	config  IndexConfig
	logger  *Logger
	metrics MetricsCollector

	// viewRef pins the caller buffer backing a zero-copy view so it
	// cannot be collected while the engine still reads from it.
	// viewCloser, when set, owns the mapping behind viewRef and is
	// closed once the view is replaced or the index is closed.
	viewRef    []byte
	viewCloser io.Closer
}

// NewIndex creates an index with the given configuration.
func NewIndex(config IndexConfig, optFns ...Option) (*Index, error) {
	if config.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrInvalidArgument)
	}
	if config.Connectivity == 0 {
		config.Connectivity = DefaultConnectivity
	}
	if config.ExpansionAdd == 0 {
		config.ExpansionAdd = DefaultExpansionAdd
	}
	if config.ExpansionSearch == 0 {
		config.ExpansionSearch = DefaultExpansionSearch
	}

	opts := applyOptions(optFns)

	var cerr capi.Error
	h := opts.table.Init(config.initOptions(), &cerr)
	if err := translateError(&cerr); err != nil {
		return nil, err
	}

	idx := &Index{
		table:   opts.table,
		handle:  h,
		config:  config,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}
	runtime.SetFinalizer(idx, (*Index).finalize)
	return idx, nil
}

// Config returns the configuration the index was created with.
func (i *Index) Config() IndexConfig {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.config
}

// Close releases the engine handle. It is idempotent and irreversible:
// the first call releases, later calls return nil, and the index stays
// closed even when the release itself fails. A zero-value or
// never-initialized Index closes without touching the engine.
func (i *Index) Close() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	runtime.SetFinalizer(i, nil)

	if i.table == nil || i.handle == 0 {
		return nil
	}
	var cerr capi.Error
	i.table.Free(i.handle, &cerr)
	i.handle = 0
	i.releaseViewLocked()
	err := translateError(&cerr)
	if i.logger != nil {
		i.logger.LogClose(err)
	}
	return err
}

// releaseViewLocked drops the pinned view buffer and closes the mapping
// that backed it, if any. Callers hold mu.
func (i *Index) releaseViewLocked() {
	i.viewRef = nil
	if i.viewCloser != nil {
		_ = i.viewCloser.Close()
		i.viewCloser = nil
	}
}

// finalize is the GC backstop for indexes that were never closed. The
// release error has nowhere to go and is dropped.
func (i *Index) finalize() {
	_ = i.Close()
}

// Size returns the number of vectors in the index.
func (i *Index) Size() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Size(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Capacity returns the number of vector slots currently reserved.
func (i *Index) Capacity() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Capacity(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Dimensions returns the vector width of the index.
func (i *Index) Dimensions() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Dimensions(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Connectivity returns the graph degree bound of the index.
func (i *Index) Connectivity() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.Connectivity(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// MemoryUsage returns the approximate resident bytes of the index.
func (i *Index) MemoryUsage() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.MemoryUsage(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return n, nil
}

// SerializedLength returns the exact snapshot size in bytes.
func (i *Index) SerializedLength() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	return i.serializedLengthLocked()
}

func (i *Index) serializedLengthLocked() (int, error) {
	var cerr capi.Error
	n := i.table.SerializedLength(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ExpansionAdd returns the construction-time candidate pool size.
func (i *Index) ExpansionAdd() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.ExpansionAdd(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ExpansionSearch returns the query-time candidate pool size.
func (i *Index) ExpansionSearch() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrClosed
	}
	var cerr capi.Error
	n := i.table.ExpansionSearch(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return int(n), nil
}

// HardwareAcceleration names the SIMD family the engine uses on this
// host, e.g. "avx2" or "neon". "serial" means scalar code.
func (i *Index) HardwareAcceleration() (string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return "", ErrClosed
	}
	var cerr capi.Error
	p := i.table.HardwareAcceleration(i.handle, &cerr)
	if err := translateError(&cerr); err != nil {
		return "", err
	}
	return capi.GoString(p), nil
}

// ChangeExpansionAdd adjusts the construction-time candidate pool size.
// Zero restores the engine default.
func (i *Index) ChangeExpansionAdd(expansion int) error {
	if expansion < 0 {
		return fmt.Errorf("%w: expansion must not be negative", ErrInvalidArgument)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.ChangeExpansionAdd(i.handle, uint64(expansion), &cerr)
	return translateError(&cerr)
}

// ChangeExpansionSearch adjusts the query-time candidate pool size.
// Zero restores the engine default.
func (i *Index) ChangeExpansionSearch(expansion int) error {
	if expansion < 0 {
		return fmt.Errorf("%w: expansion must not be negative", ErrInvalidArgument)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.ChangeExpansionSearch(i.handle, uint64(expansion), &cerr)
	return translateError(&cerr)
}

// ChangeThreadsAdd caps the construction thread pool of engines that
// parallelize inserts.
func (i *Index) ChangeThreadsAdd(threads int) error {
	if threads < 0 {
		return fmt.Errorf("%w: threads must not be negative", ErrInvalidArgument)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.ChangeThreadsAdd(i.handle, uint64(threads), &cerr)
	return translateError(&cerr)
}

// ChangeThreadsSearch caps the query thread pool of engines that
// parallelize searches.
func (i *Index) ChangeThreadsSearch(threads int) error {
	if threads < 0 {
		return fmt.Errorf("%w: threads must not be negative", ErrInvalidArgument)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.ChangeThreadsSearch(i.handle, uint64(threads), &cerr)
	return translateError(&cerr)
}

// ChangeMetric swaps the distance function of the index. Stored vectors
// are not re-encoded; only comparisons change.
func (i *Index) ChangeMetric(metric Metric) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.ChangeMetric(i.handle, metric.kind(), &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.config.Metric = metric
	return nil
}

// Reserve grows the index to hold at least capacity vectors. Adds
// reserve automatically; explicit reservation just avoids regrowth
// inside hot loops.
func (i *Index) Reserve(capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidArgument)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.Reserve(i.handle, uint64(capacity), &cerr)
	return translateError(&cerr)
}

// Clear removes every vector but keeps the configuration and reserved
// capacity.
func (i *Index) Clear() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	var cerr capi.Error
	i.table.Clear(i.handle, &cerr)
	return translateError(&cerr)
}
