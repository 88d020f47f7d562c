package annbind

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"
	"unsafe"

	"github.com/hupe1980/annbind/blobstore"
	"github.com/hupe1980/annbind/capi"
)

// MetadataFromFile reads the configuration of a persisted index from
// the snapshot header, without materializing vectors or graph.
func MetadataFromFile(path string, optFns ...Option) (IndexConfig, error) {
	if path == "" {
		return IndexConfig{}, fmt.Errorf("%w: path must not be empty", ErrInvalidArgument)
	}
	o := applyOptions(optFns)

	cpath := capi.CString(path)
	var meta capi.InitOptions
	var cerr capi.Error
	o.table.Metadata(&cpath[0], &meta, &cerr)
	runtime.KeepAlive(cpath)
	if err := translateError(&cerr); err != nil {
		return IndexConfig{}, err
	}
	return configFromOptions(&meta), nil
}

// MetadataFromBuffer reads the configuration of a serialized index from
// the snapshot header in data.
func MetadataFromBuffer(data []byte, optFns ...Option) (IndexConfig, error) {
	if len(data) == 0 {
		return IndexConfig{}, fmt.Errorf("%w: buffer must not be empty", ErrInvalidArgument)
	}
	o := applyOptions(optFns)

	var meta capi.InitOptions
	var cerr capi.Error
	o.table.MetadataBuffer(unsafe.Pointer(&data[0]), uint64(len(data)), &meta, &cerr)
	runtime.KeepAlive(data)
	if err := translateError(&cerr); err != nil {
		return IndexConfig{}, err
	}
	return configFromOptions(&meta), nil
}

// NewFromFile creates an index by copying a snapshot file into memory.
// The file is not needed after the call returns.
func NewFromFile(path string, optFns ...Option) (*Index, error) {
	config, err := MetadataFromFile(path, optFns...)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(config, optFns...)
	if err != nil {
		return nil, err
	}
	if err := idx.LoadFromFile(path); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// NewViewFromFile creates a read-only index served directly from a
// memory-mapped snapshot file, without copying vector data.
//
// IMPORTANT: the returned index must be Close()'d to unmap the file,
// and the file must not change on disk while the view is open.
func NewViewFromFile(path string, optFns ...Option) (*Index, error) {
	config, err := MetadataFromFile(path, optFns...)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(config, optFns...)
	if err != nil {
		return nil, err
	}
	if err := idx.ViewFromFile(path); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// NewFromBuffer creates an index by copying a serialized snapshot out
// of data. The buffer may be reused after the call returns.
func NewFromBuffer(data []byte, optFns ...Option) (*Index, error) {
	config, err := MetadataFromBuffer(data, optFns...)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(config, optFns...)
	if err != nil {
		return nil, err
	}
	if err := idx.FromBytes(data); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// NewViewFromBuffer creates a read-only index served directly from
// data without copying. See ViewBytes for the buffer obligations.
func NewViewFromBuffer(data []byte, optFns ...Option) (*Index, error) {
	config, err := MetadataFromBuffer(data, optFns...)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(config, optFns...)
	if err != nil {
		return nil, err
	}
	if err := idx.ViewBytes(data); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// SaveToFile writes a snapshot of the index to path, overwriting any
// existing file.
func (i *Index) SaveToFile(path string) error {
	start := time.Now()
	err := i.saveToFile(path)
	i.metrics.RecordPersist("save", time.Since(start), err)
	i.logger.LogPersist("save", path, err)
	return err
}

func (i *Index) saveToFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path must not be empty", ErrInvalidArgument)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrClosed
	}
	cpath := capi.CString(path)
	var cerr capi.Error
	i.table.Save(i.handle, &cpath[0], &cerr)
	runtime.KeepAlive(cpath)
	return translateError(&cerr)
}

// LoadFromFile replaces the index contents with a snapshot copied from
// path. The index adopts the snapshot's configuration, including its
// dimensionality and metric.
func (i *Index) LoadFromFile(path string) error {
	start := time.Now()
	err := i.loadFromFile(path)
	i.metrics.RecordPersist("load", time.Since(start), err)
	i.logger.LogPersist("load", path, err)
	return err
}

func (i *Index) loadFromFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path must not be empty", ErrInvalidArgument)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}

	cpath := capi.CString(path)
	var meta capi.InitOptions
	var cerr capi.Error
	i.table.Metadata(&cpath[0], &meta, &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.table.Load(i.handle, &cpath[0], &cerr)
	runtime.KeepAlive(cpath)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.config = configFromOptions(&meta)
	i.releaseViewLocked()
	return nil
}

// ViewFromFile replaces the index contents with a zero-copy view of a
// snapshot file. The engine memory-maps the file; the resulting index
// is read-only and the mapping lives until Close.
func (i *Index) ViewFromFile(path string) error {
	start := time.Now()
	err := i.viewFromFile(path)
	i.metrics.RecordPersist("view", time.Since(start), err)
	i.logger.LogPersist("view", path, err)
	return err
}

func (i *Index) viewFromFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path must not be empty", ErrInvalidArgument)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}

	cpath := capi.CString(path)
	var meta capi.InitOptions
	var cerr capi.Error
	i.table.Metadata(&cpath[0], &meta, &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.table.View(i.handle, &cpath[0], &cerr)
	runtime.KeepAlive(cpath)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.config = configFromOptions(&meta)
	i.releaseViewLocked()
	return nil
}

// ToBytes serializes the index into a fresh buffer sized by asking the
// engine for the exact serialized length first.
func (i *Index) ToBytes() ([]byte, error) {
	start := time.Now()
	buf, err := i.toBytes()
	i.metrics.RecordPersist("to_bytes", time.Since(start), err)
	i.logger.LogPersist("to_bytes", "buffer", err)
	return buf, err
}

func (i *Index) toBytes() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrClosed
	}

	length, err := i.serializedLengthLocked()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	var cerr capi.Error
	i.table.SaveBuffer(i.handle, unsafe.Pointer(&buf[0]), uint64(len(buf)), &cerr)
	if err := translateError(&cerr); err != nil {
		return nil, err
	}
	return buf, nil
}

// FromBytes replaces the index contents with a snapshot copied out of
// data. The buffer may be reused afterwards. The index adopts the
// snapshot's configuration.
func (i *Index) FromBytes(data []byte) error {
	start := time.Now()
	err := i.fromBytes(data)
	i.metrics.RecordPersist("from_bytes", time.Since(start), err)
	i.logger.LogPersist("from_bytes", "buffer", err)
	return err
}

func (i *Index) fromBytes(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: buffer must not be empty", ErrInvalidArgument)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}

	var meta capi.InitOptions
	var cerr capi.Error
	i.table.MetadataBuffer(unsafe.Pointer(&data[0]), uint64(len(data)), &meta, &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.table.LoadBuffer(i.handle, unsafe.Pointer(&data[0]), uint64(len(data)), &cerr)
	runtime.KeepAlive(data)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.config = configFromOptions(&meta)
	i.releaseViewLocked()
	return nil
}

// ViewBytes replaces the index contents with a zero-copy view over
// data. The resulting index is read-only.
//
// IMPORTANT: the caller must keep data alive and unmodified for the
// full lifetime of the index; the engine serves vectors straight from
// it. The index pins the slice against collection, but a caller that
// mutates or reuses the backing array corrupts the view.
func (i *Index) ViewBytes(data []byte) error {
	start := time.Now()
	err := i.viewBytes(data)
	i.metrics.RecordPersist("view_bytes", time.Since(start), err)
	i.logger.LogPersist("view_bytes", "buffer", err)
	return err
}

func (i *Index) viewBytes(data []byte) error {
	return i.viewBuffer(data, nil)
}

// viewBuffer installs a zero-copy view over data. closer, when non-nil,
// owns the mapping behind data and is closed once the view is replaced
// or the index is closed. On error the closer is not adopted.
func (i *Index) viewBuffer(data []byte, closer io.Closer) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: buffer must not be empty", ErrInvalidArgument)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}

	var meta capi.InitOptions
	var cerr capi.Error
	i.table.MetadataBuffer(unsafe.Pointer(&data[0]), uint64(len(data)), &meta, &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.table.ViewBuffer(i.handle, unsafe.Pointer(&data[0]), uint64(len(data)), &cerr)
	if err := translateError(&cerr); err != nil {
		return err
	}
	i.config = configFromOptions(&meta)
	i.releaseViewLocked()
	i.viewRef = data
	i.viewCloser = closer
	return nil
}

// SaveTo serializes the index and writes the snapshot to a blob store
// under name.
func (i *Index) SaveTo(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()
	err := i.saveTo(ctx, store, name)
	i.metrics.RecordPersist("save", time.Since(start), err)
	i.logger.LogPersist("save", name, err)
	return err
}

func (i *Index) saveTo(ctx context.Context, store blobstore.Store, name string) error {
	if store == nil {
		return fmt.Errorf("%w: store must not be nil", ErrInvalidArgument)
	}
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	buf, err := i.toBytes()
	if err != nil {
		return err
	}
	return store.Put(ctx, name, buf)
}

// LoadFrom replaces the index contents with a snapshot fetched from a
// blob store. The blob is copied; mappable blobs avoid one extra copy.
func (i *Index) LoadFrom(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()
	err := i.loadFrom(ctx, store, name)
	i.metrics.RecordPersist("load", time.Since(start), err)
	i.logger.LogPersist("load", name, err)
	return err
}

func (i *Index) loadFrom(ctx context.Context, store blobstore.Store, name string) error {
	if store == nil {
		return fmt.Errorf("%w: store must not be nil", ErrInvalidArgument)
	}
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	blob, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(blob)
	if err != nil {
		return err
	}
	return i.fromBytes(data)
}

// ViewFrom replaces the index contents with a zero-copy view of a
// snapshot in a blob store. When the blob is mappable the view reads
// straight from the mapping, which stays open until the view is
// replaced or the index is closed; otherwise the snapshot is copied
// into memory first.
func (i *Index) ViewFrom(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()
	err := i.viewFrom(ctx, store, name)
	i.metrics.RecordPersist("view", time.Since(start), err)
	i.logger.LogPersist("view", name, err)
	return err
}

func (i *Index) viewFrom(ctx context.Context, store blobstore.Store, name string) error {
	if store == nil {
		return fmt.Errorf("%w: store must not be nil", ErrInvalidArgument)
	}
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	blob, err := store.Open(ctx, name)
	if err != nil {
		return err
	}

	if m, ok := blob.(blobstore.Mappable); ok {
		if data, err := m.Bytes(); err == nil {
			if err := i.viewBuffer(data, blob); err != nil {
				_ = blob.Close()
				return err
			}
			return nil
		}
	}

	data, err := blobstore.ReadAll(blob)
	_ = blob.Close()
	if err != nil {
		return err
	}
	return i.viewBytes(data)
}

// NewFromStore creates an index from a snapshot stored in a blob store.
func NewFromStore(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store must not be nil", ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(blob)
	if err != nil {
		return nil, err
	}
	return NewFromBuffer(data, optFns...)
}

// NewViewFromStore creates a read-only view of a snapshot stored in a
// blob store, zero-copy when the blob is mappable.
func NewViewFromStore(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store must not be nil", ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	var data []byte
	var closer io.Closer
	if m, ok := blob.(blobstore.Mappable); ok {
		if b, err := m.Bytes(); err == nil {
			data = b
			closer = blob
		}
	}
	if data == nil {
		data, err = blobstore.ReadAll(blob)
		_ = blob.Close()
		if err != nil {
			return nil, err
		}
	}

	fail := func(err error) (*Index, error) {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	config, err := MetadataFromBuffer(data, optFns...)
	if err != nil {
		return fail(err)
	}
	idx, err := NewIndex(config, optFns...)
	if err != nil {
		return fail(err)
	}
	if err := idx.viewBuffer(data, closer); err != nil {
		_ = idx.Close()
		return fail(err)
	}
	return idx, nil
}
