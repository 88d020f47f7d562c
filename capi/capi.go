package capi

import "unsafe"

// Handle is an opaque reference to one engine-side index. The zero value is
// never a valid handle. Handles must not be duplicated across owners; the
// facade enforces single ownership.
type Handle uintptr

// Error is the error side channel. Each entry point receives a *Error slot;
// on failure the engine stores a pointer to a NUL-terminated message there
// and the message remains valid at least until the slot is overwritten. A
// nil value, or a pointer to an empty string, means success. The buffer is
// engine-owned: callers copy the message out and never free it.
type Error *byte

// ScalarKind identifies the element encoding of a vector buffer.
type ScalarKind uint8

const (
	ScalarUnknown ScalarKind = iota
	ScalarF32
	ScalarF64
	ScalarF16
	ScalarBF16
	ScalarI8
	ScalarB1
)

// String returns the engine's canonical name for the scalar kind.
func (k ScalarKind) String() string {
	switch k {
	case ScalarF32:
		return "f32"
	case ScalarF64:
		return "f64"
	case ScalarF16:
		return "f16"
	case ScalarBF16:
		return "bf16"
	case ScalarI8:
		return "i8"
	case ScalarB1:
		return "b1"
	default:
		return "unknown"
	}
}

// MetricKind identifies the distance function used to compare vectors.
type MetricKind uint8

const (
	MetricUnknown MetricKind = iota
	MetricIP
	MetricCos
	MetricL2sq
	MetricHaversine
	MetricDivergence
	MetricPearson
	MetricHamming
	MetricTanimoto
	MetricSorensen
)

// String returns the engine's canonical name for the metric.
func (m MetricKind) String() string {
	switch m {
	case MetricIP:
		return "ip"
	case MetricCos:
		return "cos"
	case MetricL2sq:
		return "l2sq"
	case MetricHaversine:
		return "haversine"
	case MetricDivergence:
		return "divergence"
	case MetricPearson:
		return "pearson"
	case MetricHamming:
		return "hamming"
	case MetricTanimoto:
		return "tanimoto"
	case MetricSorensen:
		return "sorensen"
	default:
		return "unknown"
	}
}

// InitOptions carries the index configuration across the boundary. It is
// also the metadata record: Metadata and MetadataBuffer fill one from a
// persisted index header.
type InitOptions struct {
	Metric          MetricKind
	Quantization    ScalarKind
	Dimensions      uint64
	Connectivity    uint64
	ExpansionAdd    uint64
	ExpansionSearch uint64
	Multi           bool
}

// Predicate is the filtered-search callback. The engine invokes it during
// traversal with a candidate key and the opaque state word it was handed;
// a non-zero return includes the key. Implementations must not panic and
// must not re-enter the engine.
type Predicate func(key uint64, state uintptr) int32

// Table is the engine function table. Field groups mirror the engine's C
// header: lifecycle, persistence, introspection, tuning, content, search.
//
// Pointer arguments reference caller memory that must stay alive for the
// duration of the call (runtime.KeepAlive on the Go side). Strides are in
// bytes. Counts and capacities are element counts.
type Table struct {
	// Lifecycle.
	Init func(opts *InitOptions, err *Error) Handle
	Free func(h Handle, err *Error)

	// Persistence. Paths are NUL-terminated C strings.
	Save       func(h Handle, path *byte, err *Error)
	Load       func(h Handle, path *byte, err *Error)
	View       func(h Handle, path *byte, err *Error)
	SaveBuffer func(h Handle, buf unsafe.Pointer, length uint64, err *Error)
	LoadBuffer func(h Handle, buf unsafe.Pointer, length uint64, err *Error)
	ViewBuffer func(h Handle, buf unsafe.Pointer, length uint64, err *Error)

	// Metadata reads only the persisted header, never vector data.
	Metadata       func(path *byte, opts *InitOptions, err *Error)
	MetadataBuffer func(buf unsafe.Pointer, length uint64, opts *InitOptions, err *Error)

	// Introspection.
	Size                 func(h Handle, err *Error) uint64
	Capacity             func(h Handle, err *Error) uint64
	Dimensions           func(h Handle, err *Error) uint64
	Connectivity         func(h Handle, err *Error) uint64
	MemoryUsage          func(h Handle, err *Error) uint64
	SerializedLength     func(h Handle, err *Error) uint64
	ExpansionAdd         func(h Handle, err *Error) uint64
	ExpansionSearch      func(h Handle, err *Error) uint64
	HardwareAcceleration func(h Handle, err *Error) *byte

	// Tuning.
	ChangeExpansionAdd    func(h Handle, expansion uint64, err *Error)
	ChangeExpansionSearch func(h Handle, expansion uint64, err *Error)
	ChangeThreadsAdd      func(h Handle, threads uint64, err *Error)
	ChangeThreadsSearch   func(h Handle, threads uint64, err *Error)
	ChangeMetric          func(h Handle, metric MetricKind, err *Error)

	// Content.
	Reserve  func(h Handle, capacity uint64, err *Error)
	Add      func(h Handle, key uint64, vector unsafe.Pointer, kind ScalarKind, err *Error)
	Get      func(h Handle, key uint64, maxCount uint64, vectors unsafe.Pointer, kind ScalarKind, err *Error) uint64
	Remove   func(h Handle, key uint64, err *Error) uint64
	Rename   func(h Handle, from, to uint64, err *Error) uint64
	Contains func(h Handle, key uint64, err *Error) bool
	Count    func(h Handle, key uint64, err *Error) uint64
	Clear    func(h Handle, err *Error)

	// Search. Result buffers hold exactly count elements; the return value
	// is the number of leading slots actually filled.
	Search         func(h Handle, query unsafe.Pointer, kind ScalarKind, count uint64, keys *uint64, distances *float32, err *Error) uint64
	FilteredSearch func(h Handle, query unsafe.Pointer, kind ScalarKind, count uint64, predicate Predicate, state uintptr, keys *uint64, distances *float32, err *Error) uint64
	ExactSearch    func(dataset unsafe.Pointer, datasetCount, datasetStride uint64, queries unsafe.Pointer, queryCount, queryStride uint64, kind ScalarKind, dimensions uint64, metric MetricKind, count, threads uint64, keys *uint64, keysStride uint64, distances *float32, distancesStride uint64, err *Error)
	Distance       func(a, b unsafe.Pointer, kind ScalarKind, dimensions uint64, metric MetricKind, err *Error) float32

	Version func() *byte
}
