package annbind

import (
	"fmt"
	"math"
	"math/bits"
	"runtime"
	"time"
	"unsafe"

	"github.com/hupe1980/annbind/capi"
)

// mulUint64 multiplies with overflow detection and reports whether the
// product fits the platform's addressable element range.
func mulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 || lo > uint64(math.MaxInt) {
		return 0, false
	}
	return lo, true
}

// ExactSearch computes the exact top-k nearest neighbors of every query
// against the dataset with the engine's brute-force routine, bypassing
// any index structure. Result keys are dataset row positions. Each
// returned row holds min(k, len(dataset)) matches, nearest first.
//
// The thread count is handed to the engine as given; values above the
// available cores are not clamped here.
func ExactSearch(dataset, queries [][]float32, k, threads int, metric Metric, optFns ...Option) ([][]Match, error) {
	o := applyOptions(optFns)
	start := time.Now()
	res, err := exactSearch(o.table, dataset, queries, k, threads, metric)
	o.metricsCollector.RecordExactSearch(len(queries), k, time.Since(start), err)
	o.logger.LogExactSearch(len(queries), k, err)
	return res, err
}

func exactSearch(table *capi.Table, dataset, queries [][]float32, k, threads int, metric Metric) ([][]Match, error) {
	if len(dataset) == 0 {
		return nil, fmt.Errorf("%w: dataset must not be empty", ErrInvalidArgument)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: queries must not be empty", ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	if threads <= 0 {
		return nil, fmt.Errorf("%w: threads must be positive", ErrInvalidArgument)
	}

	dims := len(dataset[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: vectors must not be empty", ErrInvalidArgument)
	}
	for _, v := range dataset {
		if len(v) != dims {
			return nil, &ErrDimensionMismatch{Expected: dims, Actual: len(v)}
		}
	}
	for _, q := range queries {
		if len(q) != dims {
			return nil, &ErrDimensionMismatch{Expected: dims, Actual: len(q)}
		}
	}

	// Size the flat buffers with widened arithmetic so a huge batch
	// fails cleanly instead of wrapping into a short allocation.
	datasetElems, ok := mulUint64(uint64(len(dataset)), uint64(dims))
	if !ok {
		return nil, ErrOverflow
	}
	queryElems, ok := mulUint64(uint64(len(queries)), uint64(dims))
	if !ok {
		return nil, ErrOverflow
	}
	resultElems, ok := mulUint64(uint64(len(queries)), uint64(k))
	if !ok {
		return nil, ErrOverflow
	}

	flatDataset := make([]float32, datasetElems)
	for r, v := range dataset {
		copy(flatDataset[r*dims:], v)
	}
	flatQueries := make([]float32, queryElems)
	for r, q := range queries {
		copy(flatQueries[r*dims:], q)
	}
	keys := make([]uint64, resultElems)
	distances := make([]float32, resultElems)

	rowStride := uint64(dims) * 4
	var cerr capi.Error
	table.ExactSearch(
		unsafe.Pointer(&flatDataset[0]), uint64(len(dataset)), rowStride,
		unsafe.Pointer(&flatQueries[0]), uint64(len(queries)), rowStride,
		capi.ScalarF32, uint64(dims), metric.kind(),
		uint64(k), uint64(threads),
		&keys[0], uint64(k)*8,
		&distances[0], uint64(k)*4,
		&cerr,
	)
	runtime.KeepAlive(flatDataset)
	runtime.KeepAlive(flatQueries)
	if err := translateError(&cerr); err != nil {
		return nil, err
	}

	found := min(k, len(dataset))
	out := make([][]Match, len(queries))
	for qi := range out {
		row := make([]Match, found)
		base := qi * k
		for j := range row {
			row[j] = Match{Key: keys[base+j], Distance: distances[base+j]}
		}
		out[qi] = row
	}
	return out, nil
}
