package engine

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/annbind/capi"
)

// exactSearch runs a brute-force top-k scan of the dataset for every
// query. Rows are addressed by byte stride, so callers can point at
// packed arrays or at columns of wider records. Each query fills
// min(k, datasetCount) result slots at its stride offset; queries fan
// out across threads goroutines.
func exactSearch(dataset unsafe.Pointer, datasetCount, datasetStride uint64,
	queries unsafe.Pointer, queryCount, queryStride uint64,
	kind capi.ScalarKind, dims uint64, metric capi.MetricKind,
	k, threads uint64,
	keys *uint64, keysStride uint64,
	distances *float32, distancesStride uint64) error {

	kern := scalarKernel(metric)
	bkern := bitKernel(metric)
	if kern == nil && bkern == nil {
		return fmt.Errorf(msgBadMetric, metric)
	}
	if dims == 0 {
		return errors.New(msgBadDimensions)
	}
	if k == 0 || queryCount == 0 || datasetCount == 0 {
		return nil
	}

	d := int(dims)
	words := (d + 63) / 64
	limit := int(threads)
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for qi := 0; qi < int(queryCount); qi++ {
		g.Go(func() error {
			q := make([]float32, d)
			row := make([]float32, d)
			if !decodeRow(unsafe.Add(queries, uintptr(qi)*uintptr(queryStride)), kind, q) {
				return fmt.Errorf(msgBadScalar, kind)
			}
			var qw, rw []uint64
			if bkern != nil {
				qw = packBits(q, words)
				rw = make([]uint64, words)
			}

			top := newCandidateHeap(true)
			for di := 0; di < int(datasetCount); di++ {
				decodeRow(unsafe.Add(dataset, uintptr(di)*uintptr(datasetStride)), kind, row)
				var dist float32
				if bkern != nil {
					packBitsInto(rw, row)
					dist = bkern(qw, rw)
				} else {
					dist = kern(q, row)
				}
				top.pushBounded(candidate{slot: uint32(di), dist: dist}, int(k))
			}

			outKeys := unsafe.Slice((*uint64)(unsafe.Add(unsafe.Pointer(keys), uintptr(qi)*uintptr(keysStride))), int(k))
			outDists := unsafe.Slice((*float32)(unsafe.Add(unsafe.Pointer(distances), uintptr(qi)*uintptr(distancesStride))), int(k))
			for i, c := range top.drainAscending() {
				outKeys[i] = uint64(c.slot)
				outDists[i] = c.dist
			}
			return nil
		})
	}
	return g.Wait()
}
