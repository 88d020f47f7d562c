package annbind

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/hupe1980/annbind/capi"
)

// Distance computes the distance between two vectors under the given
// metric with the engine's kernels, without building an index.
func Distance(a, b []float32, metric Metric, optFns ...Option) (float32, error) {
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: vectors must not be empty", ErrInvalidArgument)
	}
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	o := applyOptions(optFns)

	var cerr capi.Error
	d := o.table.Distance(unsafe.Pointer(&a[0]), unsafe.Pointer(&b[0]), capi.ScalarF32, uint64(len(a)), metric.kind(), &cerr)
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
	if err := translateError(&cerr); err != nil {
		return 0, err
	}
	return d, nil
}
