package resource

import (
	"context"
	"io"
)

// maxIOChunk bounds a single limiter reservation so one large write
// cannot exceed the limiter burst.
const maxIOChunk = 256 * 1024

// RateLimitedWriter throttles writes through a Controller's IO budget.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *Controller
}

// NewRateLimitedWriter wraps w so every write first acquires IO budget.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, rc: rc}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := min(len(p), maxIOChunk)
		if err := w.rc.AcquireIO(w.ctx, chunk); err != nil {
			return total, err
		}
		n, err := w.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[chunk:]
	}
	return total, nil
}

// RateLimitedReader throttles reads through a Controller's IO budget.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader wraps r so every read first acquires IO budget.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, rc: rc}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	if len(p) > maxIOChunk {
		p = p[:maxIOChunk]
	}
	if err := r.rc.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
