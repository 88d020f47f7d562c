package engine

import (
	"fmt"

	"github.com/hupe1980/annbind/capi"
)

// fail stores a NUL-terminated message in the error slot. The buffer is
// heap-allocated per failure; the interior pointer held by the slot keeps
// it alive until the caller copies the message out and drops the slot.
func fail(err *capi.Error, format string, args ...any) {
	if err == nil {
		return
	}
	var msg string
	if len(args) == 0 {
		msg = format
	} else {
		msg = fmt.Sprintf(format, args...)
	}
	buf := append([]byte(msg), 0)
	*err = capi.Error(&buf[0])
}

// Engine failure messages surfaced through the side channel. Kept short
// and stable: wrappers pass them to users verbatim.
const (
	msgInvalidHandle  = "invalid index handle"
	msgImmutableView  = "view-mode index is immutable"
	msgNeedsReserve   = "reserve capacity before adding"
	msgDuplicateKey   = "duplicate key: %d"
	msgBufferTooSmall = "serialization buffer too small: need %d bytes, got %d"
	msgBadSnapshot    = "malformed index snapshot: %s"
	msgBadMetric      = "unsupported metric kind: %d"
	msgBadScalar      = "unsupported scalar kind: %d"
	msgBadDimensions  = "dimensions must be positive"
	msgChecksum       = "snapshot checksum mismatch"
	msgEmptyPath      = "path must not be empty"
)
