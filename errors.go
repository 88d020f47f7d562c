package annbind

import (
	"errors"
	"fmt"

	"github.com/hupe1980/annbind/capi"
)

var (
	// ErrClosed is returned when an operation runs against a closed index.
	ErrClosed = errors.New("index is closed")

	// ErrInvalidArgument is returned when a call argument fails validation
	// before it reaches the engine. Specific failures wrap this sentinel.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOverflow is returned when a batch geometry (rows times columns)
	// does not fit the engine's addressing range.
	ErrOverflow = errors.New("argument size overflow")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
// It is raised during validation, before any engine call.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrEngineFailure carries a failure reported by the engine through its
// error side channel. Message holds the engine's text verbatim.
type ErrEngineFailure struct {
	Message string
}

func (e *ErrEngineFailure) Error() string {
	return fmt.Sprintf("engine failure: %s", e.Message)
}

// translateError drains an error slot after an engine call. It is the
// single point where side-channel state becomes a Go error: a nil slot
// means success, and so does a pointer to an empty message. On failure
// the message is copied out before the slot is cleared, so no engine
// memory is retained.
func translateError(slot *capi.Error) error {
	p := *slot
	if p == nil {
		return nil
	}
	*slot = nil
	msg := capi.GoString(p)
	if msg == "" {
		return nil
	}
	return &ErrEngineFailure{Message: msg}
}
