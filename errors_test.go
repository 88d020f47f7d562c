package annbind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annbind/capi"
)

func TestTranslateError(t *testing.T) {
	t.Run("NilSlotIsSuccess", func(t *testing.T) {
		var slot capi.Error
		assert.NoError(t, translateError(&slot))
	})

	t.Run("EmptyMessageIsSuccess", func(t *testing.T) {
		// Engines may hand back a non-null pointer to an empty string on
		// success; it must not surface as an error.
		empty := []byte{0}
		slot := capi.Error(&empty[0])
		assert.NoError(t, translateError(&slot))
		assert.Nil(t, slot, "slot must be cleared")
	})

	t.Run("MessageCopiedVerbatim", func(t *testing.T) {
		msg := capi.CString("index loss detected in native layer")
		slot := capi.Error(&msg[0])

		err := translateError(&slot)
		require.Error(t, err)

		var engErr *ErrEngineFailure
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, "index loss detected in native layer", engErr.Message)
		assert.Equal(t, "engine failure: index loss detected in native layer", err.Error())
		assert.Nil(t, slot, "slot must be cleared after translation")
	})

	t.Run("MessageOutlivesEngineBuffer", func(t *testing.T) {
		msg := capi.CString("transient failure")
		slot := capi.Error(&msg[0])
		err := translateError(&slot)
		require.Error(t, err)

		// Overwriting the engine buffer must not change the Go error.
		for i := range msg {
			msg[i] = 'x'
		}
		var engErr *ErrEngineFailure
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, "transient failure", engErr.Message)
	})
}

func TestDimensionMismatchNamesBothValues(t *testing.T) {
	err := &ErrDimensionMismatch{Expected: 128, Actual: 64}
	assert.Contains(t, err.Error(), "128")
	assert.Contains(t, err.Error(), "64")
}

// stubTable builds a minimal function table whose introspection calls
// report the given side-channel message.
func stubTable(msg []byte) *capi.Table {
	return &capi.Table{
		Init: func(opts *capi.InitOptions, err *capi.Error) capi.Handle { return 1 },
		Free: func(h capi.Handle, err *capi.Error) {},
		Size: func(h capi.Handle, err *capi.Error) uint64 {
			if msg != nil {
				*err = capi.Error(&msg[0])
			}
			return 0
		},
	}
}

func TestEngineFailureSurfacesVerbatim(t *testing.T) {
	msg := capi.CString("native lane fault: code 0xdead")
	idx, err := NewIndex(DefaultConfig(4), WithTable(stubTable(msg)))
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Size()
	var engErr *ErrEngineFailure
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "native lane fault: code 0xdead", engErr.Message)
}

func TestEngineEmptyStringSuccess(t *testing.T) {
	empty := []byte{0}
	idx, err := NewIndex(DefaultConfig(4), WithTable(stubTable(empty)))
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
