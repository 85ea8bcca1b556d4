package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeData, "bad row")
	assert.Equal(t, "data: bad row", err.Error())
	assert.Equal(t, ErrorTypeData, err.Type)
	assert.NotEmpty(t, err.Stack)
	assert.Nil(t, err.Unwrap())
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeValidation, "node %q: capacity %d", "sink", -1)
	assert.Equal(t, `validation: node "sink": capacity -1`, err.Error())
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrorTypeConnection, "dial failed")

	assert.Equal(t, "connection: dial failed: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, cause))

	assert.Nil(t, Wrap(nil, ErrorTypeConnection, "ignored"))
}

func TestWrapPreservesOriginalStack(t *testing.T) {
	inner := New(ErrorTypeData, "bad row")
	outer := Wrap(inner, ErrorTypeInternal, "processing failed")
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConnection, "dial failed").
		WithDetail("host", "db-1").
		WithDetail("attempts", 3)
	assert.Equal(t, "db-1", err.Details["host"])
	assert.Equal(t, 3, err.Details["attempts"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "refused")))
	assert.True(t, IsRetryable(New(ErrorTypeTimeout, "deadline")))
	assert.False(t, IsRetryable(New(ErrorTypeData, "bad row")))
	assert.False(t, IsRetryable(New(ErrorTypeValidation, "bad config")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(New(ErrorTypeCancelled, "stopping")))
	assert.True(t, IsCancelled(context.Canceled))
	assert.True(t, IsCancelled(context.DeadlineExceeded))
	assert.True(t, IsCancelled(Wrap(context.Canceled, ErrorTypeInternal, "wait failed")))
	assert.False(t, IsCancelled(New(ErrorTypeData, "bad row")))
	assert.False(t, IsCancelled(nil))
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeConflict, "already running")
	assert.True(t, IsType(err, ErrorTypeConflict))
	assert.False(t, IsType(err, ErrorTypeData))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeConflict))

	// the outermost typed error decides
	wrapped := Wrap(err, ErrorTypeInternal, "outer")
	assert.True(t, IsType(wrapped, ErrorTypeInternal))
	assert.False(t, IsType(wrapped, ErrorTypeConflict))
}

func TestErrorChainFormatting(t *testing.T) {
	inner := New(ErrorTypeConnection, "refused")
	mid := Wrap(inner, ErrorTypeData, "source read failed")
	outer := Wrap(mid, ErrorTypeInternal, "node faulted")

	require.Equal(t,
		"internal: node faulted: data: source read failed: connection: refused",
		outer.Error())
	assert.True(t, stderrors.Is(outer, inner))
}
