package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tributary/pkg/errors"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond},
		func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New(errors.ErrorTypeConnection, "refused")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryNonRetryableReturnsImmediately(t *testing.T) {
	attempts := 0
	cause := errors.New(errors.ErrorTypeData, "bad row")
	err := Retry(context.Background(), RetryPolicy{Attempts: 5, Delay: time.Millisecond},
		func(context.Context) error {
			attempts++
			return cause
		})
	require.Error(t, err)
	assert.Same(t, error(cause), err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustionEscalates(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond},
		func(context.Context) error {
			attempts++
			return errors.New(errors.ErrorTypeTimeout, "deadline")
		})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "exhausted")
}

func TestRetryInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, RetryPolicy{Attempts: 10, Delay: time.Second},
		func(context.Context) error {
			attempts++
			return errors.New(errors.ErrorTypeConnection, "refused")
		})
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	assert.Equal(t, 1, attempts)
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{},
		func(context.Context) error {
			attempts++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
