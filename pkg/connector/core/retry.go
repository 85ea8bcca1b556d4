package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/tributary/pkg/errors"
)

// RetryPolicy is the bounded-attempt contract at the connection
// boundary: a fixed number of attempts with a fixed delay between
// them. Exhausting the attempts escalates to a fatal error.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the engine's connection-manager contract.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

// Retry runs op up to policy.Attempts times, sleeping policy.Delay
// between attempts. Only retryable errors (connection, timeout) are
// retried; anything else returns immediately. After exhaustion the
// last error is escalated as a connection error.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}

	var last error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if !errors.IsRetryable(last) {
			return last
		}
		if attempt == policy.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeCancelled, "retry interrupted")
		case <-time.After(policy.Delay):
		}
	}

	return errors.Wrap(last, errors.ErrorTypeConnection,
		"connection attempts exhausted").WithDetail("attempts", policy.Attempts)
}
