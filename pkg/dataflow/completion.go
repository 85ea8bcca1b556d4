package dataflow

import (
	"context"
	"sync"

	"github.com/ajitpratap0/tributary/pkg/errors"
)

// Outcome is the terminal result of a completion handle.
type Outcome int32

const (
	// OutcomePending means the handle has not settled yet
	OutcomePending Outcome = iota
	// OutcomeSucceeded means the node drained and completed normally
	OutcomeSucceeded
	// OutcomeFaulted means an unhandled error aborted the node
	OutcomeFaulted
	// OutcomeCancelled means a cooperative stop settled the handle
	OutcomeCancelled
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFaulted:
		return "faulted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Completion is a future that settles exactly once to Succeeded,
// Faulted, or Cancelled. It is single-writer in practice but safe
// against concurrent settlement attempts: losers of the race are
// no-ops. Multiple readers may wait on Done.
type Completion struct {
	once    sync.Once
	done    chan struct{}
	mu      sync.RWMutex
	outcome Outcome
	err     error
}

// NewCompletion creates an unsettled completion handle.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) settle(outcome Outcome, err error) bool {
	settled := false
	c.once.Do(func() {
		c.mu.Lock()
		c.outcome = outcome
		c.err = err
		c.mu.Unlock()
		close(c.done)
		settled = true
	})
	return settled
}

// Succeed settles the handle as Succeeded. Returns false if the
// handle had already settled.
func (c *Completion) Succeed() bool {
	return c.settle(OutcomeSucceeded, nil)
}

// Fault settles the handle as Faulted carrying the given error.
func (c *Completion) Fault(err error) bool {
	if err == nil {
		err = errors.New(errors.ErrorTypeInternal, "fault with nil error")
	}
	return c.settle(OutcomeFaulted, err)
}

// Cancel settles the handle as Cancelled.
func (c *Completion) Cancel() bool {
	return c.settle(OutcomeCancelled, errors.New(errors.ErrorTypeCancelled, "cancelled"))
}

// Done returns a channel closed when the handle settles.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether the handle has settled.
func (c *Completion) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Outcome returns the settled outcome, or OutcomePending.
func (c *Completion) Outcome() Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outcome
}

// Err returns the error the handle settled with. It is non-nil for
// Faulted and Cancelled outcomes once settled.
func (c *Completion) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Wait blocks until the handle settles or the context is done.
func (c *Completion) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.Outcome(), c.Err()
	case <-ctx.Done():
		return OutcomePending, errors.Wrap(ctx.Err(), errors.ErrorTypeCancelled, "wait interrupted")
	}
}
