package dataflow

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

// BufferState is the lifecycle state of a node's input buffer.
type BufferState int32

const (
	// BufferOpen accepts input; a push on a full buffer blocks
	BufferOpen BufferState = iota
	// BufferCompleting accepts no more input but may still drain
	BufferCompleting
	// BufferCompleted is terminal: drained after completing
	BufferCompleted
	// BufferFaulted is terminal: no new input; admitted rows still
	// drain before Pop reports the error
	BufferFaulted
)

// String returns a human-readable state name.
func (s BufferState) String() string {
	switch s {
	case BufferOpen:
		return "open"
	case BufferCompleting:
		return "completing"
	case BufferCompleted:
		return "completed"
	case BufferFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Buffer is the capacity-bounded, order-preserving queue owned by a
// node. A push against a full open buffer suspends the producer until
// the consumer frees capacity; a push against a completing or faulted
// buffer fails. Exactly one drain loop pops from a buffer; any number
// of producers may push.
type Buffer struct {
	name     string
	capacity int

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	queue    []*models.Record
	state    BufferState
	err      error

	drained *Completion

	pushed atomic.Int64
	popped atomic.Int64
}

// NewBuffer creates an open buffer. Capacity must be > 0.
func NewBuffer(name string, capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"buffer %q: capacity must be > 0, got %d", name, capacity)
	}
	b := &Buffer{
		name:     name,
		capacity: capacity,
		queue:    make([]*models.Record, 0, capacity),
		drained:  NewCompletion(),
	}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	return b, nil
}

// Push appends a record, blocking while the buffer is open and full.
// It fails once the buffer is completing, completed, or faulted, and
// unblocks with the context error if ctx is done first.
func (b *Buffer) Push(ctx context.Context, record *models.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		switch b.state {
		case BufferCompleting, BufferCompleted:
			return errors.Newf(errors.ErrorTypeConflict,
				"buffer %q is no longer accepting input", b.name)
		case BufferFaulted:
			return b.err
		}

		if len(b.queue) < b.capacity {
			b.queue = append(b.queue, record)
			b.pushed.Add(1)
			b.notEmpty.Signal()
			return nil
		}

		if err := b.wait(ctx, b.notFull); err != nil {
			return errors.Wrap(err, errors.ErrorTypeCancelled, "push interrupted")
		}
	}
}

// Pop removes the oldest record. It blocks while the buffer is open
// and empty. ok is false once the buffer has fully drained after
// Complete; err is non-nil once a faulted buffer's remaining queue is
// exhausted. Rows admitted before a fault are still delivered, so a
// consumer sees every accepted row before it sees the error.
func (b *Buffer) Pop(ctx context.Context) (record *models.Record, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if len(b.queue) > 0 {
			record = b.queue[0]
			b.queue = b.queue[1:]
			b.popped.Add(1)
			b.notFull.Signal()
			return record, true, nil
		}

		switch b.state {
		case BufferFaulted:
			return nil, false, b.err
		case BufferCompleting:
			b.completeLocked()
			return nil, false, nil
		case BufferCompleted:
			return nil, false, nil
		}

		if werr := b.wait(ctx, b.notEmpty); werr != nil {
			return nil, false, errors.Wrap(werr, errors.ErrorTypeCancelled, "pop interrupted")
		}
	}
}

// Complete transitions Open → Completing. Queued rows may still be
// drained; an empty buffer completes immediately. Idempotent.
func (b *Buffer) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BufferOpen {
		return
	}
	b.state = BufferCompleting
	if len(b.queue) == 0 {
		b.completeLocked()
	}
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}

// Fault transitions the buffer to Faulted, waking all blocked
// producers and the consumer. Rows already admitted stay queued and
// are delivered by Pop before it reports the error, so a fault never
// retracts an accepted row. A cancellation error settles the drain
// handle as Cancelled rather than Faulted and drops the queue: a
// cancelled node stops instead of finishing admitted work. A buffer
// that already completed or faulted is left as is.
func (b *Buffer) Fault(err error) {
	if err == nil {
		err = errors.New(errors.ErrorTypeInternal, "buffer fault with nil error")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BufferFaulted || b.state == BufferCompleted {
		return
	}
	b.state = BufferFaulted
	b.err = err

	if errors.IsCancelled(err) {
		b.queue = nil
		b.drained.Cancel()
	} else {
		b.drained.Fault(err)
	}

	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}

// completeLocked finalizes the Completing → Completed transition.
// Caller holds b.mu.
func (b *Buffer) completeLocked() {
	b.state = BufferCompleted
	b.drained.Succeed()
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}

// wait blocks on cond until signalled, waking early if ctx is done.
// Caller holds b.mu; the lock is held again on return. Returns the
// context error if ctx finished, nil otherwise.
func (b *Buffer) wait(ctx context.Context, cond *sync.Cond) error {
	done := ctx.Done()
	if done == nil {
		cond.Wait()
		return nil
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-done:
			b.mu.Lock()
			cond.Broadcast()
			b.mu.Unlock()
		case <-stop:
		}
	}()

	cond.Wait()
	close(stop)
	return ctx.Err()
}

// State returns the current buffer state.
func (b *Buffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Len returns the number of queued rows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Err returns the fault error, if the buffer faulted.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Drained returns the handle that settles when the buffer reaches a
// terminal state: Succeeded on Completed, Faulted or Cancelled on
// Fault depending on the error.
func (b *Buffer) Drained() *Completion {
	return b.drained
}
