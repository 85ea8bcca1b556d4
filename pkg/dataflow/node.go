package dataflow

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

// NodeState is the lifecycle state of a graph node.
type NodeState int32

const (
	// NodeUninitialized is the state before graph initialization
	NodeUninitialized NodeState = iota
	// NodeInitialized means the buffer is allocated and edges wired
	NodeInitialized
	// NodeRunning means the drain loop is scheduled
	NodeRunning
	// NodeCompleted is terminal: input exhausted, all rows processed
	NodeCompleted
	// NodeFaulted is terminal: an unhandled error aborted the node
	NodeFaulted
	// NodeCancelled is terminal: a cooperative stop was honoured
	NodeCancelled
)

// String returns a human-readable state name.
func (s NodeState) String() string {
	switch s {
	case NodeUninitialized:
		return "uninitialized"
	case NodeInitialized:
		return "initialized"
	case NodeRunning:
		return "running"
	case NodeCompleted:
		return "completed"
	case NodeFaulted:
		return "faulted"
	case NodeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type nodeKind int

const (
	kindSource nodeKind = iota
	kindTransform
	kindSink
)

func (k nodeKind) String() string {
	switch k {
	case kindSource:
		return "source"
	case kindTransform:
		return "transform"
	case kindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Node is a unit of work in a dataflow graph: a source, transform, or
// sink. It owns its input buffer, a completion handle, and links to
// its predecessors and successors. Nodes are created through the
// graph's Add methods and mutated only during initialization and by
// their own drain loop during execution.
type Node struct {
	name   string
	kind   nodeKind
	logger *zap.Logger
	graph  *Graph

	source    core.Source
	transform core.Transformation
	sink      core.Destination

	capacity   int
	inputType  string
	outputType string

	buffer *Buffer
	in     []*Link
	out    []*Link

	completion *Completion
	errOut     *ErrorChannel

	state   atomic.Int32
	faultMu sync.Mutex
	fault   error
	// faulting marks this node as the origin of an unhandled fault;
	// settlement then belongs to fail, not to the drain loop
	faulting atomic.Bool

	// cancellation coordinator flags, set in phase order
	cancelRequested atomic.Bool
	stopIntake      atomic.Bool
	stopSched       atomic.Bool

	rowsIn      atomic.Int64
	rowsOut     atomic.Int64
	rowsErrored atomic.Int64
}

// NodeOption configures a node at build time.
type NodeOption func(*Node)

// WithCapacity sets the node's buffer capacity, overriding the graph
// default. Validation happens at construction: zero or negative
// capacity is rejected.
func WithCapacity(capacity int) NodeOption {
	return func(n *Node) {
		n.capacity = capacity
	}
}

// WithInputType declares the node's input type token, checked against
// predecessors' output tokens at link time. Empty accepts anything.
func WithInputType(token string) NodeOption {
	return func(n *Node) {
		n.inputType = token
	}
}

// WithOutputType declares the node's output type token.
func WithOutputType(token string) NodeOption {
	return func(n *Node) {
		n.outputType = token
	}
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// State returns the node's current lifecycle state.
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

func (n *Node) setState(s NodeState) {
	n.state.Store(int32(s))
}

// Completion returns the node's completion handle. It settles exactly
// once, to Succeeded, Faulted, or Cancelled.
func (n *Node) Completion() *Completion {
	return n.completion
}

// Buffer returns the node's input buffer. Nil before initialization.
func (n *Node) Buffer() *Buffer {
	return n.buffer
}

// Fault returns the fault captured on this node, if any.
func (n *Node) Fault() error {
	n.faultMu.Lock()
	defer n.faultMu.Unlock()
	return n.fault
}

// captureFault records the first fault attributed to this node.
func (n *Node) captureFault(err error) {
	n.faultMu.Lock()
	defer n.faultMu.Unlock()
	if n.fault == nil {
		n.fault = err
	}
}

// CancelRequested reports whether the cancellation coordinator has
// reached this node.
func (n *Node) CancelRequested() bool {
	return n.cancelRequested.Load()
}

// RowsIn returns the number of rows admitted to the node's operation.
func (n *Node) RowsIn() int64 { return n.rowsIn.Load() }

// RowsOut returns the number of rows dispatched to successors.
func (n *Node) RowsOut() int64 { return n.rowsOut.Load() }

// RowsErrored returns the number of rows redirected to the error sink.
func (n *Node) RowsErrored() int64 { return n.rowsErrored.Load() }

// LinkErrorTo attaches an error sink to this node, lazily creating
// its error channel. Rows whose processing fails are redirected there
// as ErrorRecords instead of aborting the graph. At most one error
// sink per node; a second call replaces the sink. Like Link, it is a
// build-time operation: once the graph is initialized the drain loop
// may be reading the channel, so late attachment is rejected.
func (n *Node) LinkErrorTo(sink core.ErrorSink) error {
	if sink == nil {
		return errors.New(errors.ErrorTypeValidation, "error sink must not be nil")
	}

	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()

	if n.graph.initialized {
		return errors.New(errors.ErrorTypeConflict, "graph is already initialized")
	}
	if n.errOut == nil {
		n.errOut = newErrorChannel(n.name, sink, n.graph.errHandoff, n.logger)
		return nil
	}
	n.errOut.sink = sink
	return nil
}

// operation returns the node's collaborator for Initializer probing.
func (n *Node) operation() interface{} {
	switch n.kind {
	case kindSource:
		return n.source
	case kindTransform:
		return n.transform
	default:
		return n.sink
	}
}

// run is the node's independently scheduled unit of work: it drains
// the input buffer, applies the operation, and pushes filtered output
// to successors. It returns after the node's completion handle has
// settled.
func (n *Node) run(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "dataflow.node.run")
	span.SetAttributes(
		attribute.String("node", n.name),
		attribute.String("kind", n.kind.String()),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int64("rows_in", n.rowsIn.Load()),
			attribute.Int64("rows_out", n.rowsOut.Load()),
			attribute.Int64("rows_errored", n.rowsErrored.Load()),
		)
		if err := n.Fault(); err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	n.setState(NodeRunning)
	n.logger.Debug("node started", zap.String("kind", n.kind.String()))

	// staged transformations preload before any primary row
	if init, ok := n.operation().(core.Initializer); ok {
		if err := init.Init(ctx); err != nil {
			n.fail(ctx, errors.Wrap(err, errors.ErrorTypeInternal, "initialization barrier failed"))
			return
		}
	}

	go n.watchPredecessors(ctx)
	if n.kind == kindSource {
		go n.pump(ctx)
	}

	n.drain(ctx)

	// a pump-side fault settles the handle from its own goroutine
	// after the upstream walk; run returns only once settled
	<-n.completion.Done()
}

// pump runs a source collaborator, admitting its rows into the node's
// own buffer. Backpressure reaches the collaborator through the
// blocking Push.
func (n *Node) pump(ctx context.Context) {
	err := n.source.Read(ctx, func(record *models.Record) error {
		if n.stopIntake.Load() {
			return errors.Newf(errors.ErrorTypeCancelled,
				"source %q stopped admitting rows", n.name)
		}
		return n.buffer.Push(ctx, record)
	})

	switch {
	case err == nil:
		n.buffer.Complete()
	case errors.IsCancelled(err):
		// settlement is owned by the cancellation coordinator
		n.buffer.Fault(err)
	default:
		n.fail(ctx, errors.Wrap(err, errors.ErrorTypeData, "source read failed"))
	}
}

// watchPredecessors joins the predecessors' completion handles into
// this node's own buffer completion: all Succeeded completes the
// buffer, the first Faulted forces it to Faulted carrying the
// original error, and Cancelled on a non-originating branch cancels
// this node too.
func (n *Node) watchPredecessors(ctx context.Context) {
	if len(n.in) == 0 {
		return
	}

	settled := make(chan *Node, len(n.in))
	for _, link := range n.in {
		pred := link.from
		go func() {
			<-pred.completion.Done()
			settled <- pred
		}()
	}

	remaining := len(n.in)
	for remaining > 0 {
		select {
		case pred := <-settled:
			switch pred.completion.Outcome() {
			case OutcomeSucceeded:
				remaining--
			case OutcomeFaulted:
				// carry the original error forward, unmasked
				n.buffer.Fault(pred.completion.Err())
				return
			case OutcomeCancelled:
				n.buffer.Fault(pred.completion.Err())
				return
			}
		case <-ctx.Done():
			n.buffer.Fault(errors.Wrap(ctx.Err(), errors.ErrorTypeCancelled,
				"graph context finished"))
			return
		}
	}

	n.buffer.Complete()
}

// drain is the node's main loop: pop, apply, dispatch.
func (n *Node) drain(ctx context.Context) {
	for {
		record, ok, err := n.buffer.Pop(ctx)
		if err != nil {
			n.settleFromBufferFault(err)
			return
		}
		if !ok {
			break
		}

		n.rowsIn.Add(1)
		nodeRowsIn.WithLabelValues(n.graph.name, n.name).Inc()
		nodeBufferDepth.WithLabelValues(n.graph.name, n.name).Set(float64(n.buffer.Len()))

		if n.stopSched.Load() {
			// cancellation phase two: already-buffered rows are
			// drained but no further continuations are scheduled
			continue
		}

		if err := n.process(ctx, record); err != nil {
			if errors.IsCancelled(err) || n.cancelRequested.Load() {
				// a successor shut down underneath us mid-dispatch,
				// or the coordinator already reached this node; not
				// a fault of our own. Fault the own buffer so a pump
				// blocked on it wakes up too.
				n.buffer.Fault(errors.Newf(errors.ErrorTypeCancelled,
					"node %q cancelled", n.name))
				n.setState(NodeCancelled)
				n.completion.Cancel()
				return
			}
			n.fail(ctx, err)
			return
		}
	}

	n.complete(ctx)
}

// process applies the node's operation to one row. A row error is
// redirected to the error sink when one is configured; the returned
// error is non-nil only for unhandled faults.
func (n *Node) process(ctx context.Context, record *models.Record) error {
	switch n.kind {
	case kindSink:
		if err := n.sink.Write(ctx, record); err != nil {
			return n.rejectRow(ctx, record, err)
		}
		n.rowsOut.Add(1)
		nodeRowsOut.WithLabelValues(n.graph.name, n.name).Inc()
		return nil

	case kindTransform:
		outs, err := n.transform.Apply(ctx, record)
		if err != nil {
			return n.rejectRow(ctx, record, err)
		}
		return n.dispatch(ctx, outs)

	default: // source: identity pass-through of its own buffer
		return n.dispatch(ctx, []*models.Record{record})
	}
}

// rejectRow handles a single failed row: redirect when an error sink
// is configured, escalate to an unhandled fault otherwise.
func (n *Node) rejectRow(ctx context.Context, record *models.Record, cause error) error {
	if n.errOut != nil {
		if err := n.errOut.Send(ctx, cause, record); err == nil {
			n.rowsErrored.Add(1)
			nodeRowsErrored.WithLabelValues(n.graph.name, n.name).Inc()
			n.logger.Debug("row redirected to error sink", zap.Error(cause))
			return nil
		}
		// sink unavailable: fall through to the unhandled path
		n.logger.Warn("error sink unavailable, escalating", zap.Error(cause))
	}
	return errors.Wrap(cause, errors.ErrorTypeData, "row processing failed")
}

// dispatch fans a row set out to every successor link whose predicate
// accepts it. Rows accepted by multiple links are cloned so that
// successors never share a mutable map; a row accepted by no link is
// dropped for that edge.
func (n *Node) dispatch(ctx context.Context, records []*models.Record) error {
	for _, record := range records {
		if record == nil {
			continue
		}
		first := true
		for _, link := range n.out {
			if !link.accepts(record) {
				continue
			}
			row := record
			if !first {
				row = record.Clone()
			}
			first = false
			if err := link.to.buffer.Push(ctx, row); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal,
					"dispatch to successor failed")
			}
		}
		n.rowsOut.Add(1)
		nodeRowsOut.WithLabelValues(n.graph.name, n.name).Inc()
	}
	return nil
}

// complete finishes a normal drain: flush the sink collaborator if
// any, then settle Succeeded.
func (n *Node) complete(ctx context.Context) {
	if n.kind == kindSink {
		if err := n.sink.Close(ctx); err != nil {
			n.fail(ctx, errors.Wrap(err, errors.ErrorTypeData, "sink close failed"))
			return
		}
	}

	n.setState(NodeCompleted)
	n.completion.Succeed()
	n.logger.Info("node completed",
		zap.Int64("rows_in", n.rowsIn.Load()),
		zap.Int64("rows_out", n.rowsOut.Load()),
		zap.Int64("rows_errored", n.rowsErrored.Load()))
}

// fail handles an unhandled fault originating at this node: capture
// it, force the own buffer to Faulted, cancel every upstream ancestor
// and wait for their acknowledgment, and only then settle the node's
// handle so that downstream joins may observe the fault.
func (n *Node) fail(ctx context.Context, err error) {
	n.faulting.Store(true)
	n.captureFault(err)
	n.graph.recordFault(err)
	n.setState(NodeFaulted)
	n.logger.Error("node faulted", zap.Error(err))

	// mark ancestors before waking any of them: a producer whose push
	// into this buffer fails must settle Cancelled, not fault again
	for _, ancestor := range ancestorsOf(n) {
		ancestor.cancelRequested.Store(true)
	}
	n.buffer.Fault(err)
	n.graph.canceller.CancelUpstream(ctx, n)
	n.completion.Fault(err)
}

// settleFromBufferFault settles the node after its buffer was forced
// into a terminal error state, either by an upstream fault carried
// through the join or by the cancellation coordinator.
func (n *Node) settleFromBufferFault(err error) {
	if n.faulting.Load() {
		// this node originated the fault; fail settles the handle
		// after the upstream cancellation walk has been acknowledged
		return
	}

	if errors.IsCancelled(err) {
		n.setState(NodeCancelled)
		n.completion.Cancel()
		n.logger.Debug("node cancelled")
		return
	}

	// carried fault: settle Faulted with the original error, and stop
	// any still-live branches feeding this node
	n.captureFault(err)
	n.setState(NodeFaulted)
	for _, ancestor := range ancestorsOf(n) {
		ancestor.cancelRequested.Store(true)
	}
	n.graph.canceller.CancelUpstream(context.Background(), n)
	n.completion.Fault(err)
	n.logger.Warn("node faulted by upstream", zap.Error(err))
}

// applyCancelPhase applies one cancellation phase to this node and
// returns once the phase has been acknowledged. Called by the
// cancellation coordinator only.
func (n *Node) applyCancelPhase(phase CancelPhase, grace <-chan struct{}) {
	n.cancelRequested.Store(true)

	switch phase {
	case PhaseRequestStop:
		n.stopIntake.Store(true)

	case PhaseStopScheduling:
		n.stopSched.Store(true)

	case PhaseForceSettle:
		if n.completion.Settled() {
			return
		}
		// stop the drain loop, then give the node its grace period
		// to settle through the normal path
		n.buffer.Fault(errors.Newf(errors.ErrorTypeCancelled,
			"node %q cancelled by coordinator", n.name))
		select {
		case <-n.completion.Done():
		case <-grace:
			n.setState(NodeCancelled)
			n.completion.Cancel()
			n.logger.Warn("completion handle force-settled as cancelled")
		}
	}
}
