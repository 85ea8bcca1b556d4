package dataflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/errors"
)

const (
	// DefaultBufferCapacity is used by nodes without an explicit
	// capacity when the graph declares no default of its own.
	DefaultBufferCapacity = 1000
	// DefaultCancelGrace bounds how long the canceller waits for a
	// handle to settle on its own before forcing Cancelled.
	DefaultCancelGrace = 5 * time.Second
	// DefaultErrorHandoff bounds the error channel's sink handoff.
	DefaultErrorHandoff = time.Second
)

// Graph is a dataflow execution graph: nodes declared through the Add
// methods, wired with Link, initialized once, and driven by Run. The
// graph's completion handle is the join of its terminal (sink) nodes.
type Graph struct {
	name   string
	logger *zap.Logger

	defaultCapacity int
	cancelGrace     time.Duration
	errHandoff      time.Duration

	mu          sync.Mutex
	nodes       []*Node
	byName      map[string]*Node
	initialized bool
	running     bool

	completion *Completion
	canceller  *canceller

	faultOnce  sync.Once
	firstFault error
}

// GraphOption configures a graph at construction time.
type GraphOption func(*Graph)

// WithLogger sets the structured log sink for the graph and every
// node created on it.
func WithLogger(logger *zap.Logger) GraphOption {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithDefaultCapacity sets the buffer capacity inherited by nodes
// without an explicit one.
func WithDefaultCapacity(capacity int) GraphOption {
	return func(g *Graph) {
		g.defaultCapacity = capacity
	}
}

// WithCancelGrace sets the cancellation coordinator's grace period.
func WithCancelGrace(grace time.Duration) GraphOption {
	return func(g *Graph) {
		g.cancelGrace = grace
	}
}

// WithErrorHandoffTimeout bounds how long error channels may block
// the main path while handing a rejected row to their sink.
func WithErrorHandoffTimeout(timeout time.Duration) GraphOption {
	return func(g *Graph) {
		g.errHandoff = timeout
	}
}

// NewGraph creates an empty graph.
func NewGraph(name string, opts ...GraphOption) *Graph {
	g := &Graph{
		name:            name,
		logger:          zap.NewNop(),
		defaultCapacity: DefaultBufferCapacity,
		cancelGrace:     DefaultCancelGrace,
		errHandoff:      DefaultErrorHandoff,
		byName:          make(map[string]*Node),
		completion:      NewCompletion(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("graph", name))
	g.canceller = newCanceller(g.logger, g.cancelGrace)
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Completion returns the graph's overall completion handle: the join
// of the terminal nodes' handles. It settles exactly once, after Run
// has driven the graph to a terminal state.
func (g *Graph) Completion() *Completion { return g.completion }

// Node returns a declared node by name, or nil.
func (g *Graph) Node(name string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byName[name]
}

// AddSource declares a source node driven by the given collaborator.
func (g *Graph) AddSource(name string, source core.Source, opts ...NodeOption) (*Node, error) {
	if source == nil {
		return nil, errors.Newf(errors.ErrorTypeValidation, "source %q: nil collaborator", name)
	}
	return g.add(name, kindSource, func(n *Node) { n.source = source }, opts)
}

// AddTransform declares a transformation node.
func (g *Graph) AddTransform(name string, transform core.Transformation, opts ...NodeOption) (*Node, error) {
	if transform == nil {
		return nil, errors.Newf(errors.ErrorTypeValidation, "transform %q: nil collaborator", name)
	}
	return g.add(name, kindTransform, func(n *Node) { n.transform = transform }, opts)
}

// AddSink declares a sink (destination) node. Sinks are the graph's
// terminal nodes; their joined handles form the graph handle.
func (g *Graph) AddSink(name string, sink core.Destination, opts ...NodeOption) (*Node, error) {
	if sink == nil {
		return nil, errors.Newf(errors.ErrorTypeValidation, "sink %q: nil collaborator", name)
	}
	return g.add(name, kindSink, func(n *Node) { n.sink = sink }, opts)
}

func (g *Graph) add(name string, kind nodeKind, bind func(*Node), opts []NodeOption) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return nil, errors.New(errors.ErrorTypeConflict, "graph is already initialized")
	}
	if name == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "node name is required")
	}
	if _, exists := g.byName[name]; exists {
		return nil, errors.Newf(errors.ErrorTypeValidation, "duplicate node name %q", name)
	}

	n := &Node{
		name:       name,
		kind:       kind,
		graph:      g,
		logger:     g.logger.With(zap.String("node", name)),
		capacity:   g.defaultCapacity,
		completion: NewCompletion(),
	}
	bind(n)
	for _, opt := range opts {
		opt(n)
	}

	if n.capacity <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"node %q: buffer capacity must be > 0, got %d", name, n.capacity)
	}

	g.nodes = append(g.nodes, n)
	g.byName[name] = n
	return n, nil
}

// Link registers a directed edge between two declared nodes on both
// endpoints. The target's declared input type must be compatible with
// the source's declared output type. Links are immutable once the
// graph is initialized.
func (g *Graph) Link(from, to *Node, opts ...LinkOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return errors.New(errors.ErrorTypeConflict, "graph is already initialized")
	}
	if from == nil || to == nil {
		return errors.New(errors.ErrorTypeValidation, "link endpoints must not be nil")
	}
	if from.graph != g || to.graph != g {
		return errors.New(errors.ErrorTypeValidation, "link endpoints belong to another graph")
	}
	if from == to {
		return errors.Newf(errors.ErrorTypeValidation, "node %q cannot link to itself", from.name)
	}
	if from.kind == kindSink {
		return errors.Newf(errors.ErrorTypeValidation, "sink %q cannot be a link source", from.name)
	}
	if to.kind == kindSource {
		return errors.Newf(errors.ErrorTypeValidation, "source %q cannot be a link target", to.name)
	}
	if from.outputType != "" && to.inputType != "" && from.outputType != to.inputType {
		return errors.Newf(errors.ErrorTypeValidation,
			"type mismatch on link %s -> %s: %q does not satisfy %q",
			from.name, to.name, from.outputType, to.inputType)
	}

	link := &Link{from: from, to: to}
	for _, opt := range opts {
		opt(link)
	}

	// registered exactly once on both endpoints
	from.out = append(from.out, link)
	to.in = append(to.in, link)
	return nil
}

// Init performs the one-time initialization pass: an idempotent,
// visit-once traversal over the whole connected component that
// allocates buffers, validates the topology, and activates error
// channels. Re-initializing is a no-op.
func (g *Graph) Init() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return nil
	}
	if len(g.nodes) == 0 {
		return errors.New(errors.ErrorTypeValidation, "graph declares no nodes")
	}

	if err := g.validateAcyclic(); err != nil {
		return err
	}

	// explicit worklist; starting from every registered node reaches
	// the whole connected component regardless of declaration order
	visited := make(map[*Node]bool, len(g.nodes))
	stack := make([]*Node, 0, len(g.nodes))
	stack = append(stack, g.nodes...)

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		buffer, err := NewBuffer(n.name, n.capacity)
		if err != nil {
			return err
		}
		n.buffer = buffer
		n.setState(NodeInitialized)

		// a non-source node with no predecessors would block in its
		// drain loop forever; reject it before Run can hang on it
		if n.kind != kindSource && len(n.in) == 0 {
			return errors.Newf(errors.ErrorTypeValidation,
				"node %q has no predecessors and would never receive input", n.name)
		}

		for _, link := range n.in {
			stack = append(stack, link.from)
		}
		for _, link := range n.out {
			stack = append(stack, link.to)
		}
	}

	g.initialized = true
	g.logger.Info("graph initialized", zap.Int("nodes", len(g.nodes)))
	return nil
}

// validateAcyclic rejects cycles over the row-flow edges. Iterative
// three-colour DFS with an explicit stack.
func (g *Graph) validateAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	colour := make(map[*Node]int, len(g.nodes))

	type frame struct {
		node *Node
		next int
	}

	for _, start := range g.nodes {
		if colour[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		colour[start] = grey

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.node.out) {
				child := top.node.out[top.next].to
				top.next++
				switch colour[child] {
				case white:
					colour[child] = grey
					stack = append(stack, frame{node: child})
				case grey:
					return errors.Newf(errors.ErrorTypeValidation,
						"cycle detected through node %q", child.name)
				}
				continue
			}
			colour[top.node] = black
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}

// recordFault captures the first unhandled fault observed anywhere in
// the graph; it is re-raised at the graph completion handle.
func (g *Graph) recordFault(err error) {
	g.faultOnce.Do(func() {
		g.firstFault = err
	})
}

// terminals returns the sink-side terminal nodes: every node without
// successors.
func (g *Graph) terminals() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if len(n.out) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Run initializes the graph if needed, schedules every node's drain
// loop, and blocks until the graph completion handle settles. It
// returns nil when every terminal node succeeded, the first unhandled
// fault when the graph faulted, and a cancellation error when the
// graph was cancelled without a fault.
func (g *Graph) Run(ctx context.Context) error {
	if err := g.Init(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return errors.New(errors.ErrorTypeConflict, "graph is already running")
	}
	g.running = true
	nodes := make([]*Node, len(g.nodes))
	copy(nodes, g.nodes)
	g.mu.Unlock()

	g.logger.Info("graph started", zap.Int("nodes", len(nodes)))

	var eg errgroup.Group
	for _, n := range nodes {
		n := n
		eg.Go(func() error {
			n.run(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	return g.settle()
}

// settle joins the terminal nodes' outcomes into the graph handle.
// Every node handle has settled by the time this runs.
func (g *Graph) settle() error {
	outcome := OutcomeSucceeded
	var firstErr error

	for _, n := range g.terminals() {
		switch n.completion.Outcome() {
		case OutcomeFaulted:
			outcome = OutcomeFaulted
			if firstErr == nil {
				firstErr = n.completion.Err()
			}
		case OutcomeCancelled:
			if outcome != OutcomeFaulted {
				outcome = OutcomeCancelled
			}
		}
	}

	if g.firstFault != nil {
		outcome = OutcomeFaulted
		firstErr = g.firstFault
	}

	graphsCompleted.WithLabelValues(g.name, outcome.String()).Inc()

	switch outcome {
	case OutcomeFaulted:
		g.completion.Fault(firstErr)
		g.logger.Error("graph faulted", zap.Error(firstErr))
		return firstErr
	case OutcomeCancelled:
		g.completion.Cancel()
		g.logger.Warn("graph cancelled")
		return g.completion.Err()
	default:
		g.completion.Succeed()
		g.logger.Info("graph completed")
		return nil
	}
}
