package dataflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CancelPhase identifies one step of the multi-phase cancellation
// protocol. Phases are applied to every reachable ancestor in order;
// a phase starts only after the previous one has been acknowledged by
// all of them.
type CancelPhase int

const (
	// PhaseRequestStop stops sources from admitting new rows
	PhaseRequestStop CancelPhase = iota
	// PhaseStopScheduling stops scheduling work on buffered rows
	PhaseStopScheduling
	// PhaseForceSettle forces pending completion handles to settle
	// as Cancelled after a bounded grace period
	PhaseForceSettle
)

// String returns a human-readable phase name.
func (p CancelPhase) String() string {
	switch p {
	case PhaseRequestStop:
		return "request_stop"
	case PhaseStopScheduling:
		return "stop_scheduling"
	case PhaseForceSettle:
		return "force_settle"
	default:
		return "unknown"
	}
}

// canceller coordinates graph shutdown after an unhandled fault. The
// walk is upstream-first: every ancestor reachable from the faulting
// node acknowledges all three phases before the faulting node's own
// handle is allowed to settle, so no source keeps feeding a graph
// that is already tearing down. Walks are serialized; a second fault
// racing the first finds handles already settled and is a no-op.
type canceller struct {
	logger *zap.Logger
	grace  time.Duration
	mu     sync.Mutex
}

func newCanceller(logger *zap.Logger, grace time.Duration) *canceller {
	return &canceller{
		logger: logger.With(zap.String("component", "canceller")),
		grace:  grace,
	}
}

// CancelUpstream walks the predecessor chain from origin to every
// reachable source and applies the cancellation phases in order.
// It returns only after every ancestor has acknowledged every phase.
func (c *canceller) CancelUpstream(_ context.Context, origin *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ancestors := ancestorsOf(origin)
	if len(ancestors) == 0 {
		return
	}

	c.logger.Info("cancelling upstream",
		zap.String("origin", origin.name),
		zap.Int("ancestors", len(ancestors)))

	for _, phase := range []CancelPhase{PhaseRequestStop, PhaseStopScheduling, PhaseForceSettle} {
		var grace <-chan struct{}
		if phase == PhaseForceSettle {
			timer := time.NewTimer(c.grace)
			defer timer.Stop()
			graceCh := make(chan struct{})
			go func() {
				<-timer.C
				close(graceCh)
			}()
			grace = graceCh
		}

		for _, node := range ancestors {
			node.applyCancelPhase(phase, grace)
		}

		c.logger.Debug("cancellation phase acknowledged",
			zap.String("phase", phase.String()))
	}
}

// ancestorsOf collects every node reachable through predecessor links
// from origin, most-upstream first. The traversal uses an explicit
// stack and a visited set so depth never depends on call-stack limits.
func ancestorsOf(origin *Node) []*Node {
	visited := map[*Node]bool{origin: true}
	var order []*Node

	// iterative post-order over predecessor edges: a node is emitted
	// only after all of its own predecessors, so sources come first
	type frame struct {
		node     *Node
		expanded bool
	}
	stack := []frame{}
	for _, link := range origin.in {
		if !visited[link.from] {
			visited[link.from] = true
			stack = append(stack, frame{node: link.from})
		}
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.expanded {
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
			continue
		}
		top.expanded = true
		for _, link := range top.node.in {
			if !visited[link.from] {
				visited[link.from] = true
				stack = append(stack, frame{node: link.from})
			}
		}
	}

	return order
}
