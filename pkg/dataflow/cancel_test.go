package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tributary/pkg/connector/memory"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/testutil"
	"go.uber.org/zap"
)

func TestCancelPhaseString(t *testing.T) {
	assert.Equal(t, "request_stop", PhaseRequestStop.String())
	assert.Equal(t, "stop_scheduling", PhaseStopScheduling.String())
	assert.Equal(t, "force_settle", PhaseForceSettle.String())
}

func TestAncestorsOfLinearChain(t *testing.T) {
	g := NewGraph("chain", WithLogger(testutil.TestLogger(t)))
	src, err := g.AddSource("src", memory.NewValueSource("value", 1))
	require.NoError(t, err)
	a, err := g.AddTransform("a", doubler())
	require.NoError(t, err)
	b, err := g.AddTransform("b", doubler())
	require.NoError(t, err)
	snk, err := g.AddSink("snk", memory.NewDestination())
	require.NoError(t, err)
	require.NoError(t, g.Link(src, a))
	require.NoError(t, g.Link(a, b))
	require.NoError(t, g.Link(b, snk))

	ancestors := ancestorsOf(snk)
	require.Len(t, ancestors, 3)
	assert.Equal(t, []*Node{src, a, b}, ancestors, "most-upstream first")

	assert.Empty(t, ancestorsOf(src))
}

func TestAncestorsOfDiamond(t *testing.T) {
	g := NewGraph("diamond", WithLogger(testutil.TestLogger(t)))
	src, err := g.AddSource("src", memory.NewValueSource("value", 1))
	require.NoError(t, err)
	left, err := g.AddTransform("left", doubler())
	require.NoError(t, err)
	right, err := g.AddTransform("right", doubler())
	require.NoError(t, err)
	join, err := g.AddSink("join", memory.NewDestination())
	require.NoError(t, err)
	require.NoError(t, g.Link(src, left))
	require.NoError(t, g.Link(src, right))
	require.NoError(t, g.Link(left, join))
	require.NoError(t, g.Link(right, join))

	ancestors := ancestorsOf(join)
	require.Len(t, ancestors, 3, "shared ancestor visited once")

	index := make(map[*Node]int, len(ancestors))
	for i, n := range ancestors {
		index[n] = i
	}
	assert.Less(t, index[src], index[left], "source comes before its successor")
	assert.Less(t, index[src], index[right], "source comes before its successor")
}

func TestApplyCancelPhaseFlags(t *testing.T) {
	buffer, err := NewBuffer("n", 4)
	require.NoError(t, err)
	n := &Node{
		name:       "n",
		logger:     zap.NewNop(),
		buffer:     buffer,
		completion: NewCompletion(),
	}

	n.applyCancelPhase(PhaseRequestStop, nil)
	assert.True(t, n.CancelRequested())
	assert.True(t, n.stopIntake.Load())
	assert.False(t, n.stopSched.Load())

	n.applyCancelPhase(PhaseStopScheduling, nil)
	assert.True(t, n.stopSched.Load())
	assert.Equal(t, BufferOpen, buffer.State(), "draining phases leave the buffer intact")
	assert.False(t, n.completion.Settled())
}

func TestApplyCancelPhaseForceSettle(t *testing.T) {
	t.Run("already settled is a no-op", func(t *testing.T) {
		buffer, err := NewBuffer("done", 4)
		require.NoError(t, err)
		n := &Node{name: "done", logger: zap.NewNop(), buffer: buffer, completion: NewCompletion()}
		n.completion.Succeed()

		n.applyCancelPhase(PhaseForceSettle, nil)
		assert.Equal(t, OutcomeSucceeded, n.completion.Outcome())
		assert.Equal(t, BufferOpen, buffer.State())
	})

	t.Run("settles through the buffer fault", func(t *testing.T) {
		buffer, err := NewBuffer("live", 4)
		require.NoError(t, err)
		n := &Node{name: "live", logger: zap.NewNop(), buffer: buffer, completion: NewCompletion()}

		// a drain loop would observe the faulted buffer and settle; the
		// stand-in here settles on the buffer's own drain handle
		go func() {
			<-buffer.Drained().Done()
			n.completion.Cancel()
		}()

		grace := make(chan struct{})
		n.applyCancelPhase(PhaseForceSettle, grace)
		assert.Equal(t, OutcomeCancelled, n.completion.Outcome())
		assert.Equal(t, BufferFaulted, buffer.State())
		assert.True(t, errors.IsCancelled(buffer.Err()))
	})

	t.Run("grace expiry forces cancellation", func(t *testing.T) {
		buffer, err := NewBuffer("stuck", 4)
		require.NoError(t, err)
		n := &Node{name: "stuck", logger: zap.NewNop(), buffer: buffer, completion: NewCompletion()}

		grace := make(chan struct{})
		close(grace)
		n.applyCancelPhase(PhaseForceSettle, grace)
		assert.Equal(t, OutcomeCancelled, n.completion.Outcome())
	})
}
