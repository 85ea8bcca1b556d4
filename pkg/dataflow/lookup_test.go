package dataflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/connector/memory"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
	"github.com/ajitpratap0/tributary/pkg/testutil"
)

// currencyTable yields n entries mapping code-i to rate i.
func currencyTable(n int) core.Source {
	return &memory.GeneratorSource{
		Count: n,
		Make: func(i int) *models.Record {
			return models.NewRecord("rates").
				Set("code", fmt.Sprintf("code-%d", i)).
				Set("rate", i)
		},
	}
}

func TestNewLookupValidation(t *testing.T) {
	key := Field("code")

	_, err := NewLookup("l", nil, key, key, WithValueField("rate"))
	require.Error(t, err)

	_, err = NewLookup("l", currencyTable(1), nil, key, WithValueField("rate"))
	require.Error(t, err)

	_, err = NewLookup("l", currencyTable(1), key, nil, WithValueField("rate"))
	require.Error(t, err)

	// neither a value field nor a match function
	_, err = NewLookup("l", currencyTable(1), key, key)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestLookupPreloadBarrier(t *testing.T) {
	ctx := testutil.TestContext(t)

	for _, entries := range []int{0, 1, 100} {
		t.Run(fmt.Sprintf("%d entries", entries), func(t *testing.T) {
			l, err := NewLookup("rates", currencyTable(entries),
				Field("code"), Field("code"),
				WithValueField("rate"),
				WithLookupLogger(testutil.TestLogger(t)))
			require.NoError(t, err)
			assert.False(t, l.Preloaded())

			require.NoError(t, l.Init(ctx))
			assert.True(t, l.Preloaded())
			assert.Equal(t, entries, l.TableSize())
		})
	}
}

func TestLookupInitRunsOnce(t *testing.T) {
	ctx := testutil.TestContext(t)

	var reads atomic.Int32
	secondary := core.SourceFunc(func(_ context.Context, emit func(*models.Record) error) error {
		reads.Add(1)
		return emit(models.NewRecord("rates").Set("code", "usd").Set("rate", 1))
	})

	l, err := NewLookup("rates", secondary, Field("code"), Field("code"),
		WithValueField("rate"))
	require.NoError(t, err)

	require.NoError(t, l.Init(ctx))
	require.NoError(t, l.Init(ctx))
	assert.Equal(t, int32(1), reads.Load())
	assert.Equal(t, 1, l.TableSize())
}

func TestLookupPreloadFaultExposesNoPartialState(t *testing.T) {
	ctx := testutil.TestContext(t)

	secondary := core.SourceFunc(func(_ context.Context, emit func(*models.Record) error) error {
		if err := emit(models.NewRecord("rates").Set("code", "usd").Set("rate", 1)); err != nil {
			return err
		}
		return errors.New(errors.ErrorTypeConnection, "feed dropped")
	})

	l, err := NewLookup("rates", secondary, Field("code"), Field("code"),
		WithValueField("rate"), WithLookupLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	err = l.Init(ctx)
	require.Error(t, err)
	assert.False(t, l.Preloaded())
	assert.Equal(t, 0, l.TableSize(), "partially accumulated entries must not leak")

	// the failure is cached, not retried
	assert.Same(t, err, l.Init(ctx))
}

func TestLookupApplyDefaultMapping(t *testing.T) {
	ctx := testutil.TestContext(t)

	l, err := NewLookup("rates", currencyTable(3), Field("code"), Field("code"),
		WithValueField("rate"))
	require.NoError(t, err)
	require.NoError(t, l.Init(ctx))

	t.Run("match copies the value field", func(t *testing.T) {
		out, err := l.Apply(ctx, models.NewRecord("orders").Set("code", "code-2"))
		require.NoError(t, err)
		require.Len(t, out, 1)
		rate, _ := out[0].Get("rate")
		assert.Equal(t, 2, rate)
	})

	t.Run("missing entry is a row error", func(t *testing.T) {
		_, err := l.Apply(ctx, models.NewRecord("orders").Set("code", "code-99"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})

	t.Run("missing key field is a row error", func(t *testing.T) {
		_, err := l.Apply(ctx, models.NewRecord("orders"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})
}

func TestLookupApplyCustomMatch(t *testing.T) {
	ctx := testutil.TestContext(t)

	// tolerant mapping: unmatched rows pass through with a default rate
	match := func(record, entry *models.Record) ([]*models.Record, error) {
		if entry == nil {
			record.Set("rate", 0)
			return []*models.Record{record}, nil
		}
		rate, _ := entry.Get("rate")
		record.Set("rate", rate)
		return []*models.Record{record}, nil
	}

	l, err := NewLookup("rates", currencyTable(2), Field("code"), Field("code"),
		WithMatch(match))
	require.NoError(t, err)
	require.NoError(t, l.Init(ctx))

	out, err := l.Apply(ctx, models.NewRecord("orders").Set("code", "code-1"))
	require.NoError(t, err)
	rate, _ := out[0].Get("rate")
	assert.Equal(t, 1, rate)

	out, err = l.Apply(ctx, models.NewRecord("orders").Set("code", "unknown"))
	require.NoError(t, err)
	rate, _ = out[0].Get("rate")
	assert.Equal(t, 0, rate)
}

func TestLookupSecondaryErrorSink(t *testing.T) {
	ctx := testutil.TestContext(t)

	// one entry is missing its key field; with a secondary error sink
	// the preload survives and indexes the rest
	secondary := memory.NewSliceSource(
		models.NewRecord("rates").Set("code", "usd").Set("rate", 1),
		models.NewRecord("rates").Set("rate", 2),
		models.NewRecord("rates").Set("code", "eur").Set("rate", 3),
	)

	l, err := NewLookup("rates", secondary, Field("code"), Field("code"),
		WithValueField("rate"), WithLookupLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	errSink := memory.NewErrorSink()
	l.LinkSecondaryErrorTo(errSink)

	require.NoError(t, l.Init(ctx))
	assert.Equal(t, 2, l.TableSize())
	require.Equal(t, 1, errSink.Len())
	assert.Contains(t, errSink.Records()[0].Message, "code")
}

func TestLookupInGraph(t *testing.T) {
	ctx := testutil.TestContext(t)

	l, err := NewLookup("rates", currencyTable(5), Field("code"), Field("code"),
		WithValueField("rate"), WithLookupLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	g := NewGraph("enrich", WithLogger(testutil.TestLogger(t)))
	src, err := g.AddSource("orders", memory.NewSliceSource(
		models.NewRecord("orders").Set("id", 1).Set("code", "code-1"),
		models.NewRecord("orders").Set("id", 2).Set("code", "missing"),
		models.NewRecord("orders").Set("id", 3).Set("code", "code-3"),
	))
	require.NoError(t, err)
	xf, err := g.AddTransform("enrich", l)
	require.NoError(t, err)
	sink := memory.NewDestination()
	snk, err := g.AddSink("collect", sink)
	require.NoError(t, err)
	require.NoError(t, g.Link(src, xf))
	require.NoError(t, g.Link(xf, snk))

	errSink := memory.NewErrorSink()
	require.NoError(t, xf.LinkErrorTo(errSink))

	require.NoError(t, g.Run(ctx))

	assert.True(t, l.Preloaded(), "barrier ran before the first primary row")
	assert.Equal(t, []interface{}{1, 3}, sink.Values("rate"))
	assert.Equal(t, []interface{}{1, 3}, sink.Values("id"))
	require.Equal(t, 1, errSink.Len())
	assert.Equal(t, "enrich", errSink.Records()[0].Node)
}

func TestLookupPreloadFaultFailsHostNode(t *testing.T) {
	ctx := testutil.TestContext(t)

	secondary := core.SourceFunc(func(_ context.Context, _ func(*models.Record) error) error {
		return errors.New(errors.ErrorTypeConnection, "feed unreachable")
	})
	l, err := NewLookup("rates", secondary, Field("code"), Field("code"),
		WithValueField("rate"), WithLookupLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	g := NewGraph("enrich", WithLogger(testutil.TestLogger(t)))
	src, err := g.AddSource("orders", memory.NewValueSource("code", "code-1"))
	require.NoError(t, err)
	xf, err := g.AddTransform("enrich", l)
	require.NoError(t, err)
	sink := memory.NewDestination()
	snk, err := g.AddSink("collect", sink)
	require.NoError(t, err)
	require.NoError(t, g.Link(src, xf))
	require.NoError(t, g.Link(xf, snk))

	err = g.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed unreachable")
	assert.Equal(t, OutcomeFaulted, g.Completion().Outcome())
	assert.Equal(t, 0, sink.Len(), "no primary row was processed")
}
