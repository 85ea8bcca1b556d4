package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

func TestSliceSourceEmitsInOrder(t *testing.T) {
	src := NewValueSource("value", 1, 2, 3)

	var got []interface{}
	err := src.Read(context.Background(), func(rec *models.Record) error {
		v, _ := rec.Get("value")
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2, 3}, got)
}

func TestSliceSourceStopsOnEmitError(t *testing.T) {
	src := NewValueSource("value", 1, 2, 3)
	cause := errors.New(errors.ErrorTypeCancelled, "stop")

	emitted := 0
	err := src.Read(context.Background(), func(*models.Record) error {
		emitted++
		if emitted == 2 {
			return cause
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, emitted)
}

func TestGeneratorSource(t *testing.T) {
	src := &GeneratorSource{
		Count: 5,
		Make: func(i int) *models.Record {
			return models.NewRecord("gen").Set("i", i)
		},
	}

	count := 0
	require.NoError(t, src.Read(context.Background(), func(*models.Record) error {
		count++
		return nil
	}))
	assert.Equal(t, 5, count)
}

func TestDestinationCollects(t *testing.T) {
	d := NewDestination()
	ctx := context.Background()

	require.NoError(t, d.Write(ctx, models.NewRecord("t").Set("value", 1)))
	require.NoError(t, d.Write(ctx, models.NewRecord("t").Set("value", 2)))
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []interface{}{1, 2}, d.Values("value"))

	err := d.Write(ctx, models.NewRecord("t").Set("value", 3))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	assert.Equal(t, 2, d.Len())
}

func TestErrorSink(t *testing.T) {
	s := NewErrorSink()
	ctx := context.Background()

	rec := models.ErrorRecord{Node: "double", Message: "bad row"}
	require.NoError(t, s.Accept(ctx, rec))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "double", s.Records()[0].Node)

	s.Unavailable = true
	require.Error(t, s.Accept(ctx, rec))
	assert.Equal(t, 1, s.Len())
}
