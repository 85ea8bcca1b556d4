// Package memory provides in-process collaborators for the dataflow
// engine: slice-backed sources, a collecting destination, and a
// collecting error sink. They back the engine's tests, benchmarks,
// and the CLI demo pipelines.
package memory

import (
	"context"
	"sync"

	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

// SliceSource emits a fixed slice of records in order.
type SliceSource struct {
	records []*models.Record
}

// NewSliceSource creates a source over the given records.
func NewSliceSource(records ...*models.Record) *SliceSource {
	return &SliceSource{records: records}
}

// NewValueSource creates a source emitting one record per value,
// stored under the given field name. Convenient for tests and demos.
func NewValueSource(field string, values ...interface{}) *SliceSource {
	records := make([]*models.Record, 0, len(values))
	for _, v := range values {
		records = append(records, models.NewRecord("memory").Set(field, v))
	}
	return &SliceSource{records: records}
}

// Read implements core.Source.
func (s *SliceSource) Read(_ context.Context, emit func(*models.Record) error) error {
	for _, rec := range s.records {
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

// GeneratorSource emits Count records produced by Make. It is used by
// benchmarks and backpressure tests where the row count matters more
// than the content.
type GeneratorSource struct {
	Count int
	Make  func(i int) *models.Record
}

// Read implements core.Source.
func (g *GeneratorSource) Read(_ context.Context, emit func(*models.Record) error) error {
	for i := 0; i < g.Count; i++ {
		rec := g.Make(i)
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

// Destination collects every written record. Safe for concurrent use.
type Destination struct {
	mu      sync.Mutex
	records []*models.Record
	closed  bool
}

// NewDestination creates an empty collecting destination.
func NewDestination() *Destination {
	return &Destination{}
}

// Write implements core.Destination.
func (d *Destination) Write(_ context.Context, record *models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeConflict, "write after close")
	}
	d.records = append(d.records, record)
	return nil
}

// Close implements core.Destination.
func (d *Destination) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Records returns a snapshot of the collected records in write order.
func (d *Destination) Records() []*models.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.Record, len(d.records))
	copy(out, d.records)
	return out
}

// Values returns the collected values of the given field in write
// order. Records without the field are skipped.
func (d *Destination) Values(field string) []interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]interface{}, 0, len(d.records))
	for _, rec := range d.records {
		if v, ok := rec.Get(field); ok {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of collected records.
func (d *Destination) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// ErrorSink collects redirected error records. Setting Unavailable
// makes Accept fail, which tests the engine's escalate-to-fault path.
type ErrorSink struct {
	mu          sync.Mutex
	records     []models.ErrorRecord
	Unavailable bool
}

// NewErrorSink creates an empty collecting error sink.
func NewErrorSink() *ErrorSink {
	return &ErrorSink{}
}

// Accept implements core.ErrorSink.
func (s *ErrorSink) Accept(_ context.Context, record models.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable {
		return errors.New(errors.ErrorTypeConnection, "error sink unavailable")
	}
	s.records = append(s.records, record)
	return nil
}

// Records returns a snapshot of the collected error records.
func (s *ErrorSink) Records() []models.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ErrorRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of collected error records.
func (s *ErrorSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var (
	_ core.Source      = (*SliceSource)(nil)
	_ core.Source      = (*GeneratorSource)(nil)
	_ core.Destination = (*Destination)(nil)
	_ core.ErrorSink   = (*ErrorSink)(nil)
)
