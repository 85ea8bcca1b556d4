// Package core defines the capability contracts through which the
// dataflow engine reaches its collaborators. The engine knows nothing
// about wire formats, SQL, or connection strings; a collaborator that
// satisfies one of these interfaces can be wired into a graph node.
package core

import (
	"context"

	"github.com/ajitpratap0/tributary/pkg/models"
)

// Source produces a sequence of records into a linked buffer. Read
// calls emit once per record and returns when the sequence is
// exhausted or on the first emit error. A non-nil return that is not
// a cancellation faults the owning node.
type Source interface {
	Read(ctx context.Context, emit func(*models.Record) error) error
}

// Destination accepts records via its node's input buffer. Close is
// called exactly once after the last successful Write; it flushes any
// collaborator-side state.
type Destination interface {
	Write(ctx context.Context, record *models.Record) error
	Close(ctx context.Context) error
}

// Transformation maps one record to zero or more output records.
// Returning an empty slice drops the row; returning an error rejects
// it (redirected to an error sink when one is configured, otherwise
// a graph fault).
type Transformation interface {
	Apply(ctx context.Context, record *models.Record) ([]*models.Record, error)
}

// Initializer is an optional hook for staged transformations. When a
// node's operation implements it, Init runs to completion before the
// first row is processed; an Init error faults the node before any
// row is touched.
type Initializer interface {
	Init(ctx context.Context) error
}

// ErrorSink accepts rejected rows redirected by an error channel.
type ErrorSink interface {
	Accept(ctx context.Context, record models.ErrorRecord) error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, emit func(*models.Record) error) error

// Read implements Source.
func (f SourceFunc) Read(ctx context.Context, emit func(*models.Record) error) error {
	return f(ctx, emit)
}

// TransformFunc adapts a one-to-one mapping function to the
// Transformation interface. Returning nil drops the row.
type TransformFunc func(ctx context.Context, record *models.Record) (*models.Record, error)

// Apply implements Transformation.
func (f TransformFunc) Apply(ctx context.Context, record *models.Record) ([]*models.Record, error) {
	out, err := f(ctx, record)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return []*models.Record{out}, nil
}

// FlatMapFunc adapts a one-to-many mapping function to the
// Transformation interface.
type FlatMapFunc func(ctx context.Context, record *models.Record) ([]*models.Record, error)

// Apply implements Transformation.
func (f FlatMapFunc) Apply(ctx context.Context, record *models.Record) ([]*models.Record, error) {
	return f(ctx, record)
}

// ErrorSinkFunc adapts a function to the ErrorSink interface.
type ErrorSinkFunc func(ctx context.Context, record models.ErrorRecord) error

// Accept implements ErrorSink.
func (f ErrorSinkFunc) Accept(ctx context.Context, record models.ErrorRecord) error {
	return f(ctx, record)
}
