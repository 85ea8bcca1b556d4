package dataflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

// KeyFunc extracts a match key from a record. Keys must be
// comparable; extraction errors reject the row.
type KeyFunc func(*models.Record) (interface{}, error)

// MatchFunc combines a primary row with its matching lookup entry and
// returns the enriched output rows.
type MatchFunc func(record, entry *models.Record) ([]*models.Record, error)

// Field returns a KeyFunc reading the named field. A missing field is
// a row error. This replaces name-driven runtime introspection: the
// caller states the key explicitly at construction time.
func Field(name string) KeyFunc {
	return func(record *models.Record) (interface{}, error) {
		v, ok := record.Get(name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "field %q missing", name)
		}
		return v, nil
	}
}

// Lookup is a staged transformation: before the first primary row is
// transformed, it fully drains a secondary source into an in-memory
// table, then enriches primary rows against that table. The barrier
// runs exactly once per instance; if the secondary source faults
// during preload the component faults before any primary row is
// processed, so partial lookup state is never exposed. After the
// barrier, primary-row processing reads the table without blocking.
//
// Lookup implements core.Transformation and core.Initializer; wire it
// into a graph with AddTransform.
type Lookup struct {
	name      string
	logger    *zap.Logger
	secondary core.Source

	keyOf      KeyFunc
	entryKeyOf KeyFunc
	match      MatchFunc
	valueField string

	capacity  int
	errSink   core.ErrorSink // secondary-source rejects, optional
	once      sync.Once
	initErr   error
	table     map[interface{}]*models.Record
	preloaded bool
}

// LookupOption configures a Lookup at construction time.
type LookupOption func(*Lookup)

// WithLookupLogger sets the log sink for the preload subgraph.
func WithLookupLogger(logger *zap.Logger) LookupOption {
	return func(l *Lookup) {
		l.logger = logger
	}
}

// WithMatch replaces the default mapping function. Callers that need
// tolerant matching supply one that handles absent entries itself.
func WithMatch(match MatchFunc) LookupOption {
	return func(l *Lookup) {
		l.match = match
	}
}

// WithValueField designates the entry field the default mapping
// copies onto matching primary rows.
func WithValueField(field string) LookupOption {
	return func(l *Lookup) {
		l.valueField = field
	}
}

// WithPreloadCapacity sets the buffer capacity of the preload
// subgraph's nodes.
func WithPreloadCapacity(capacity int) LookupOption {
	return func(l *Lookup) {
		l.capacity = capacity
	}
}

// NewLookup creates a staged transformation. keyOf extracts the match
// key from primary rows; entryKeyOf extracts it from secondary-source
// entries. Without WithMatch, the default mapping copies the value
// field designated by WithValueField and treats a missing key match
// as a row error.
func NewLookup(name string, secondary core.Source, keyOf, entryKeyOf KeyFunc, opts ...LookupOption) (*Lookup, error) {
	if secondary == nil {
		return nil, errors.Newf(errors.ErrorTypeValidation, "lookup %q: nil secondary source", name)
	}
	if keyOf == nil || entryKeyOf == nil {
		return nil, errors.Newf(errors.ErrorTypeValidation, "lookup %q: key functions are required", name)
	}

	l := &Lookup{
		name:       name,
		logger:     zap.NewNop(),
		secondary:  secondary,
		keyOf:      keyOf,
		entryKeyOf: entryKeyOf,
		capacity:   DefaultBufferCapacity,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.match == nil && l.valueField == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"lookup %q: either WithValueField or WithMatch is required", name)
	}

	return l, nil
}

// LinkSecondaryErrorTo attaches an error sink for rejects raised
// while accumulating secondary-source entries, independent of the
// error sink of the node hosting this transformation. Without one, a
// bad entry faults the preload.
func (l *Lookup) LinkSecondaryErrorTo(sink core.ErrorSink) {
	l.errSink = sink
}

// Init runs the one-time preload barrier. The secondary source
// executes to completion as a private subgraph; Init returns only
// after that subgraph's completion handle settles. Exactly one
// barrier execution happens per instance regardless of callers.
func (l *Lookup) Init(ctx context.Context) error {
	l.once.Do(func() {
		l.initErr = l.preload(ctx)
	})
	return l.initErr
}

// Preloaded reports whether the barrier has completed successfully.
func (l *Lookup) Preloaded() bool {
	return l.preloaded
}

// TableSize returns the number of accumulated lookup entries.
func (l *Lookup) TableSize() int {
	return len(l.table)
}

func (l *Lookup) preload(ctx context.Context) error {
	table := make(map[interface{}]*models.Record)
	collector := &lookupCollector{lookup: l, table: table}

	g := NewGraph(l.name+"-preload",
		WithLogger(l.logger),
		WithDefaultCapacity(l.capacity))

	src, err := g.AddSource("secondary", l.secondary)
	if err != nil {
		return err
	}
	sink, err := g.AddSink("collector", collector)
	if err != nil {
		return err
	}
	if l.errSink != nil {
		if err := sink.LinkErrorTo(l.errSink); err != nil {
			return err
		}
	}
	if err := g.Link(src, sink); err != nil {
		return err
	}

	if err := g.Run(ctx); err != nil {
		// no partial state is ever exposed
		return errors.Wrap(err, errors.ErrorTypeData, "lookup preload failed")
	}

	l.table = table
	l.preloaded = true
	l.logger.Info("lookup preloaded",
		zap.String("lookup", l.name),
		zap.Int("entries", len(table)))
	return nil
}

// Apply implements core.Transformation. The node hosting this
// transformation calls Init before the first row, so the table is
// complete and read-only here.
func (l *Lookup) Apply(_ context.Context, record *models.Record) ([]*models.Record, error) {
	key, err := l.keyOf(record)
	if err != nil {
		return nil, err
	}

	entry, ok := l.table[key]
	if !ok {
		if l.match != nil {
			return l.match(record, nil)
		}
		return nil, errors.Newf(errors.ErrorTypeData, "no lookup entry for key %v", key)
	}

	if l.match != nil {
		return l.match(record, entry)
	}

	value, ok := entry.Get(l.valueField)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData,
			"lookup entry for key %v has no field %q", key, l.valueField)
	}
	record.Set(l.valueField, value)
	return []*models.Record{record}, nil
}

// lookupCollector is the preload subgraph's sink: it indexes every
// secondary-source entry by its extracted key.
type lookupCollector struct {
	lookup *Lookup
	table  map[interface{}]*models.Record
}

func (c *lookupCollector) Write(_ context.Context, record *models.Record) error {
	key, err := c.lookup.entryKeyOf(record)
	if err != nil {
		return err
	}
	c.table[key] = record
	return nil
}

func (c *lookupCollector) Close(_ context.Context) error {
	return nil
}

var (
	_ core.Transformation = (*Lookup)(nil)
	_ core.Initializer    = (*Lookup)(nil)
	_ core.Destination    = (*lookupCollector)(nil)
)
