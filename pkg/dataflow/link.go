package dataflow

import (
	"github.com/ajitpratap0/tributary/pkg/models"
)

// Predicate decides whether a row crosses a link. It must be a pure
// function of the row: the engine may evaluate it concurrently and
// never re-evaluates it for the same dispatch.
type Predicate func(*models.Record) bool

// Link is a directed edge between two nodes. A row emitted by the
// source node is dispatched to every outgoing link whose predicate
// accepts it; a nil predicate accepts everything. Links are recorded
// on both endpoints at build time and immutable once the graph is
// initialized.
type Link struct {
	from      *Node
	to        *Node
	predicate Predicate
}

// From returns the link's source node.
func (l *Link) From() *Node { return l.from }

// To returns the link's target node.
func (l *Link) To() *Node { return l.to }

// accepts reports whether the row crosses this link.
func (l *Link) accepts(record *models.Record) bool {
	return l.predicate == nil || l.predicate(record)
}

// LinkOption configures a link at build time.
type LinkOption func(*Link)

// WithPredicate sets the link's row predicate.
func WithPredicate(p Predicate) LinkOption {
	return func(l *Link) {
		l.predicate = p
	}
}
