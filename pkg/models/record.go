// Package models provides the data models shared by the Tributary
// engine and its collaborators: the Record type that flows through
// dataflow graphs and the ErrorRecord type delivered to error sinks.
package models

import (
	"time"
)

// RecordMetadata carries provenance information for a record. All
// fields are optional; the engine never inspects Custom.
type RecordMetadata struct {
	// Source identifies the origin component or connector
	Source string `json:"source,omitempty"`
	// Timestamp when the record was created or captured
	Timestamp time.Time `json:"timestamp"`
	// Custom holds collaborator-specific metadata
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Record is the unit of data that flows across dataflow graph edges.
// Data is a flat field map; nested values are stored as-is.
type Record struct {
	Data     map[string]interface{} `json:"data"`
	Metadata RecordMetadata         `json:"metadata"`
}

// NewRecord creates an empty record attributed to the given source.
func NewRecord(source string) *Record {
	return &Record{
		Data: make(map[string]interface{}),
		Metadata: RecordMetadata{
			Source:    source,
			Timestamp: time.Now(),
		},
	}
}

// FromMap creates a record around an existing field map. The map is
// not copied; the caller hands over ownership.
func FromMap(source string, data map[string]interface{}) *Record {
	r := NewRecord(source)
	if data != nil {
		r.Data = data
	}
	return r
}

// Set stores a field value and returns the record for chaining.
func (r *Record) Set(key string, value interface{}) *Record {
	r.Data[key] = value
	return r
}

// Get returns a field value and whether it was present.
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// Clone returns a copy of the record with its own field map. Values
// are copied shallowly; fan-out dispatch uses this so that successors
// never share a mutable map.
func (r *Record) Clone() *Record {
	data := make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	clone := &Record{
		Data:     data,
		Metadata: r.Metadata,
	}
	if r.Metadata.Custom != nil {
		clone.Metadata.Custom = make(map[string]interface{}, len(r.Metadata.Custom))
		for k, v := range r.Metadata.Custom {
			clone.Metadata.Custom[k] = v
		}
	}
	return clone
}

// ErrorRecord is delivered to an error sink in place of a row whose
// processing failed. Row holds the failing row's fields serialized
// as JSON so the sink does not retain live engine references.
type ErrorRecord struct {
	// Node names the graph node where processing failed
	Node string `json:"node"`
	// Message describes the failure
	Message string `json:"message"`
	// Row is the failing row serialized as JSON
	Row []byte `json:"row"`
	// Timestamp when the failure was captured
	Timestamp time.Time `json:"timestamp"`
}
