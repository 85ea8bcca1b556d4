// Package tributary is a dataflow execution engine for data
// integration pipelines.
//
// A pipeline is a directed acyclic graph of nodes connected by links.
// Sources produce rows, transformations reshape them, and sinks write
// them out. Every node owns a bounded input buffer; a producer that
// outruns its consumer suspends until capacity frees up, so
// backpressure propagates through the graph without unbounded
// queueing.
//
// # Completion
//
// Every node carries a completion handle that settles exactly once to
// Succeeded, Faulted, or Cancelled. A node's handle is joined with its
// predecessors' handles: when all predecessors succeed the node drains
// and completes; when one faults, the original error carries forward
// unmasked. The graph's own handle joins the terminal sinks.
//
// # Fault containment
//
// An unhandled row error faults its node, and the engine cancels every
// upstream ancestor in phases: sources stop admitting rows, buffered
// work stops being scheduled, then remaining handles are forced to
// settle after a bounded grace period. The faulting node's handle
// settles only after all ancestors have acknowledged cancellation, so
// no source keeps feeding a graph that is tearing down. Nodes with an
// error sink attached redirect failed rows there instead of faulting.
//
// # Packages
//
//   - pkg/dataflow: the engine (graphs, nodes, buffers, completion,
//     cancellation, error channels, staged lookups)
//   - pkg/connector/core: the Source, Destination, Transformation,
//     and ErrorSink contracts
//   - pkg/connector/memory: in-memory collaborators for tests and demos
//   - pkg/models: the Record and ErrorRecord types
//   - pkg/config: engine settings and pipeline definition files
//   - pkg/errors: structured error taxonomy
//
// See cmd/tributary for the CLI and examples/ for runnable pipelines.
package tributary
