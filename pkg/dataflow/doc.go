// Package dataflow implements the Tributary execution engine: it
// wires independent processing nodes into a directed graph and drives
// their execution with buffering, backpressure, completion
// propagation, fault containment, and error-row redirection.
//
// # Overview
//
// A graph is built in three steps: declare nodes (AddSource,
// AddTransform, AddSink), wire them (Link, optionally with a row
// predicate), then execute (Run). Initialization is a one-time,
// idempotent traversal that allocates every node's bounded buffer and
// validates the topology; execution schedules one drain loop per
// node, each an independently scheduled unit of work.
//
//	g := dataflow.NewGraph("orders", dataflow.WithLogger(logger))
//	src, _ := g.AddSource("read", source, dataflow.WithCapacity(2))
//	dbl, _ := g.AddTransform("double", core.TransformFunc(double))
//	out, _ := g.AddSink("write", destination)
//	_ = g.Link(src, dbl)
//	_ = g.Link(dbl, out)
//	err := g.Run(ctx)
//
// # Completion
//
// Every node owns a completion handle, a future settling exactly once
// to Succeeded, Faulted, or Cancelled. A node's handle joins its
// predecessors' handles with its own buffer completion; the graph's
// handle joins the terminal nodes'. An upstream fault is carried
// downstream unmasked; cancellation observed on a non-originating
// branch settles that branch as Cancelled.
//
// # Fault containment
//
// A row whose processing fails is redirected to the node's error sink
// when one is linked (LinkErrorTo), leaving the node's handle
// unaffected. Without a sink the error becomes a graph fault: the
// cancellation coordinator walks the predecessor chain to every
// reachable source, upstream first, and only after all ancestors have
// acknowledged the stop does the fault propagate downstream.
//
// # Staged transformations
//
// Lookup is the canonical staged component: a one-time barrier drains
// a secondary source to completion before the first primary row is
// transformed. Any operation implementing core.Initializer gets the
// same barrier treatment.
package dataflow
