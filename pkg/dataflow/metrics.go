package dataflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the package tracer; spans cover one node run each.
var tracer trace.Tracer = otel.Tracer("github.com/ajitpratap0/tributary/pkg/dataflow")

var (
	nodeRowsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tributary",
		Subsystem: "dataflow",
		Name:      "rows_in_total",
		Help:      "Rows admitted to a node's operation.",
	}, []string{"graph", "node"})

	nodeRowsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tributary",
		Subsystem: "dataflow",
		Name:      "rows_out_total",
		Help:      "Rows dispatched to successors or written to a sink.",
	}, []string{"graph", "node"})

	nodeRowsErrored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tributary",
		Subsystem: "dataflow",
		Name:      "rows_errored_total",
		Help:      "Rows redirected to an error sink.",
	}, []string{"graph", "node"})

	nodeBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tributary",
		Subsystem: "dataflow",
		Name:      "buffer_depth",
		Help:      "Rows queued in a node's input buffer.",
	}, []string{"graph", "node"})

	graphsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tributary",
		Subsystem: "dataflow",
		Name:      "graphs_completed_total",
		Help:      "Graph executions by terminal outcome.",
	}, []string{"graph", "outcome"})
)
