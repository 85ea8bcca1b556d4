package main

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tributary/pkg/config"
	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/connector/memory"
	"github.com/ajitpratap0/tributary/pkg/dataflow"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

// buildGraph materializes a pipeline definition into a dataflow
// graph using the built-in demo collaborators. Real deployments wire
// their own Source/Destination implementations programmatically; the
// CLI supports a small set of kinds for running definitions directly.
func buildGraph(spec *config.PipelineSpec, cfg *config.Config, log *zap.Logger) (*dataflow.Graph, []*dataflow.Node, error) {
	graph := dataflow.NewGraph(spec.Name,
		dataflow.WithLogger(log),
		dataflow.WithDefaultCapacity(cfg.Engine.DefaultBufferCapacity),
		dataflow.WithCancelGrace(cfg.Engine.CancelGracePeriod),
		dataflow.WithErrorHandoffTimeout(cfg.Engine.ErrorHandoffTimeout))

	var nodes []*dataflow.Node
	for _, ns := range spec.Nodes {
		var opts []dataflow.NodeOption
		if ns.Capacity > 0 {
			opts = append(opts, dataflow.WithCapacity(ns.Capacity))
		}

		var (
			node *dataflow.Node
			err  error
		)
		switch ns.Kind {
		case "sequence":
			node, err = graph.AddSource(ns.Name, sequenceSource(ns.Params), opts...)
		case "scale":
			node, err = graph.AddTransform(ns.Name, scaleTransform(ns.Params), opts...)
		case "console":
			node, err = graph.AddSink(ns.Name, &consoleDestination{}, opts...)
		case "discard":
			node, err = graph.AddSink(ns.Name, memory.NewDestination(), opts...)
		default:
			return nil, nil, errors.Newf(errors.ErrorTypeConfig,
				"node %q: unknown kind %q", ns.Name, ns.Kind)
		}
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, node)
	}

	for _, ls := range spec.Links {
		if err := graph.Link(graph.Node(ls.From), graph.Node(ls.To)); err != nil {
			return nil, nil, err
		}
	}

	return graph, nodes, nil
}

// sequenceSource emits params.count records carrying an increasing
// integer under params.field.
func sequenceSource(params map[string]interface{}) core.Source {
	field := stringParam(params, "field", "value")
	count := intParam(params, "count", 10)
	return &memory.GeneratorSource{
		Count: count,
		Make: func(i int) *models.Record {
			return models.NewRecord("sequence").Set(field, i)
		},
	}
}

// scaleTransform multiplies params.field by params.factor.
func scaleTransform(params map[string]interface{}) core.Transformation {
	field := stringParam(params, "field", "value")
	factor := intParam(params, "factor", 2)
	return core.TransformFunc(func(_ context.Context, rec *models.Record) (*models.Record, error) {
		v, ok := rec.Get(field)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "field %q missing", field)
		}
		n, ok := v.(int)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "field %q is not an integer", field)
		}
		rec.Set(field, n*factor)
		return rec, nil
	})
}

// consoleDestination prints each row as a JSON line.
type consoleDestination struct{}

func (d *consoleDestination) Write(_ context.Context, record *models.Record) error {
	out, err := json.Marshal(record.Data)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (d *consoleDestination) Close(_ context.Context) error {
	return nil
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
