package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tributary/pkg/errors"
)

// NodeSpec declares a node in a pipeline definition file. Params are
// passed to the node's collaborator as opaque configuration; the
// engine never interprets them.
type NodeSpec struct {
	Name     string                 `yaml:"name"`
	Kind     string                 `yaml:"kind"`
	Capacity int                    `yaml:"capacity,omitempty"`
	Params   map[string]interface{} `yaml:"params,omitempty"`
}

// LinkSpec declares a directed edge between two declared nodes.
type LinkSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// PipelineSpec is a declarative pipeline definition loaded from YAML.
type PipelineSpec struct {
	Name  string     `yaml:"name"`
	Nodes []NodeSpec `yaml:"nodes"`
	Links []LinkSpec `yaml:"links"`
}

// LoadPipeline reads and validates a pipeline definition file.
func LoadPipeline(path string) (*PipelineSpec, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read pipeline file")
	}

	spec := &PipelineSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse pipeline YAML")
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return spec, nil
}

// Validate checks structural consistency: unique node names, links
// referencing declared nodes, and no node left outside every link.
func (p *PipelineSpec) Validate() error {
	if p.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "pipeline name is required")
	}
	if len(p.Nodes) == 0 {
		return errors.New(errors.ErrorTypeConfig, "pipeline declares no nodes")
	}

	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.Name == "" {
			return errors.New(errors.ErrorTypeConfig, "node name is required")
		}
		if n.Kind == "" {
			return errors.Newf(errors.ErrorTypeConfig, "node %q declares no kind", n.Name)
		}
		if seen[n.Name] {
			return errors.Newf(errors.ErrorTypeConfig, "duplicate node name %q", n.Name)
		}
		seen[n.Name] = true
	}

	linked := make(map[string]bool, len(p.Nodes))
	for _, l := range p.Links {
		if !seen[l.From] {
			return errors.Newf(errors.ErrorTypeConfig, "link references unknown node %q", l.From)
		}
		if !seen[l.To] {
			return errors.Newf(errors.ErrorTypeConfig, "link references unknown node %q", l.To)
		}
		linked[l.From] = true
		linked[l.To] = true
	}

	// a node outside every link would never receive or deliver rows;
	// the engine rejects such graphs, catch it at the definition level
	if len(p.Nodes) > 1 {
		for _, n := range p.Nodes {
			if !linked[n.Name] {
				return errors.Newf(errors.ErrorTypeConfig,
					"node %q is not linked to the rest of the pipeline", n.Name)
			}
		}
	}

	return nil
}
