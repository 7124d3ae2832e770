package enrichers

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// BuilderFunc creates an Enricher from generic config.
// Config is a map of enricher-specific settings parsed from user config.
type BuilderFunc func(cfg map[string]any) (driven.Enricher, error)

// Registry maps enricher names to their builders.
// It allows dynamic construction of the pipeline from configuration.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates a new enricher registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds an enricher builder to the registry.
// Name should be unique and match the enricher's Name() return value.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates an enricher by name with the given config.
func (r *Registry) Build(name string, cfg map[string]any) (driven.Enricher, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown enricher: %s", name)
	}
	return builder(cfg)
}

// Has returns true if an enricher with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered enricher names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
