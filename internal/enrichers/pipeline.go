// Package enrichers derives structured case fields (dates, amounts,
// parties, notice periods) from extracted document text.
package enrichers

import (
	"context"
	"fmt"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.EnricherPipeline = (*Pipeline)(nil)

// Pipeline chains Enrichers and runs them in order.
type Pipeline struct {
	enrichers []driven.Enricher
}

// NewPipeline creates a pipeline running enrichers in the order provided.
func NewPipeline(enrichers ...driven.Enricher) *Pipeline {
	return &Pipeline{
		enrichers: enrichers,
	}
}

// Build creates a pipeline from enricher names in order. cfg holds optional
// per-enricher settings keyed by name.
func Build(r *Registry, names []string, cfg map[string]map[string]any) (*Pipeline, error) {
	p := NewPipeline()
	for _, name := range names {
		e, err := r.Build(name, cfg[name])
		if err != nil {
			return nil, err
		}
		p.Add(e)
	}
	return p, nil
}

// Enrich runs the text through every enricher in order. Each enricher sees
// the fields produced by the ones before it. The input map is not modified.
func (p *Pipeline) Enrich(ctx context.Context, text string, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, enricher := range p.enrichers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := enricher.Enrich(ctx, text, out)
		if err != nil {
			return nil, fmt.Errorf("enricher %s: %w", enricher.Name(), err)
		}
		if next != nil {
			out = next
		}
	}

	return out, nil
}

// Add appends an enricher to the pipeline.
func (p *Pipeline) Add(enricher driven.Enricher) {
	p.enrichers = append(p.enrichers, enricher)
}

// Len returns the number of enrichers in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.enrichers)
}
