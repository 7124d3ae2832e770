package extractors

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/extractors/docx"
	"github.com/custodia-labs/caseflow/internal/extractors/eml"
	"github.com/custodia-labs/caseflow/internal/extractors/html"
	"github.com/custodia-labs/caseflow/internal/extractors/markdown"
	"github.com/custodia-labs/caseflow/internal/extractors/pdf"
	"github.com/custodia-labs/caseflow/internal/extractors/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps MIME types to the extractors that handle them.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string][]driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string][]driven.Extractor)}
}

// NewDefaultRegistry creates a registry holding every built-in extractor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// RegisterDefaults registers all built-in extractors with the registry.
func RegisterDefaults(r driven.ExtractorRegistry) {
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
	r.Register(eml.New())
	r.Register(pdf.New())
}

// Register adds an extractor under each MIME type it supports.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mimeType := range e.SupportedMIMETypes() {
		key := normalise(mimeType)
		list := append(r.byMIME[key], e)
		// Stable, so equal priorities keep registration order.
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() > list[j].Priority() })
		r.byMIME[key] = list
	}
}

// Get returns the highest-priority extractor for mimeType. Parameters such
// as "; charset=utf-8" are ignored.
func (r *Registry) Get(mimeType string) (driven.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byMIME[normalise(mimeType)]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// SupportedMIMETypes returns every MIME type with at least one extractor, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byMIME))
	for t := range r.byMIME {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func normalise(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
