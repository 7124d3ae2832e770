package driven

import (
	"context"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// Extraction is the output of one extraction path.
type Extraction struct {
	// Text is the plain text recovered from the artifact.
	Text string

	// Fields are semantic fields recovered alongside the text.
	Fields map[string]any
}

// Extractor is a local extraction path for specific MIME types.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	Priority() int

	// Extract recovers text and fields from the raw artifact bytes.
	Extract(ctx context.Context, doc *domain.DocumentRecord, data []byte) (*Extraction, error)
}

// ExtractorRegistry selects a local extractor by MIME type.
type ExtractorRegistry interface {
	// Register adds an extractor.
	Register(e Extractor)

	// Get returns the highest-priority extractor for mimeType.
	Get(mimeType string) (Extractor, bool)
}

// ProviderExtractor is the primary path: structured extraction performed by
// the owner's cloud-storage provider. Unavailability is reported as
// domain.ErrTransientProvider and a rejected credential as
// domain.ErrAuthentication.
type ProviderExtractor interface {
	// Provider names the provider this extractor serves.
	Provider() string

	// Extract exports the document identified by doc.ProviderFileID.
	Extract(ctx context.Context, accessToken string, doc *domain.DocumentRecord) (*Extraction, error)
}

// Enricher derives additional fields from extracted text.
type Enricher interface {
	// Name returns the enricher name for logging and configuration.
	Name() string

	// Enrich returns fields extended with whatever this enricher recognises.
	Enrich(ctx context.Context, text string, fields map[string]any) (map[string]any, error)
}

// EnricherPipeline chains enrichers in configured order.
type EnricherPipeline interface {
	Enrich(ctx context.Context, text string, fields map[string]any) (map[string]any, error)
}

// Classifier assigns a category to an extracted document.
type Classifier interface {
	Classify(ctx context.Context, doc *domain.DocumentRecord, text string) (domain.Classification, error)
}
