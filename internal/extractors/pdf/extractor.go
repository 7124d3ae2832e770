// Package pdf provides an Extractor for PDF documents with a text layer.
// Scanned, image-only PDFs yield no text.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/extractors/textutil"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// DefaultMaxPages bounds how many pages are read from one document.
const DefaultMaxPages = 200

var disableConfigDir sync.Once

// Extractor handles PDF documents.
type Extractor struct {
	maxPages int
}

// Option configures the extractor.
type Option func(*Extractor)

// WithMaxPages overrides DefaultMaxPages.
func WithMaxPages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// New creates a new PDF extractor.
func New(opts ...Option) *Extractor {
	// pdfcpu otherwise creates a configuration directory under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)
	e := &Extractor{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the extractor.
func (e *Extractor) Name() string {
	return "pdf"
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"application/pdf", "application/x-pdf"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract reads the text shown by each page's content streams.
func (e *Extractor) Extract(ctx context.Context, doc *domain.DocumentRecord, data []byte) (*driven.Extraction, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, domain.WrapError(domain.KindPermanent, err, "reading pdf")
	}

	pages := pdfCtx.PageCount
	if pages > e.maxPages {
		logger.Debug("pdf: %s has %d pages, reading first %d", doc.ID, pages, e.maxPages)
		pages = e.maxPages
	}

	texts := make([]string, 0, pages)
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil {
			return nil, domain.WrapError(domain.KindPermanent, err, fmt.Sprintf("reading page %d", page))
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, domain.WrapError(domain.KindPermanent, err, fmt.Sprintf("reading page %d", page))
		}
		if text := TextFromContent(content); text != "" {
			texts = append(texts, text)
		}
	}

	fields := textutil.Fields(pdfTitle(pdfCtx, doc), "pdf")
	fields["pages"] = pdfCtx.PageCount
	return &driven.Extraction{
		Text:   strings.Join(texts, "\n\n"),
		Fields: fields,
	}, nil
}

func pdfTitle(pdfCtx *model.Context, doc *domain.DocumentRecord) string {
	if pdfCtx.XRefTable != nil {
		if title := strings.TrimSpace(pdfCtx.Title); title != "" {
			return title
		}
	}
	return textutil.TitleFromName(doc.Name)
}
