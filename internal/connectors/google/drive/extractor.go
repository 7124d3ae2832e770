// Package drive extracts documents straight from Google Drive. Workspace
// files are exported as text; stored files are downloaded and handed to the
// local extractor registered for their MIME type.
package drive

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/caseflow/internal/connectors/google"
	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/extractors/textutil"
)

// ProviderName is the provider prefix of user IDs this extractor serves.
const ProviderName = "google"

// Ensure Extractor implements the interface.
var _ driven.ProviderExtractor = (*Extractor)(nil)

// Extractor is the primary extraction path for Google Drive documents.
type Extractor struct {
	local   driven.ExtractorRegistry
	limiter *google.RateLimiter
	service google.ServiceConfig
	maxSize int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithService overrides the Drive endpoint or base HTTP client.
func WithService(cfg google.ServiceConfig) Option {
	return func(e *Extractor) { e.service = cfg }
}

// WithRateLimit sets the request rate.
func WithRateLimit(cfg google.RateLimitConfig) Option {
	return func(e *Extractor) { e.limiter = google.NewRateLimiter(cfg) }
}

// WithMaxSize bounds downloaded content.
func WithMaxSize(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxSize = n
		}
	}
}

// New creates a Drive extractor. local parses downloaded files that are not
// Workspace documents.
func New(local driven.ExtractorRegistry, opts ...Option) *Extractor {
	e := &Extractor{
		local:   local,
		limiter: google.NewRateLimiter(google.DefaultDriveRateLimit),
		maxSize: MaxDownloadSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the provider name.
func (e *Extractor) Provider() string {
	return ProviderName
}

// Extract reads doc.ProviderFileID from the owner's Drive.
func (e *Extractor) Extract(ctx context.Context, accessToken string, doc *domain.DocumentRecord) (*driven.Extraction, error) {
	if doc.ProviderFileID == "" {
		return nil, domain.NewError(domain.KindValidation, "document %s has no drive file id", doc.ID)
	}
	svc, err := google.NewDriveService(ctx, accessToken, e.service)
	if err != nil {
		return nil, domain.WrapError(domain.KindTransientProvider, err, "google: create drive service")
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	file, err := svc.Files.Get(doc.ProviderFileID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, google.WrapError(err, e.limiter)
	}
	if file.MimeType == MimeTypeFolder {
		return nil, domain.NewError(domain.KindPermanent, "drive file %s is a folder", file.Id)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var ext *driven.Extraction
	if format := exportFormat(file.MimeType); format != "" {
		data, err := export(ctx, svc, file.Id, format, e.maxSize)
		if err != nil {
			return nil, google.WrapError(err, e.limiter)
		}
		ext, err = exported(file.Name, format, data)
		if err != nil {
			return nil, err
		}
	} else {
		data, err := download(ctx, svc, file.Id, e.maxSize)
		if err != nil {
			return nil, google.WrapError(err, e.limiter)
		}
		ext, err = e.parse(ctx, doc, file.MimeType, data)
		if err != nil {
			return nil, err
		}
	}

	if ext.Fields == nil {
		ext.Fields = make(map[string]any)
	}
	ext.Fields["provider_file_id"] = file.Id
	ext.Fields["web_link"] = WebURL(file.Id, file.WebViewLink)
	if file.ModifiedTime != "" {
		ext.Fields["modified_time"] = file.ModifiedTime
	}
	return ext, nil
}

// exported wraps Workspace export output.
func exported(name, format string, data []byte) (*driven.Extraction, error) {
	if !utf8.Valid(data) {
		return nil, domain.NewError(domain.KindPermanent, "drive export of %s is not valid UTF-8", name)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = textutil.CompactLines(strings.ReplaceAll(text, "\r\n", "\n"))
	kind := "text"
	if format == ExportMimeCSV {
		kind = "csv"
	}
	return &driven.Extraction{Text: text, Fields: textutil.Fields(name, kind)}, nil
}

// parse runs the local extractor for a downloaded file.
func (e *Extractor) parse(ctx context.Context, doc *domain.DocumentRecord, mimeType string, data []byte) (*driven.Extraction, error) {
	if mimeType == "" {
		mimeType = doc.MIMEType
	}
	local, ok := e.local.Get(mimeType)
	if !ok {
		local, ok = e.local.Get(doc.MIMEType)
	}
	if !ok {
		return nil, domain.NewError(domain.KindPermanent, "unsupported drive file type %s", mimeType)
	}
	return local.Extract(ctx, doc, data)
}
