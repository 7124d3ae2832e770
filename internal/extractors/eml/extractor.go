// Package eml provides an Extractor for RFC 822 email messages, the usual
// shape of forwarded landlord correspondence.
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/extractors/html"
	"github.com/custodia-labs/caseflow/internal/extractors/textutil"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles EML (email) documents.
type Extractor struct{}

// New creates a new EML extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name identifies the extractor.
func (e *Extractor) Name() string {
	return "eml"
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"message/rfc822"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract returns the headers followed by the body. Plain text parts are
// preferred over HTML ones.
func (e *Extractor) Extract(_ context.Context, doc *domain.DocumentRecord, data []byte) (*driven.Extraction, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.KindPermanent, err, "parsing email")
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	from := decodeHeader(msg.Header.Get("From"))
	to := decodeHeader(msg.Header.Get("To"))
	date := msg.Header.Get("Date")

	body, err := extractBody(msg)
	if err != nil {
		return nil, domain.WrapError(domain.KindPermanent, err, "reading email body")
	}

	var content strings.Builder
	writeHeader(&content, "From", from)
	writeHeader(&content, "To", to)
	writeHeader(&content, "Date", date)
	writeHeader(&content, "Subject", subject)
	content.WriteString("\n")
	content.WriteString(body)

	title := subject
	if title == "" {
		title = textutil.TitleFromName(doc.Name)
	}
	fields := textutil.Fields(title, "eml")
	if from != "" {
		fields["from"] = from
	}
	if to != "" {
		fields["to"] = to
	}
	if date != "" {
		fields["date"] = date
		if sent, err := mail.ParseDate(date); err == nil {
			fields["sent_at"] = sent.UTC().Format(time.RFC3339)
		}
	}

	return &driven.Extraction{
		Text:   strings.TrimSpace(content.String()),
		Fields: fields,
	}, nil
}

func writeHeader(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

// decodeHeader decodes RFC 2047 encoded headers, returning the original on failure.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func extractBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", readErr
		}
		return string(body), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(msg.Body, params["boundary"])
	}

	body, err := io.ReadAll(decodeTransfer(msg.Body, msg.Header.Get("Content-Transfer-Encoding")))
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return html.StripHTML(string(body)), nil
	}
	return strings.ReplaceAll(string(body), "\r\n", "\n"), nil
}

// decodeTransfer undoes a body's transfer encoding. The base64 decoder
// skips line breaks.
func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func extractMultipartBody(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}

	mr := multipart.NewReader(r, boundary)
	var textParts, htmlParts []string

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(textParts)+len(htmlParts) > 0 {
				break
			}
			return "", err
		}

		mediaType, params, parseErr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if parseErr != nil {
			mediaType = "text/plain"
		}

		// multipart.Reader has already decoded quoted-printable parts and
		// removed their header.
		content, readErr := io.ReadAll(decodeTransfer(part, part.Header.Get("Content-Transfer-Encoding")))
		part.Close()
		if readErr != nil {
			continue
		}

		switch {
		case mediaType == "text/plain":
			textParts = append(textParts, strings.ReplaceAll(string(content), "\r\n", "\n"))
		case mediaType == "text/html":
			htmlParts = append(htmlParts, html.StripHTML(string(content)))
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nestedErr := extractMultipartBody(bytes.NewReader(content), params["boundary"])
			if nestedErr == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}
