package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// Google Workspace MIME types that can be exported.
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
)

// Export formats for Google Workspace files.
const (
	ExportMimeText = "text/plain"
	ExportMimeCSV  = "text/csv"
)

// MaxDownloadSize is the default limit for downloaded or exported content (32MB).
const MaxDownloadSize = 32 * 1024 * 1024

// fileFields is the partial response requested for file metadata.
const fileFields = "id, name, mimeType, size, modifiedTime, webViewLink"

// exportFormat returns the export MIME type for Workspace files, or "" for
// files that are downloaded as stored.
func exportFormat(mimeType string) string {
	switch mimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		return ExportMimeText
	case MimeTypeGoogleSheet:
		return ExportMimeCSV
	default:
		return ""
	}
}

// download fetches a stored file's bytes.
func download(ctx context.Context, svc *drive.Service, fileID string, limit int64) ([]byte, error) {
	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readLimited(resp.Body, limit)
}

// export converts a Workspace file to format.
func export(ctx context.Context, svc *drive.Service, fileID, format string, limit int64) ([]byte, error) {
	resp, err := svc.Files.Export(fileID, format).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readLimited(resp.Body, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.NewError(domain.KindPermanent, "drive content exceeds %d bytes", limit)
	}
	return data, nil
}

// WebURL returns the browser link for a file, preferring the link Drive
// reported.
func WebURL(fileID, webViewLink string) string {
	if webViewLink != "" {
		return webViewLink
	}
	if fileID == "" {
		return ""
	}
	return "https://drive.google.com/file/d/" + strings.TrimSpace(fileID) + "/view"
}
