package driving

import (
	"context"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// UploadRequest is a raw artifact handed over by an intake surface.
type UploadRequest struct {
	OwnerID  string
	Name     string
	MIMEType string
	Data     []byte

	// ProviderFileID is the artifact's ID in the owner's cloud storage.
	// Optional; enables the primary extraction path.
	ProviderFileID string
}

// Pipeline drives documents through extraction and classification.
type Pipeline interface {
	// Upload stores the artifact and creates its record at the uploaded stage.
	Upload(ctx context.Context, req UploadRequest) (*domain.DocumentRecord, error)

	// Enqueue moves an uploaded document to queued and schedules it.
	// Enqueuing a document that is already queued, processing or processed
	// is a no-op.
	Enqueue(ctx context.Context, id string) error

	// Reprocess sends a degraded, paused or processed document back to queued.
	Reprocess(ctx context.Context, id string) error

	// Delete cancels in-flight work and removes the document.
	Delete(ctx context.Context, id string) error

	// Resume schedules documents abandoned mid-flight and paused documents
	// whose owner has a valid session again. Returns how many were scheduled.
	Resume(ctx context.Context) (int, error)

	// Get retrieves a document record.
	Get(ctx context.Context, id string) (*domain.DocumentRecord, error)

	// List returns an owner's documents.
	List(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error)

	// Start launches the worker pool.
	Start(ctx context.Context) error

	// Stop abandons in-flight stages and waits for workers to exit.
	Stop(ctx context.Context) error
}
