package driven

import (
	"context"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// DocumentStore persists document records and their pipeline stage.
type DocumentStore interface {
	// Save stores or updates a record.
	Save(ctx context.Context, rec *domain.DocumentRecord) error

	// Get retrieves a record by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.DocumentRecord, error)

	// List returns the records owned by ownerID, oldest first.
	// An empty ownerID lists every record.
	List(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error)

	// ListByStage returns records currently in any of the given stages.
	ListByStage(ctx context.Context, stages ...domain.Stage) ([]domain.DocumentRecord, error)

	// Delete removes a record.
	Delete(ctx context.Context, id string) error
}

// ArtifactStore holds the raw uploaded bytes.
type ArtifactStore interface {
	// Put stores data and returns an opaque reference to it.
	Put(ctx context.Context, ownerID, name string, data []byte) (string, error)

	// Get returns the bytes behind ref.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, ref string) error
}
