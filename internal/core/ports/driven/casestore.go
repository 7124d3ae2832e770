package driven

import (
	"context"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// TimelineStore persists timeline entries built from documents.
type TimelineStore interface {
	// Add stores entries, replacing any with the same ID.
	Add(ctx context.Context, entries []domain.TimelineEntry) error

	// List returns a user's entries ordered by date.
	List(ctx context.Context, userID string) ([]domain.TimelineEntry, error)

	// DeleteByDocument removes every entry derived from a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ViolationStore persists legal-rule findings.
type ViolationStore interface {
	// Add stores findings, replacing any with the same ID.
	Add(ctx context.Context, violations []domain.Violation) error

	// List returns a user's findings, newest first.
	List(ctx context.Context, userID string) ([]domain.Violation, error)

	// DeleteByDocument removes every finding against a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}
