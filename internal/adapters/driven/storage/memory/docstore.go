package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Records are stored as clones so callers never share maps with the store.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.DocumentRecord
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.DocumentRecord),
	}
}

// Save stores or updates a record.
func (s *DocumentStore) Save(_ context.Context, rec *domain.DocumentRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[rec.ID] = rec.Clone()
	return nil
}

// Get retrieves a record by ID.
func (s *DocumentStore) Get(_ context.Context, id string) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := rec.Clone()
	return &c, nil
}

// List returns the records owned by ownerID, oldest first.
func (s *DocumentStore) List(_ context.Context, ownerID string) ([]domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DocumentRecord
	for _, rec := range s.documents {
		if ownerID == "" || rec.OwnerID == ownerID {
			out = append(out, rec.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListByStage returns records currently in any of the given stages.
func (s *DocumentStore) ListByStage(_ context.Context, stages ...domain.Stage) ([]domain.DocumentRecord, error) {
	want := make(map[domain.Stage]bool, len(stages))
	for _, st := range stages {
		want[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DocumentRecord
	for _, rec := range s.documents {
		if want[rec.Stage] {
			out = append(out, rec.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// Delete removes a record.
func (s *DocumentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}

func sortByCreated(recs []domain.DocumentRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
