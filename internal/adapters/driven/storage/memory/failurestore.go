package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure FailureStore implements the interface.
var _ driven.DeliveryFailureStore = (*FailureStore)(nil)

// FailureStore is an in-memory implementation of driven.DeliveryFailureStore.
type FailureStore struct {
	mu       sync.RWMutex
	failures map[string]domain.DeliveryFailure
}

// NewFailureStore creates a new in-memory failure store.
func NewFailureStore() *FailureStore {
	return &FailureStore{failures: make(map[string]domain.DeliveryFailure)}
}

// Record stores a failure.
func (s *FailureStore) Record(_ context.Context, failure *domain.DeliveryFailure) error {
	c := *failure
	c.Envelope = append([]byte(nil), failure.Envelope...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[c.ID] = c
	return nil
}

// Get retrieves a failure by ID.
func (s *FailureStore) Get(_ context.Context, id string) (*domain.DeliveryFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.failures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

// List returns the most recent failures, newest first. A non-positive
// limit returns every failure.
func (s *FailureStore) List(_ context.Context, limit int) ([]domain.DeliveryFailure, error) {
	s.mu.RLock()
	out := make([]domain.DeliveryFailure, 0, len(s.failures))
	for _, f := range s.failures {
		out = append(out, f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a failure.
func (s *FailureStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, id)
	return nil
}
