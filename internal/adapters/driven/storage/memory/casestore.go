package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

var (
	_ driven.TimelineStore  = (*TimelineStore)(nil)
	_ driven.ViolationStore = (*ViolationStore)(nil)
)

// TimelineStore is an in-memory implementation of driven.TimelineStore.
type TimelineStore struct {
	mu      sync.RWMutex
	entries map[string]domain.TimelineEntry
}

// NewTimelineStore creates a new in-memory timeline store.
func NewTimelineStore() *TimelineStore {
	return &TimelineStore{entries: make(map[string]domain.TimelineEntry)}
}

// Add stores entries, replacing any with the same ID.
func (s *TimelineStore) Add(_ context.Context, entries []domain.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

// List returns a user's entries ordered by date.
func (s *TimelineStore) List(_ context.Context, userID string) ([]domain.TimelineEntry, error) {
	s.mu.RLock()
	var out []domain.TimelineEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// DeleteByDocument removes every entry derived from a document.
func (s *TimelineStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.DocumentID == documentID {
			delete(s.entries, id)
		}
	}
	return nil
}

// ViolationStore is an in-memory implementation of driven.ViolationStore.
type ViolationStore struct {
	mu         sync.RWMutex
	violations map[string]domain.Violation
}

// NewViolationStore creates a new in-memory violation store.
func NewViolationStore() *ViolationStore {
	return &ViolationStore{violations: make(map[string]domain.Violation)}
}

// Add stores findings, replacing any with the same ID.
func (s *ViolationStore) Add(_ context.Context, violations []domain.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range violations {
		s.violations[v.ID] = v
	}
	return nil
}

// List returns a user's findings, newest first.
func (s *ViolationStore) List(_ context.Context, userID string) ([]domain.Violation, error) {
	s.mu.RLock()
	var out []domain.Violation
	for _, v := range s.violations {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FoundAt.Equal(out[j].FoundAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FoundAt.After(out[j].FoundAt)
	})
	return out, nil
}

// DeleteByDocument removes every finding against a document.
func (s *ViolationStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.violations {
		if v.DocumentID == documentID {
			delete(s.violations, id)
		}
	}
	return nil
}
