package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure SessionStore implements the interface.
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of driven.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.Session)}
}

// Save stores a session, replacing the user's existing one.
// The original creation time is kept on replace.
func (s *SessionStore) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.UserID == "" {
		return fmt.Errorf("%w: session user id is required", domain.ErrInvalidInput)
	}
	c := cloneSession(*session)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[c.UserID]; ok && !existing.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	s.sessions[c.UserID] = c
	return nil
}

// Get retrieves a session by user ID.
func (s *SessionStore) Get(_ context.Context, userID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneSession(sess)
	return &c, nil
}

// Delete removes a user's session.
func (s *SessionStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// ListExpiring returns sessions with an expiry before the given time.
// Sessions without an expiry never appear.
func (s *SessionStore) ListExpiring(_ context.Context, before time.Time) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, sess := range s.sessions {
		if !sess.Expiry.IsZero() && sess.Expiry.Before(before) {
			out = append(out, cloneSession(sess))
		}
	}
	return out, nil
}

func cloneSession(s domain.Session) domain.Session {
	c := s
	c.AccessCiphertext = append([]byte(nil), s.AccessCiphertext...)
	if s.RefreshCiphertext != nil {
		c.RefreshCiphertext = append([]byte(nil), s.RefreshCiphertext...)
	}
	return c
}
