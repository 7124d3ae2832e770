package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// sessionStore implements driven.SessionStore.
// Only ciphertext reaches the database.
type sessionStore struct {
	store *Store
}

var (
	_ driven.SessionStore  = (*sessionStore)(nil)
	_ driven.SessionLocker = (*sessionStore)(nil)
)

const sessionColumns = `user_id, provider, access_ciphertext, refresh_ciphertext, expiry_unix_ms, created_at, updated_at`

// Save stores or replaces a user's session.
func (s *sessionStore) Save(ctx context.Context, sess *domain.Session) error {
	if sess == nil || sess.UserID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			provider = excluded.provider,
			access_ciphertext = excluded.access_ciphertext,
			refresh_ciphertext = excluded.refresh_ciphertext,
			expiry_unix_ms = excluded.expiry_unix_ms,
			updated_at = excluded.updated_at
	`, sess.UserID, sess.Provider, sess.AccessCiphertext, sess.RefreshCiphertext,
		unixMillis(sess.Expiry), formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Get retrieves a session by user ID.
func (s *sessionStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ?`, userID)
	return scanSession(row)
}

// Delete removes a session. Missing sessions are ignored.
func (s *sessionStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListExpiring returns sessions whose token expires before the given time.
// Sessions without an expiry never appear.
func (s *sessionStore) ListExpiring(ctx context.Context, before time.Time) ([]domain.Session, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE expiry_unix_ms IS NOT NULL AND expiry_unix_ms < ?
		ORDER BY expiry_unix_ms
	`, before.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying expiring sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session //nolint:prealloc // size unknown from query
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var expiry sql.NullInt64
	var createdAt, updatedAt string
	if err := row.Scan(&sess.UserID, &sess.Provider, &sess.AccessCiphertext, &sess.RefreshCiphertext,
		&expiry, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	sess.Expiry = fromUnixMillis(expiry)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// LockSession takes a lease row for userID. A row whose lease has lapsed is
// taken over; a live one is polled with exponential backoff.
func (s *sessionStore) LockSession(ctx context.Context, userID string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.Reset()

	for {
		now := time.Now()
		res, err := s.store.db.ExecContext(ctx, `
			INSERT INTO session_locks (user_id, token, expires_ms) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				token = excluded.token,
				expires_ms = excluded.expires_ms
			WHERE session_locks.expires_ms <= ?
		`, userID, token, now.Add(ttl).UnixMilli(), now.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("locking session %s: %w", userID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}

	return func() {
		_, _ = s.store.db.ExecContext(context.WithoutCancel(ctx),
			`DELETE FROM session_locks WHERE user_id = ? AND token = ?`, userID, token)
	}, nil
}
