package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// SessionStore persists encrypted per-user sessions.
// There is exactly one row per user ID.
type SessionStore interface {
	// Save stores a session. Creates if new, replaces if the user already has one.
	Save(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by user ID.
	// Returns domain.ErrNotFound if the user has no session.
	Get(ctx context.Context, userID string) (*domain.Session, error)

	// Delete removes a user's session. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID string) error

	// ListExpiring returns sessions whose access token expires before the given time.
	ListExpiring(ctx context.Context, before time.Time) ([]domain.Session, error)
}

// SessionLocker is implemented by session stores that several processes
// share. It serialises refreshes of one user's session across all of them.
type SessionLocker interface {
	// LockSession blocks until userID's lock is held or ctx is done. The lock
	// lapses after ttl if the holder never releases it.
	LockSession(ctx context.Context, userID string, ttl time.Duration) (unlock func(), err error)
}

// Cipher seals credential material under a key derived per user.
type Cipher interface {
	// Encrypt returns nonce||ciphertext for plaintext under userID's key.
	Encrypt(userID string, plaintext []byte) ([]byte, error)

	// Decrypt opens a sealed value. Any tampering or key mismatch returns
	// domain.ErrDecrypt and no plaintext.
	Decrypt(userID string, sealed []byte) ([]byte, error)
}

// TokenRefresher talks to provider token endpoints.
// Errors are classified: rejected grants are domain.ErrAuthentication,
// network and 5xx failures are domain.ErrTransientProvider.
type TokenRefresher interface {
	// Refresh exchanges a refresh token for a new credential.
	Refresh(ctx context.Context, provider, refreshToken string) (domain.Credential, error)

	// Exchange trades an authorization code for a credential.
	Exchange(ctx context.Context, provider, code, redirectURI string) (domain.Credential, error)
}
