package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// SessionManager keeps per-user provider credentials encrypted at rest and fresh.
type SessionManager interface {
	// Establish stores a credential obtained from a completed provider authorization.
	Establish(ctx context.Context, userID, provider string, cred domain.Credential) error

	// ExchangeCode trades an authorization code for a credential, creates a
	// new user ID for provider and role, and establishes its session.
	ExchangeCode(ctx context.Context, provider, role, code, redirectURI string) (string, error)

	// GetValidCredential returns an access token that stays valid beyond the
	// refresh threshold, refreshing it first if needed.
	GetValidCredential(ctx context.Context, userID string) (string, error)

	// ForceRefresh refreshes regardless of expiry and returns the new token.
	ForceRefresh(ctx context.Context, userID string) (string, error)

	// Revoke deletes the session. Later calls fail with an authentication error.
	Revoke(ctx context.Context, userID string) error

	// Status returns the non-secret view of a session.
	Status(ctx context.Context, userID string) (*domain.SessionStatus, error)

	// RefreshExpiring refreshes every session expiring within d.
	// Returns how many were refreshed.
	RefreshExpiring(ctx context.Context, d time.Duration) (int, error)
}
