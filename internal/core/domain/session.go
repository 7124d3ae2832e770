package domain

import (
	"fmt"
	"strings"
	"time"
)

// userIDSeparator joins the routing parts of a user id.
const userIDSeparator = "."

// NewUserID composes an opaque user id from its routing parts.
// The suffix is expected to be random (e.g. a UUID without dashes).
func NewUserID(provider, role, suffix string) (string, error) {
	for _, part := range []string{provider, role, suffix} {
		if part == "" || strings.Contains(part, userIDSeparator) {
			return "", fmt.Errorf("%w: user id part %q", ErrInvalidInput, part)
		}
	}
	return strings.Join([]string{provider, role, suffix}, userIDSeparator), nil
}

// ParseUserID splits a user id into provider, role and suffix without any lookup.
func ParseUserID(userID string) (provider, role, suffix string, err error) {
	parts := strings.Split(userID, userIDSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: malformed user id", ErrValidation)
	}
	return parts[0], parts[1], parts[2], nil
}

// Session is the persisted, encrypted credential record for one user.
// Ciphertext fields hold nonce||ciphertext and are never logged.
type Session struct {
	UserID            string
	Provider          string
	AccessCiphertext  []byte
	RefreshCiphertext []byte
	Expiry            time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// String redacts the credential material.
func (s Session) String() string {
	return fmt.Sprintf("Session{user=%s provider=%s expiry=%s}", s.UserID, s.Provider, s.Expiry.Format(time.RFC3339))
}

// Credential is a plaintext provider token pair. It only ever lives in memory.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// ExpiresWithin reports whether the access token expires before now+d.
// A zero expiry never expires.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !c.Expiry.After(now.Add(d))
}

// String redacts the tokens.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{type=%s expiry=%s}", c.TokenType, c.Expiry.Format(time.RFC3339))
}

// SessionStatus is the non-secret view of a session.
type SessionStatus struct {
	UserID   string    `json:"user_id"`
	Provider string    `json:"provider"`
	Expiry   time.Time `json:"expiry"`
	Expired  bool      `json:"expired"`
}
