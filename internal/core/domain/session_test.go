package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserID_RoundTrip(t *testing.T) {
	id, err := NewUserID("google", "tenant", "9f2c")
	require.NoError(t, err)
	assert.Equal(t, "google.tenant.9f2c", id)

	provider, role, suffix, err := ParseUserID(id)
	require.NoError(t, err)
	assert.Equal(t, "google", provider)
	assert.Equal(t, "tenant", role)
	assert.Equal(t, "9f2c", suffix)
}

func TestNewUserID_RejectsSeparatorsAndEmptyParts(t *testing.T) {
	_, err := NewUserID("goo.gle", "tenant", "x")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = NewUserID("google", "", "x")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseUserID_Malformed(t *testing.T) {
	for _, id := range []string{"", "google", "google.tenant", "a..b", "a.b.c.d"} {
		_, _, _, err := ParseUserID(id)
		assert.True(t, errors.Is(err, ErrValidation), id)
	}
}

func TestCredential_ExpiresWithin(t *testing.T) {
	now := time.Now()

	assert.False(t, Credential{}.ExpiresWithin(now, 5*time.Minute))
	assert.True(t, Credential{Expiry: now.Add(2 * time.Minute)}.ExpiresWithin(now, 5*time.Minute))
	assert.False(t, Credential{Expiry: now.Add(time.Hour)}.ExpiresWithin(now, 5*time.Minute))
}

func TestSecrets_AreRedacted(t *testing.T) {
	cred := Credential{AccessToken: "ya29.secret", RefreshToken: "1//refresh", TokenType: "Bearer"}
	assert.NotContains(t, cred.String(), "secret")
	assert.NotContains(t, cred.String(), "refresh")

	sess := Session{UserID: "google.tenant.x", AccessCiphertext: []byte("cipher")}
	assert.NotContains(t, sess.String(), "cipher")
	assert.Contains(t, sess.String(), "google.tenant.x")
}
