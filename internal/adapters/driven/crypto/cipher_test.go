package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

var testSecret = bytes.Repeat([]byte("k"), MinSecretLength)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	sealed, err := c.Encrypt("google.tenant.u1", []byte("ya29.access-token"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ya29")

	plain, err := c.Decrypt("google.tenant.u1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", string(plain))
}

func TestCipher_NoncesDiffer(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	a, err := c.Encrypt("google.tenant.u1", []byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt("google.tenant.u1", []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_WrongUserFails(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	sealed, err := c.Encrypt("google.tenant.u1", []byte("token"))
	require.NoError(t, err)

	_, err = c.Decrypt("google.tenant.u2", sealed)
	assert.ErrorIs(t, err, domain.ErrDecrypt)
}

func TestCipher_WrongSecretFails(t *testing.T) {
	c1, err := New(testSecret)
	require.NoError(t, err)
	c2, err := New(bytes.Repeat([]byte("z"), MinSecretLength))
	require.NoError(t, err)

	sealed, err := c1.Encrypt("google.tenant.u1", []byte("token"))
	require.NoError(t, err)

	_, err = c2.Decrypt("google.tenant.u1", sealed)
	assert.ErrorIs(t, err, domain.ErrDecrypt)
}

func TestCipher_TamperedAndShortCiphertext(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	sealed, err := c.Encrypt("google.tenant.u1", []byte("token"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = c.Decrypt("google.tenant.u1", sealed)
	assert.ErrorIs(t, err, domain.ErrDecrypt)

	_, err = c.Decrypt("google.tenant.u1", []byte("short"))
	assert.ErrorIs(t, err, domain.ErrDecrypt)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := New([]byte("too-short"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCipher_RequiresUserID(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	_, err = c.Encrypt("", []byte("token"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
