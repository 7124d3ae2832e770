// Package crypto seals session tokens at rest.
//
// Each user gets a key derived from the process secret with HKDF-SHA256
// (info = user id), used with XChaCha20-Poly1305. Sealed values are
// nonce||ciphertext, and the user id is bound as associated data so a
// ciphertext moved to another user fails to open.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure Cipher implements the interface.
var _ driven.Cipher = (*Cipher)(nil)

// MinSecretLength is the shortest accepted process secret.
const MinSecretLength = 32

// hkdfSalt domain-separates derived keys from other uses of the secret.
var hkdfSalt = []byte("caseflow/session-tokens/v1")

// Cipher derives per-user keys from a process secret.
type Cipher struct {
	secret []byte
	rand   io.Reader
}

// New creates a cipher. The secret must be at least MinSecretLength bytes.
func New(secret []byte) (*Cipher, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", domain.ErrInvalidInput, MinSecretLength)
	}
	return &Cipher{secret: append([]byte(nil), secret...), rand: rand.Reader}, nil
}

// Encrypt seals plaintext for userID.
func (c *Cipher) Encrypt(userID string, plaintext []byte) ([]byte, error) {
	aead, err := c.aead(userID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(c.rand, out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out, plaintext, []byte(userID)), nil
}

// Decrypt opens a value sealed by Encrypt for the same userID.
func (c *Cipher) Decrypt(userID string, sealed []byte) ([]byte, error) {
	aead, err := c.aead(userID)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", domain.ErrDecrypt)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecrypt, err)
	}
	return plaintext, nil
}

func (c *Cipher) aead(userID string) (cipher.AEAD, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, hkdfSalt, []byte(userID)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return aead, nil
}
