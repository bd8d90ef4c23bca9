// Package sealer encrypts vendor credentials before they are persisted.
package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrMalformed = errors.New("sealer: malformed ciphertext")

// Sealer wraps XChaCha20-Poly1305. Sealed values are base64(nonce||ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from a base64-encoded 32-byte key.
func New(encodedKey string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("sealer: decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealer: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext. The tenant id is bound as associated data so a
// sealed value cannot be replayed under another tenant.
func (s *Sealer) Seal(tenantID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sealer: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(tenantID))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. An empty input opens to an empty string.
func (s *Sealer) Open(tenantID, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, body := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, body, []byte(tenantID))
	if err != nil {
		return "", ErrMalformed
	}
	return string(plain), nil
}
