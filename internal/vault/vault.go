// Package vault seals OAuth tokens before they are written to the database.
//
// WHY ENCRYPT TOKENS AT REST?
// A Strava refresh token is a long-lived bearer credential: whoever holds it can
// mint access tokens for the athlete. A copied database file (backup, laptop,
// support dump) should not hand those out, so both tokens are encrypted with a
// key that lives only in configuration.
//
// FORMAT:
//
//	"v1:" + base64url( nonce(24) || XChaCha20-Poly1305(plaintext, aad=ownerID) )
//
// The owner id is bound as additional data, so a sealed token copied onto a
// different owner's row fails to open.
//
// An empty key produces a Vault that passes values through unchanged. That is
// meant for local development only.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const prefix = "v1:"

// ErrOpen is returned when a sealed value cannot be decrypted: wrong key,
// wrong owner, or a corrupted column.
var ErrOpen = errors.New("vault: cannot open sealed value")

// Vault encrypts and decrypts token strings for one key.
type Vault struct {
	key []byte // nil when sealing is disabled
}

// New derives a 256-bit key from secret with HKDF-SHA256.
// An empty secret disables sealing.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return &Vault{}, nil
	}
	if len(secret) < 16 {
		return nil, errors.New("vault: token key must be at least 16 characters")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("runquest token sealing v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("vault: deriving key: %w", err)
	}
	return &Vault{key: key}, nil
}

// Enabled reports whether values are actually encrypted.
func (v *Vault) Enabled() bool {
	return v.key != nil
}

// Seal encrypts plaintext for ownerID. Empty input stays empty so that an
// absent refresh token remains distinguishable.
func (v *Vault) Seal(ownerID int64, plaintext string) (string, error) {
	if v.key == nil || plaintext == "" {
		return plaintext, nil
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: reading nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), aad(ownerID))
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the version prefix are returned as-is,
// which lets rows written before sealing was enabled keep working.
func (v *Vault) Open(ownerID int64, value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if v.key == nil {
		return "", fmt.Errorf("%w: sealed value but no token key configured", ErrOpen)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("%w: value too short", ErrOpen)
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, aad(ownerID))
	if err != nil {
		return "", ErrOpen
	}
	return string(plain), nil
}

func aad(ownerID int64) []byte {
	return []byte("owner:" + strconv.FormatInt(ownerID, 10))
}
