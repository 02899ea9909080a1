// Package vault seals credential secrets before they reach storage.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "enc:v1:"

// argon2id parameters for deriving the sealing key from a passphrase.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 2
)

var (
	ErrEmptyPassphrase = errors.New("vault passphrase is empty")
	ErrOpen            = errors.New("vault: cannot open sealed value")
)

// Vault seals strings with XChaCha20-Poly1305. A nil *Vault is valid and
// passes values through unchanged.
type Vault struct {
	key []byte
}

// New derives the key from passphrase and salt with argon2id.
func New(passphrase, salt string) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if salt == "" {
		salt = "reconbook"
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	return &Vault{key: key}, nil
}

// Enabled reports whether values are actually sealed.
func (v *Vault) Enabled() bool {
	return v != nil && len(v.key) > 0
}

// Seal encrypts plaintext. Empty strings stay empty so optional fields remain
// distinguishable from set ones.
func (v *Vault) Seal(plaintext string) (string, error) {
	if !v.Enabled() || plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned as they are.
func (v *Vault) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if !v.Enabled() {
		return "", fmt.Errorf("%w: no key configured", ErrOpen)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: truncated", ErrOpen)
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return string(plaintext), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
