package app

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the bcrypt form of an API token, suitable for API_TOKEN.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("token is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isBcryptHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

// tokenVerifier accepts either a plaintext or a bcrypt-hashed configured
// token. Tokens that passed bcrypt are remembered by digest so only the
// first request pays for the comparison.
type tokenVerifier struct {
	plain []byte
	hash  []byte

	mu       sync.Mutex
	accepted map[[sha256.Size]byte]struct{}
}

func newTokenVerifier(configured string) *tokenVerifier {
	if isBcryptHash(configured) {
		return &tokenVerifier{hash: []byte(configured), accepted: map[[sha256.Size]byte]struct{}{}}
	}
	return &tokenVerifier{plain: []byte(configured)}
}

func (v *tokenVerifier) verify(token string) bool {
	if token == "" {
		return false
	}
	if v.hash == nil {
		return subtle.ConstantTimeCompare([]byte(token), v.plain) == 1
	}

	digest := sha256.Sum256([]byte(token))
	v.mu.Lock()
	_, ok := v.accepted[digest]
	v.mu.Unlock()
	if ok {
		return true
	}
	if bcrypt.CompareHashAndPassword(v.hash, []byte(token)) != nil {
		return false
	}
	v.mu.Lock()
	v.accepted[digest] = struct{}{}
	v.mu.Unlock()
	return true
}
