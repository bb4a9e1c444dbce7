// internal/auth/auth.go
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid API token")
	ErrMissingToken = errors.New("missing API token")
)

// HashToken returns the bcrypt hash stored in WIRESUM_API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateToken returns a random URL-safe token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Verifier checks bearer tokens against a bcrypt hash. The digest of the
// last accepted token is remembered so bcrypt runs once per token.
type Verifier struct {
	hash []byte

	mu       sync.RWMutex
	accepted [sha256.Size]byte
	cached   bool
}

// NewVerifier validates hash and returns a verifier for it.
func NewVerifier(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Verify reports nil when token matches the hash.
func (v *Verifier) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	sum := sha256.Sum256([]byte(token))

	v.mu.RLock()
	hit := v.cached && subtle.ConstantTimeCompare(sum[:], v.accepted[:]) == 1
	v.mu.RUnlock()
	if hit {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	v.mu.Lock()
	v.accepted = sum
	v.cached = true
	v.mu.Unlock()
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
