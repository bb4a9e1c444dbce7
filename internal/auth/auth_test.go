package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if len(token) < 40 {
		t.Errorf("token too short: %q", token)
	}

	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
		t.Fatal("hash does not match token")
	}

	v, err := NewVerifier(hash)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := v.Verify(token); err != nil {
			t.Errorf("Verify(valid) pass %d error = %v", i, err)
		}
	}
	if err := v.Verify("wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(wrong) error = %v", err)
	}
	if err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("Verify(empty) error = %v", err)
	}
}

func TestHashToken_RejectsEmpty(t *testing.T) {
	if _, err := HashToken("  "); !errors.Is(err, ErrMissingToken) {
		t.Errorf("HashToken(blank) error = %v", err)
	}
}

func TestNewVerifier_RejectsBadHash(t *testing.T) {
	if _, err := NewVerifier("not-a-bcrypt-hash"); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":    "abc",
		"bearer  abc ":  "abc",
		"Basic dXNlcjp": "",
		"abc":           "",
		"":              "",
	}
	for header, want := range cases {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
