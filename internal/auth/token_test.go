// ABOUTME: Tests for JWT issue and verification
// ABOUTME: Covers valid tokens, wrong secrets, expiry and malformed subjects

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var tokenTestSecret = []byte("token-test-secret-that-is-32-byt")

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(tokenTestSecret)

	token, err := verifier.Generate(42, "amina", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Username != "amina" {
		t.Errorf("Username = %q, want amina", claims.Username)
	}
	if claims.ExpiresAt.Before(time.Now()) {
		t.Errorf("ExpiresAt = %v, want a future time", claims.ExpiresAt)
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	issuer := NewJWTVerifier([]byte("a-different-secret-of-32-bytes!!"))
	verifier := NewJWTVerifier(tokenTestSecret)

	token, _ := issuer.Generate(1, "x", time.Hour)
	_, err := verifier.Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTVerifier_Expired(t *testing.T) {
	verifier := NewJWTVerifier(tokenTestSecret)

	token, _ := verifier.Generate(1, "x", -time.Minute)
	_, err := verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_Garbage(t *testing.T) {
	verifier := NewJWTVerifier(tokenTestSecret)

	_, err := verifier.Verify("not.a.token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTVerifier_SubjectRules(t *testing.T) {
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		wantErr error
	}{
		{"missing sub", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, ErrMissingClaim},
		{"non-numeric sub", jwt.MapClaims{"sub": "abc", "exp": time.Now().Add(time.Hour).Unix()}, ErrInvalidToken},
		{"zero sub", jwt.MapClaims{"sub": "0", "exp": time.Now().Add(time.Hour).Unix()}, ErrInvalidToken},
	}

	verifier := NewJWTVerifier(tokenTestSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(tokenTestSecret)
			if err != nil {
				t.Fatalf("signing: %v", err)
			}
			_, err = verifier.Verify(token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
