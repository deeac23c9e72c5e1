// ABOUTME: Client-side session: the bearer token plus the identity decoded from it
// ABOUTME: Claims are read without verification; the server remains the authority on validity

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when a session is built from an empty token
var ErrNoToken = errors.New("no token")

// Session binds the sync engine to one authenticated user
type Session struct {
	Token     string
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// NewSession decodes the identity claims of token. The signature is not checked
// because the client never holds the signing secret.
func NewSession(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	claims, err := claimsFromMap(m)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     token,
		UserID:    claims.UserID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Expired reports whether the token's exp claim is in the past relative to now.
// Tokens without exp never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// AuthorizationHeader returns the value for the HTTP Authorization header.
func (s *Session) AuthorizationHeader() string {
	return "Bearer " + s.Token
}
