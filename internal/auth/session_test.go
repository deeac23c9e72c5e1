// ABOUTME: Tests for client-side session decoding
// ABOUTME: Sessions decode claims from tokens signed by any secret

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	token, err := NewJWTVerifier([]byte("server-side-secret-unknown-to-us")).Generate(7, "omar", time.Hour)
	require.NoError(t, err)

	sess, err := NewSession("  " + token + "\n")
	require.NoError(t, err)

	assert.Equal(t, token, sess.Token)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, "omar", sess.Username)
	assert.False(t, sess.Expired(time.Now()))
	assert.True(t, sess.Expired(time.Now().Add(2*time.Hour)))
	assert.Equal(t, "Bearer "+token, sess.AuthorizationHeader())
}

func TestNewSession_Errors(t *testing.T) {
	_, err := NewSession("")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = NewSession("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSession_NoExpiry(t *testing.T) {
	sess := &Session{Token: "t", UserID: 1}
	assert.False(t, sess.Expired(time.Now().Add(100*365*24*time.Hour)))
}
