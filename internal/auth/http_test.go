// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation and the user existence check

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var httpTestSecret = []byte("http-middleware-test-secret-32b!")

type fakeUsers struct {
	exists bool
	err    error
}

func (f *fakeUsers) UserExists(context.Context, int64) (bool, error) {
	return f.exists, f.err
}

func serve(t *testing.T, users UserChecker, header string) (*httptest.ResponseRecorder, *AuthContext) {
	t.Helper()
	verifier := NewJWTVerifier(httpTestSecret)

	var got *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/chats/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(verifier, users)(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	token, _ := NewJWTVerifier(httpTestSecret).Generate(9, "sara", time.Hour)

	rec, got := serve(t, &fakeUsers{exists: true}, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(9), got.UserID)
		assert.Equal(t, "sara", got.Username)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	valid, _ := NewJWTVerifier(httpTestSecret).Generate(9, "sara", time.Hour)
	expired, _ := NewJWTVerifier(httpTestSecret).Generate(9, "sara", -time.Hour)

	tests := []struct {
		name     string
		users    UserChecker
		header   string
		wantCode int
		wantBody string
	}{
		{"missing header", nil, "", http.StatusUnauthorized, "missing authorization header"},
		{"basic scheme", nil, "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty bearer", nil, "Bearer ", http.StatusUnauthorized, "empty token"},
		{"bad token", nil, "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"expired", nil, "Bearer " + expired, http.StatusUnauthorized, "token expired"},
		{"deleted user", &fakeUsers{exists: false}, "Bearer " + valid, http.StatusUnauthorized, "user not found"},
		{"lookup failure", &fakeUsers{err: errors.New("db down")}, "Bearer " + valid, http.StatusInternalServerError, "user lookup failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, got := serve(t, tt.users, tt.header)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), tt.wantBody), rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Nil(t, got)
		})
	}
}

func TestHTTPAuthMiddleware_NilUsersSkipsLookup(t *testing.T) {
	token, _ := NewJWTVerifier(httpTestSecret).Generate(1, "", time.Hour)
	rec, got := serve(t, nil, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, got)
}
