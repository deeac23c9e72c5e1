// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header and adds the user to context

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// UserChecker confirms that the user named by a token still exists
type UserChecker interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that validates bearer JWTs and
// attaches the AuthContext. users may be nil to skip the existence check.
func HTTPAuthMiddleware(verifier TokenVerifier, users UserChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrExpiredToken) {
					msg = "token expired"
				}
				writeAuthError(w, msg, http.StatusUnauthorized)
				return
			}

			if users != nil {
				ok, err := users.UserExists(r.Context(), claims.UserID)
				if err != nil {
					writeAuthError(w, "user lookup failed", http.StatusInternalServerError)
					return
				}
				if !ok {
					writeAuthError(w, "user not found", http.StatusUnauthorized)
					return
				}
			}

			authCtx := &AuthContext{UserID: claims.UserID, Username: claims.Username}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
