// ABOUTME: bcrypt password hashing for development backend user accounts
// ABOUTME: Comparison runs against a dummy hash for unknown users to keep timing uniform

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a username/password pair does not match
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against when the user does not exist.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOHiA7iBf3C0Y3Ck4GAkQ8gUF2mq5Bz6e")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with hash. An empty hash means the user is
// unknown; the comparison still runs so the response time does not leak that.
func CheckPassword(hash, password string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
