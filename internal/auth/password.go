// Package auth provides the access-token lifecycle: scope normalization, JWT signing,
// credential issuance, revocation-aware validation, and password hashing for the
// resource-owner password grant.
// See internal/middleware/auth.go for the request-time authentication logic that uses these primitives.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the default cost factor for bcrypt hashing
const BcryptCost = 12

// HashPassword hashes a plaintext password with bcrypt.
// A cost of zero selects BcryptCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = BcryptCost
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashBytes), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash
func CheckPassword(password, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
	return err == nil
}

var (
	// ErrNoAuthorization is returned for a missing Authorization header
	ErrNoAuthorization = errors.New("authorization header is empty")
	// ErrNotBearer is returned when the header uses another scheme
	ErrNotBearer = errors.New("authorization header must start with 'Bearer '")
	// ErrEmptyBearer is returned when nothing follows the Bearer prefix
	ErrEmptyBearer = errors.New("token is empty after Bearer prefix")
)

// ExtractBearerToken extracts the credential from an Authorization header
// Expected format: "Bearer eyJhbGciOi..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoAuthorization
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrNotBearer
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrEmptyBearer
	}

	return token, nil
}
