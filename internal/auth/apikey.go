// Package auth provides authentication primitives for the tenant gateway: organization API
// keys (bcrypt-hashed, looked up by display prefix), Supabase-style JWT verification, and
// wildcard-aware permission checks.
// See internal/middleware/auth.go for the request-time logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultAPIKeyPrefix is prepended to generated keys when no prefix is configured
	DefaultAPIKeyPrefix = "nsk"

	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of leading characters stored for indexed lookup
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateAPIKey creates a new random API key with the given prefix.
// Returns: full key (to show once), bcrypt hash (to store), display prefix (to index)
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	if prefix == "" {
		prefix = DefaultAPIKeyPrefix
	}

	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := prefix + "_" + base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return fullKey, string(hashBytes), DisplayPrefix(fullKey), nil
}

// DisplayPrefix returns the indexed lookup prefix of a raw key
func DisplayPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	if providedKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// LooksLikeAPIKey reports whether a bearer token carries the API key prefix rather
// than being a JWT
func LooksLikeAPIKey(token, prefix string) bool {
	if prefix == "" {
		prefix = DefaultAPIKeyPrefix
	}
	return strings.HasPrefix(token, prefix+"_")
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
