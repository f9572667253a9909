// Package auth - jwt.go verifies (and, for tests and tooling, issues) HS256 access tokens in the
// shape the hosted auth provider signs them: the user id travels in "sub".
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecretEnv names the environment variable holding the shared signing secret
const JWTSecretEnv = "NEXTSAAS_JWT_SECRET"

// AuthenticatedAudience is the audience the auth provider stamps on user sessions
const AuthenticatedAudience = "authenticated"

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims represents the access token claims. UserID is the registered "sub" claim.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user's id
func (c *Claims) UserID() string {
	return c.Subject
}

func isDevMode() bool {
	devMode := os.Getenv("NEXTSAAS_DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the JWT secret is properly configured.
// Outside dev mode a missing secret is fatal; in dev mode a random one is generated.
// Call this at application startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(JWTSecretEnv)

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn(JWTSecretEnv + " not set; using an auto-generated secret, sessions will not survive restarts")
			} else {
				jwtSecretErr = errors.New("SECURITY ERROR: " + JWTSecretEnv + " environment variable is required in production. " +
					"Use the auth provider's JWT secret")
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn(JWTSecretEnv+" is shorter than the recommended 32 characters", "length", len(secret))
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if the secret cannot be validated.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT issues an access token for userID. The gateway never logs users in itself;
// this exists for integration tests and the CLI.
func GenerateJWT(userID, email string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	now := time.Now()
	claims := &Claims{
		Email: email,
		Role:  AuthenticatedAudience,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{AuthenticatedAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and validates an access token. Tokens without a subject are rejected.
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(AuthenticatedAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}
