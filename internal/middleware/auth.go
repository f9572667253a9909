// Package middleware provides Gin HTTP middleware for authentication, tenant context
// validation, throttling, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → Auth → Throttle → Audit → Tenant validation → Handler
//
// Security headers run first so they appear on all responses including errors.
// Auth touches no database, so throttling can follow it and key on the caller while
// still rejecting floods before any tenant lookup. Audit wraps the tenant adapters so
// it sees their denials. Auth only establishes who is calling; the tenant adapters
// decide what that caller may reach inside an organization.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/auth"
)

// gin.Context keys shared by the middleware in this package and the handlers behind it
const (
	UserIDKey         = "user_id"
	OrganizationIDKey = "organization_id"
	TenantContextKey  = "tenant_context"
	AuthMethodKey     = "auth_method"
	ClaimsKey         = "claims"

	// APIKeyKey holds the raw presented API key for the duration of the request
	APIKeyKey = "api_key"
)

// Values stored under AuthMethodKey
const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// AuthMiddleware authenticates the bearer token. A token carrying the API key prefix is
// kept for the tenant adapters to validate against the requested organization, since a
// key is only meaningful inside one. Anything else must be a valid JWT whose subject
// becomes user_id.
func AuthMiddleware(apiKeyPrefix string) gin.HandlerFunc {
	if apiKeyPrefix == "" {
		apiKeyPrefix = auth.DefaultAPIKeyPrefix
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		token, err := auth.ExtractBearerToken(authHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		if auth.LooksLikeAPIKey(token, apiKeyPrefix) {
			c.Set(APIKeyKey, token)
			c.Set(AuthMethodKey, AuthMethodAPIKey)
			c.Next()
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID())
		c.Set(ClaimsKey, claims)
		c.Set(AuthMethodKey, AuthMethodJWT)
		c.Next()
	}
}

// presentedAPIKey returns the raw API key stored by AuthMiddleware, if any
func presentedAPIKey(c *gin.Context) (string, bool) {
	if c.GetString(AuthMethodKey) != AuthMethodAPIKey {
		return "", false
	}
	key := c.GetString(APIKeyKey)
	return key, key != ""
}
