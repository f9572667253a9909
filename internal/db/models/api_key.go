// Package models defines the database model types for the NextSaaS tenant gateway.
// Each type corresponds to a database table. Models are pure data types with small
// state helpers; query logic belongs in the repositories layer.
package models

import "time"

// WildcardPermission grants every permission when present on an API key
const WildcardPermission = "*"

// APIKey represents an organization-scoped API key
type APIKey struct {
	ID             string
	OrganizationID string
	WorkspaceID    *string // Nil for organization-wide keys
	Name           string
	KeyHash        string   // Bcrypt hash of the full key
	KeyPrefix      string   // First 10 chars, used for indexed lookup and display
	Permissions    []string // JSONB array, "*" grants everything
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
	LastUsedAt     *time.Time
	CreatedBy      *string
	CreatedAt      time.Time
}

// IsRevoked reports whether the key has been revoked
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsExpired reports whether the key's expiry is at or before now
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
