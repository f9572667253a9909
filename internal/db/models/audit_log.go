// Package models - audit_log.go defines the AuditLog model for recording security-relevant
// events, capturing actor, action, affected resource, client IP, and arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID             string
	UserID         *string // Nullable for API key and system actions
	OrganizationID *string
	Action         string                 // "tenant.denied", "workspace.denied", "project.update"
	ResourceType   *string                // "organization", "workspace", "project", "api_key"
	ResourceID     *string
	Metadata       map[string]interface{} // JSONB: additional context
	IPAddress      *string
	CreatedAt      time.Time
}
