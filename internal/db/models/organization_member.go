// Package models - organization_member.go defines models for user-to-organization membership.
// A membership carries a role plus explicit permission grants layered on the role defaults.
package models

import "time"

// Membership roles
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Membership status values
const (
	MemberStatusActive    = "active"
	MemberStatusInvited   = "invited"
	MemberStatusSuspended = "suspended"
)

// OrganizationMember represents a user's membership in an organization
type OrganizationMember struct {
	OrganizationID string
	UserID         string
	Role           string
	Status         string
	Permissions    []string // JSONB array of explicit grants
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the membership may be used. An empty status is
// treated as active for rows created before statuses existed.
func (m *OrganizationMember) IsActive() bool {
	return m.Status == "" || m.Status == MemberStatusActive
}
