// Package models - organization.go defines the Organization model representing a tenant.
// Organizations are soft deleted: DeletedAt is set instead of removing the row.
package models

import "time"

// Organization status values
const (
	OrganizationStatusActive    = "active"
	OrganizationStatusSuspended = "suspended"
)

// Organization represents a tenant in the platform
type Organization struct {
	ID        string
	Name      string
	Slug      string
	Status    string
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDeleted reports whether the organization has been soft deleted
func (o *Organization) IsDeleted() bool {
	return o.DeletedAt != nil
}

// IsSuspended reports whether the organization has been suspended by the platform
func (o *Organization) IsSuspended() bool {
	return o.Status == OrganizationStatusSuspended
}
