// Package models - workspace.go defines workspaces, workspace memberships and projects,
// the nested resources that hang off an organization.
package models

import "time"

// Workspace groups projects inside an organization
type Workspace struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Name           string     `db:"name" json:"name"`
	IsArchived     bool       `db:"is_archived" json:"is_archived"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsDeleted reports whether the workspace has been soft deleted
func (w *Workspace) IsDeleted() bool {
	return w.DeletedAt != nil
}

// WorkspaceMember grants a user explicit access to a workspace
type WorkspaceMember struct {
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Role        string    `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Project belongs to exactly one workspace, and through it to one organization.
// OrganizationID is denormalized so cross-tenant lookups can be rejected without a join.
type Project struct {
	ID             string    `db:"id" json:"id"`
	WorkspaceID    string    `db:"workspace_id" json:"workspace_id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
