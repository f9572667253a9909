// Package models - role_template.go defines the default permission set granted by each
// organization role. The role_permissions table is seeded from these values.
package models

// RolePermission maps a role to one permission it grants by default
type RolePermission struct {
	Role       string `db:"role" json:"role"`
	Permission string `db:"permission" json:"permission"`
}

// PredefinedRolePermissions returns the default grants per role
func PredefinedRolePermissions() map[string][]string {
	return map[string][]string{
		RoleOwner: {"*"},
		RoleAdmin: {
			"organization:view", "organization:update",
			"members:view", "members:manage",
			"workspaces:*", "projects:*",
			"api_keys:manage", "billing:view", "billing:manage",
			"audit:view",
		},
		RoleMember: {
			"organization:view", "members:view",
			"workspaces:view", "projects:view", "projects:update",
		},
		RoleViewer: {
			"organization:view", "workspaces:view", "projects:view",
		},
	}
}
