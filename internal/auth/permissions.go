// Package auth - permissions.go defines the "resource:action" permission vocabulary shared by
// memberships and API keys, and the wildcard-aware checks used by the tenant validators.
package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Wildcard grants every permission
const Wildcard = "*"

// Well-known permissions. Grants are free-form strings, so this list documents the
// vocabulary the gateway itself checks rather than restricting what may be stored.
const (
	PermOrganizationView   = "organization:view"
	PermOrganizationUpdate = "organization:update"
	PermMembersView        = "members:view"
	PermMembersManage      = "members:manage"
	PermWorkspacesView     = "workspaces:view"
	PermWorkspacesManage   = "workspaces:manage"
	PermProjectsView       = "projects:view"
	PermProjectsUpdate     = "projects:update"
	PermAPIKeysManage      = "api_keys:manage"
	PermBillingView        = "billing:view"
	PermBillingManage      = "billing:manage"
	PermAuditView          = "audit:view"
)

// HasPermission reports whether granted covers required. "*" covers everything and
// "resource:*" covers every action on that resource.
func HasPermission(granted []string, required string) bool {
	resource, _, _ := strings.Cut(required, ":")

	for _, p := range granted {
		if p == required || p == Wildcard {
			return true
		}
		if strings.HasSuffix(p, ":*") && strings.TrimSuffix(p, ":*") == resource {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether granted covers every required permission.
// An empty requirement is always satisfied.
func HasAllPermissions(granted []string, required []string) bool {
	for _, r := range required {
		if !HasPermission(granted, r) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether granted covers at least one required permission
func HasAnyPermission(granted []string, required []string) bool {
	for _, r := range required {
		if HasPermission(granted, r) {
			return true
		}
	}
	return false
}

// ValidatePermission checks the "resource:action" shape of a single grant
func ValidatePermission(p string) error {
	if p == Wildcard {
		return nil
	}
	resource, action, ok := strings.Cut(p, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return fmt.Errorf("invalid permission %q: expected resource:action", p)
	}
	return nil
}

// NormalizePermissions returns the sorted, de-duplicated union of the given lists.
// The result is never nil.
func NormalizePermissions(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, p := range list {
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
