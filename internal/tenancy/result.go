package tenancy

import (
	"slices"

	"github.com/nextsaas/nextsaas/internal/auth"
)

// TenantContext is the resolved (organization, user, role, permissions) tuple attached to
// a validated request. Build it with NewTenantContext; it is not modified afterwards.
type TenantContext struct {
	OrganizationID string   `json:"organizationId"`
	UserID         string   `json:"userId"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions"`

	// WorkspaceID confines an API key context to one workspace; empty means the whole
	// organization
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// NewTenantContext copies and normalizes permissions so later changes to the caller's
// slice cannot leak into the context
func NewTenantContext(organizationID, userID, role string, permissions []string) *TenantContext {
	return &TenantContext{
		OrganizationID: organizationID,
		UserID:         userID,
		Role:           role,
		Permissions:    auth.NormalizePermissions(permissions),
	}
}

// IsAPIKey reports whether the context was built from an API key rather than a user
func (tc *TenantContext) IsAPIKey() bool {
	return tc.Role == APIKeyRole
}

// HasPermission reports whether the context's permissions cover p
func (tc *TenantContext) HasPermission(p string) bool {
	return auth.HasPermission(tc.Permissions, p)
}

// ValidationResult is the outcome of one validator call. IsValid is true exactly when
// Errors is empty; Context is only set on valid tenant and API key results.
type ValidationResult struct {
	IsValid  bool           `json:"isValid"`
	Errors   []string       `json:"errors"`
	Warnings []string       `json:"warnings"`
	Context  *TenantContext `json:"context,omitempty"`
}

func newResult() *ValidationResult {
	return &ValidationResult{Errors: []string{}, Warnings: []string{}}
}

func (r *ValidationResult) fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *ValidationResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// finish seals the result: IsValid mirrors Errors and an invalid result never carries a context
func (r *ValidationResult) finish(tc *TenantContext) *ValidationResult {
	r.IsValid = len(r.Errors) == 0
	if r.IsValid {
		r.Context = tc
	} else {
		r.Context = nil
	}
	return r
}

// Merge appends other's errors and warnings to a copy of r, keeping r's context when the
// combined result is still valid
func (r *ValidationResult) Merge(other *ValidationResult) *ValidationResult {
	out := &ValidationResult{
		Errors:   append(slices.Clone(r.Errors), other.Errors...),
		Warnings: append(slices.Clone(r.Warnings), other.Warnings...),
	}
	ctx := r.Context
	if ctx == nil {
		ctx = other.Context
	}
	return out.finish(ctx)
}
