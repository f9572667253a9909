package tenancy

import (
	"context"
	"fmt"

	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/telemetry"
)

// bypassesWorkspaceMembership reports whether a role reaches every workspace of its
// organization without an explicit workspace membership
func bypassesWorkspaceMembership(role string) bool {
	return role == models.RoleAdmin || role == models.RoleOwner
}

// ValidateWorkspaceAccess checks that the tenant may reach workspaceID. A workspace in
// another organization is reported exactly like a missing one.
func (v *Validator) ValidateWorkspaceAccess(ctx context.Context, tc *TenantContext, workspaceID string) (*ValidationResult, error) {
	res, err := v.validateWorkspace(ctx, tc, workspaceID)
	v.record(telemetry.CheckWorkspace, res, err)
	return res, err
}

func (v *Validator) validateWorkspace(ctx context.Context, tc *TenantContext, workspaceID string) (*ValidationResult, error) {
	res := newResult()

	lookup := v.store.FindWorkspace(ctx, workspaceID)
	switch lookup.State() {
	case StateFailed:
		return nil, fmt.Errorf("workspace lookup: %w", lookup.Err())
	case StateNotFound:
		res.fail(MsgWorkspaceNotFound)
		return res.finish(nil), nil
	}

	ws := lookup.Value()
	if ws.OrganizationID != tc.OrganizationID {
		res.fail(MsgWorkspaceNotFound)
		return res.finish(nil), nil
	}
	if ws.IsDeleted() {
		res.fail(MsgWorkspaceDeleted)
		return res.finish(nil), nil
	}
	if ws.IsArchived {
		res.warn(MsgWorkspaceArchived)
	}

	// Keys have no workspace memberships: an organization-wide key reaches every
	// workspace, a scoped key only its own
	if tc.IsAPIKey() {
		if tc.WorkspaceID != "" && tc.WorkspaceID != workspaceID {
			res.fail(MsgNoWorkspaceAccess)
		}
		return res.finish(nil), nil
	}

	if bypassesWorkspaceMembership(tc.Role) {
		return res.finish(nil), nil
	}

	member := v.store.FindWorkspaceMember(ctx, workspaceID, tc.UserID)
	switch member.State() {
	case StateFailed:
		return nil, fmt.Errorf("workspace member lookup: %w", member.Err())
	case StateNotFound:
		res.fail(MsgNoWorkspaceAccess)
	}

	return res.finish(nil), nil
}

// ValidateProjectAccess checks that the tenant may reach projectID. When workspaceID is
// non-empty the project must live in that workspace. Access to the project is then
// decided by access to its workspace.
func (v *Validator) ValidateProjectAccess(ctx context.Context, tc *TenantContext, projectID, workspaceID string) (*ValidationResult, error) {
	res, err := v.validateProject(ctx, tc, projectID, workspaceID)
	v.record(telemetry.CheckProject, res, err)
	return res, err
}

func (v *Validator) validateProject(ctx context.Context, tc *TenantContext, projectID, workspaceID string) (*ValidationResult, error) {
	res := newResult()

	lookup := v.store.FindProject(ctx, projectID)
	switch lookup.State() {
	case StateFailed:
		return nil, fmt.Errorf("project lookup: %w", lookup.Err())
	case StateNotFound:
		res.fail(MsgProjectNotFound)
		return res.finish(nil), nil
	}

	project := lookup.Value()
	if workspaceID != "" && project.WorkspaceID != workspaceID {
		res.fail(MsgProjectWrongWorkspace)
		return res.finish(nil), nil
	}
	if project.OrganizationID != tc.OrganizationID {
		res.fail(MsgProjectNotFound)
		return res.finish(nil), nil
	}

	return v.validateWorkspace(ctx, tc, project.WorkspaceID)
}
