// rbac_repository.go implements RBACRepository, resolving a member's effective permissions
// from role defaults plus explicit grants, and maintaining both tables.
package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nextsaas/nextsaas/internal/db/models"
)

// RBACRepository handles database operations for roles and permission grants
type RBACRepository struct {
	db *sqlx.DB
}

// NewRBACRepository creates a new RBAC repository
func NewRBACRepository(db *sqlx.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// ============================================================================
// Effective permissions
// ============================================================================

// ResolvePermissions returns the union of the member's role grants and explicit grants.
// A nil slice means nothing is recorded for the pair (no membership, or an unknown role
// with no grants); callers then fall back to the membership row's own list.
func (r *RBACRepository) ResolvePermissions(ctx context.Context, orgID, userID string) ([]string, error) {
	query := `
		SELECT rp.permission
		FROM organization_members m
		JOIN role_permissions rp ON rp.role = m.role
		WHERE m.organization_id = $1 AND m.user_id = $2
		UNION
		SELECT mp.permission
		FROM member_permissions mp
		WHERE mp.organization_id = $1 AND mp.user_id = $2
		ORDER BY 1
	`

	var permissions []string
	if err := r.db.SelectContext(ctx, &permissions, query, orgID, userID); err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	if len(permissions) == 0 {
		return nil, nil
	}
	return permissions, nil
}

// ============================================================================
// Role defaults
// ============================================================================

// SyncRolePermissions inserts any predefined role grant missing from the table.
// Grants added by operators are left untouched.
func (r *RBACRepository) SyncRolePermissions(ctx context.Context) (int, error) {
	defaults := models.PredefinedRolePermissions()
	roles := make([]string, 0, len(defaults))
	for role := range defaults {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, role := range roles {
		for _, permission := range defaults[role] {
			res, err := tx.NamedExecContext(ctx,
				`INSERT INTO role_permissions (role, permission) VALUES (:role, :permission) ON CONFLICT DO NOTHING`,
				models.RolePermission{Role: role, Permission: permission})
			if err != nil {
				return 0, fmt.Errorf("failed to seed %s/%s: %w", role, permission, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted += int(n)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ============================================================================
// Explicit member grants
// ============================================================================

// GrantPermission adds an explicit permission to a member
func (r *RBACRepository) GrantPermission(ctx context.Context, orgID, userID, permission string, grantedBy *string) error {
	query := `
		INSERT INTO member_permissions (organization_id, user_id, permission, granted_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, orgID, userID, permission, grantedBy, time.Now())
	return err
}

// RevokePermission removes an explicit permission from a member
func (r *RBACRepository) RevokePermission(ctx context.Context, orgID, userID, permission string) error {
	query := `DELETE FROM member_permissions WHERE organization_id = $1 AND user_id = $2 AND permission = $3`
	_, err := r.db.ExecContext(ctx, query, orgID, userID, permission)
	return err
}
