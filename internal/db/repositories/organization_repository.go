// organization_repository.go implements OrganizationRepository, providing lookups for
// tenants and the memberships that bind users to them.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nextsaas/nextsaas/internal/db/models"
)

// OrganizationRepository handles organization and membership database operations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, slug, status, deleted_at, created_at, updated_at`

func (r *OrganizationRepository) getOne(ctx context.Context, query string, arg string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Status,
		&org.DeletedAt,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetByID retrieves an organization by ID, including soft-deleted rows
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`

	org, err := r.getOne(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetMember retrieves a user's membership in an organization
func (r *OrganizationRepository) GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	query := `
		SELECT organization_id, user_id, role, status, permissions, created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`

	member := &models.OrganizationMember{}
	var permissionsJSON []byte
	err := r.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&member.OrganizationID,
		&member.UserID,
		&member.Role,
		&member.Status,
		&permissionsJSON,
		&member.CreatedAt,
		&member.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if member.Permissions, err = decodeStringList(permissionsJSON); err != nil {
		return nil, fmt.Errorf("failed to decode member permissions: %w", err)
	}

	return member, nil
}

// ListUserMemberships retrieves every membership a user holds, oldest first
func (r *OrganizationRepository) ListUserMemberships(ctx context.Context, userID string) ([]*models.OrganizationMember, error) {
	query := `
		SELECT organization_id, user_id, role, status, permissions, created_at, updated_at
		FROM organization_members
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	members := make([]*models.OrganizationMember, 0)
	for rows.Next() {
		member := &models.OrganizationMember{}
		var permissionsJSON []byte
		if err := rows.Scan(
			&member.OrganizationID,
			&member.UserID,
			&member.Role,
			&member.Status,
			&permissionsJSON,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if member.Permissions, err = decodeStringList(permissionsJSON); err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// decodeStringList unmarshals a JSONB string array; SQL NULL decodes to an empty list
func decodeStringList(raw []byte) ([]string, error) {
	list := []string{}
	if len(raw) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}
