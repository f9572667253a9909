// workspace_repository.go implements WorkspaceRepository and ProjectRepository for the
// resources nested under an organization.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/nextsaas/nextsaas/internal/db/models"
)

// WorkspaceRepository handles workspace and workspace membership database operations
type WorkspaceRepository struct {
	db *sqlx.DB
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(db *sqlx.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// GetWorkspaceByID retrieves a workspace by ID, including soft-deleted rows
func (r *WorkspaceRepository) GetWorkspaceByID(ctx context.Context, id string) (*models.Workspace, error) {
	query := `
		SELECT id, organization_id, name, is_archived, deleted_at, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`

	var ws models.Workspace
	err := r.db.GetContext(ctx, &ws, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// ListOrganizationWorkspaces returns the live workspaces of an organization
func (r *WorkspaceRepository) ListOrganizationWorkspaces(ctx context.Context, orgID string) ([]models.Workspace, error) {
	query := `
		SELECT id, organization_id, name, is_archived, deleted_at, created_at, updated_at
		FROM workspaces
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY name
	`

	workspaces := []models.Workspace{}
	if err := r.db.SelectContext(ctx, &workspaces, query, orgID); err != nil {
		return nil, err
	}
	return workspaces, nil
}

// GetWorkspaceMember retrieves a user's explicit membership in a workspace
func (r *WorkspaceRepository) GetWorkspaceMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	query := `
		SELECT workspace_id, user_id, role, created_at
		FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
	`

	var member models.WorkspaceMember
	err := r.db.GetContext(ctx, &member, query, workspaceID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ProjectRepository handles project database operations
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetProjectByID retrieves a project by ID
func (r *ProjectRepository) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, workspace_id, organization_id, name, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var project models.Project
	err := r.db.GetContext(ctx, &project, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}
