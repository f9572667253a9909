package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var workspaceCols = []string{"id", "organization_id", "name", "is_archived", "deleted_at", "created_at", "updated_at"}
var workspaceMemberCols = []string{"workspace_id", "user_id", "role", "created_at"}
var projectCols = []string{"id", "workspace_id", "organization_id", "name", "created_at", "updated_at"}

func newSQLXMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// ---------------------------------------------------------------------------
// Workspaces
// ---------------------------------------------------------------------------

func TestGetWorkspaceByID_Found(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewWorkspaceRepository(db)
	deleted := time.Now()
	mock.ExpectQuery("SELECT.*FROM workspaces.*WHERE id").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(workspaceCols).
			AddRow("ws-1", "org-1", "Design", false, deleted, time.Now(), time.Now()))

	ws, err := repo.GetWorkspaceByID(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws == nil || ws.OrganizationID != "org-1" {
		t.Fatalf("ws = %+v, want org-1", ws)
	}
	if !ws.IsDeleted() {
		t.Error("expected soft-deleted workspace to report IsDeleted")
	}
}

func TestGetWorkspaceByID_NotFound(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewWorkspaceRepository(db)
	mock.ExpectQuery("SELECT.*FROM workspaces").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(workspaceCols))

	ws, err := repo.GetWorkspaceByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws != nil {
		t.Errorf("expected nil, got %+v", ws)
	}
}

func TestGetWorkspaceByID_DBError(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewWorkspaceRepository(db)
	mock.ExpectQuery("SELECT.*FROM workspaces").WillReturnError(errDB)

	if _, err := repo.GetWorkspaceByID(context.Background(), "ws-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestListOrganizationWorkspaces(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewWorkspaceRepository(db)
	mock.ExpectQuery("SELECT.*FROM workspaces.*deleted_at IS NULL").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(workspaceCols).
			AddRow("ws-1", "org-1", "Design", false, nil, time.Now(), time.Now()).
			AddRow("ws-2", "org-1", "Growth", true, nil, time.Now(), time.Now()))

	list, err := repo.ListOrganizationWorkspaces(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || !list[1].IsArchived {
		t.Errorf("list = %+v", list)
	}
}

func TestGetWorkspaceMember(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewWorkspaceRepository(db)
	mock.ExpectQuery("SELECT.*FROM workspace_members").
		WithArgs("ws-1", "user-1").
		WillReturnRows(sqlmock.NewRows(workspaceMemberCols).
			AddRow("ws-1", "user-1", "editor", time.Now()))

	member, err := repo.GetWorkspaceMember(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member == nil || member.Role != "editor" {
		t.Errorf("member = %+v, want role editor", member)
	}
}

func TestGetWorkspaceMember_NotFound(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewWorkspaceRepository(db)
	mock.ExpectQuery("SELECT.*FROM workspace_members").
		WithArgs("ws-1", "user-2").
		WillReturnRows(sqlmock.NewRows(workspaceMemberCols))

	member, err := repo.GetWorkspaceMember(context.Background(), "ws-1", "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member != nil {
		t.Errorf("expected nil, got %+v", member)
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func TestGetProjectByID(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewProjectRepository(db)
	mock.ExpectQuery("SELECT.*FROM projects").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow("proj-1", "ws-1", "org-1", "Website", time.Now(), time.Now()))

	p, err := repo.GetProjectByID(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.WorkspaceID != "ws-1" || p.OrganizationID != "org-1" {
		t.Errorf("project = %+v", p)
	}
}

func TestGetProjectByID_NotFound(t *testing.T) {
	db, mock := newSQLXMock(t)
	repo := NewProjectRepository(db)
	mock.ExpectQuery("SELECT.*FROM projects").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(projectCols))

	p, err := repo.GetProjectByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}
