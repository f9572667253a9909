// Package repositories implements the data access layer (repository pattern) for the tenant gateway.
// Each repository type encapsulates all database queries for a domain entity.
// Lookups return (nil, nil) when the row does not exist; callers decide what a missing row means.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextsaas/nextsaas/internal/db/models"
)

// UserRepository reads the auth provider's users table
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, email_confirmed_at, banned_until, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.EmailConfirmedAt,
		&user.BannedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
