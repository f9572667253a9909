// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by prefix, creation, revocation, and last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nextsaas/nextsaas/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, organization_id, workspace_id, name, key_hash, key_prefix, permissions, expires_at, revoked_at, last_used_at, created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	apiKey := &models.APIKey{}
	var permissionsJSON []byte

	err := row.Scan(
		&apiKey.ID,
		&apiKey.OrganizationID,
		&apiKey.WorkspaceID,
		&apiKey.Name,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&permissionsJSON,
		&apiKey.ExpiresAt,
		&apiKey.RevokedAt,
		&apiKey.LastUsedAt,
		&apiKey.CreatedBy,
		&apiKey.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if apiKey.Permissions, err = decodeStringList(permissionsJSON); err != nil {
		return nil, err
	}
	return apiKey, nil
}

// CreateAPIKey creates a new API key
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	if apiKey.Permissions == nil {
		apiKey.Permissions = []string{}
	}
	permissionsJSON, err := json.Marshal(apiKey.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, organization_id, workspace_id, name, key_hash, key_prefix, permissions, expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.OrganizationID,
		apiKey.WorkspaceID,
		apiKey.Name,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		permissionsJSON,
		apiKey.ExpiresAt,
		apiKey.CreatedBy,
		apiKey.CreatedAt,
	)

	return err
}

// GetAPIKeyByID retrieves an API key by ID
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	apiKey, err := scanAPIKey(r.db.QueryRowContext(ctx, query, keyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return apiKey, err
}

// GetAPIKeysByPrefix retrieves an organization's API keys matching a prefix (for authentication).
// Revoked and expired keys are returned too so the caller can report why a key was refused.
func (r *APIKeyRepository) GetAPIKeysByPrefix(ctx context.Context, orgID, keyPrefix string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE organization_id = $1 AND key_prefix = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, keyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// ListOrganizationAPIKeys lists every API key of an organization, newest first
func (r *APIKeyRepository) ListOrganizationAPIKeys(ctx context.Context, orgID string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE organization_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `
		UPDATE api_keys
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}

// RevokeAPIKey marks an API key as revoked; the row is kept for the audit trail
func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}
