// quota_repository.go implements QuotaRepository, reading and metering per-organization
// resource quotas.
package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nextsaas/nextsaas/internal/db/models"
)

// QuotaRepository handles quota database operations
type QuotaRepository struct {
	db *sqlx.DB
}

// NewQuotaRepository creates a new quota repository
func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// ListQuotas returns every quota row for one resource type. An organization may carry
// several rows for the same type, one per period.
func (r *QuotaRepository) ListQuotas(ctx context.Context, orgID, resourceType string) ([]models.Quota, error) {
	query := `
		SELECT id, organization_id, resource_type, limit_value, current_value, period, reset_at, updated_at
		FROM quotas
		WHERE organization_id = $1 AND resource_type = $2
		ORDER BY period
	`

	quotas := []models.Quota{}
	if err := r.db.SelectContext(ctx, &quotas, query, orgID, resourceType); err != nil {
		return nil, err
	}
	return quotas, nil
}

// UpsertQuota creates or replaces the limit for an organization, resource type and period.
// An existing row keeps its usage and its pending reset_at; q is refreshed with the
// stored id, current_value and reset_at.
func (r *QuotaRepository) UpsertQuota(ctx context.Context, q *models.Quota) error {
	q.UpdatedAt = time.Now()
	query := `
		INSERT INTO quotas (organization_id, resource_type, limit_value, current_value, period, reset_at, updated_at)
		VALUES (:organization_id, :resource_type, :limit_value, :current_value, :period, :reset_at, :updated_at)
		ON CONFLICT (organization_id, resource_type, period)
		DO UPDATE SET limit_value = EXCLUDED.limit_value,
		              reset_at = COALESCE(quotas.reset_at, EXCLUDED.reset_at),
		              updated_at = EXCLUDED.updated_at
		RETURNING id, current_value, reset_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&q.ID, &q.CurrentValue, &q.ResetAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// IncrementUsage adds delta to current_value for every period of the resource type
func (r *QuotaRepository) IncrementUsage(ctx context.Context, orgID, resourceType string, delta int64) error {
	query := `
		UPDATE quotas
		SET current_value = current_value + $3, updated_at = $4
		WHERE organization_id = $1 AND resource_type = $2
	`
	_, err := r.db.ExecContext(ctx, query, orgID, resourceType, delta, time.Now())
	return err
}

// ResetExpired zeroes usage on daily and monthly quotas whose reset time has passed and
// returns how many rows changed. reset_at moves to the first boundary after now, so a
// row that missed several periods is not left in the past. "total" quotas never reset.
func (r *QuotaRepository) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE quotas
		SET current_value = 0,
		    reset_at = CASE period WHEN 'daily' THEN $2::timestamptz ELSE $3::timestamptz END,
		    updated_at = $1
		WHERE reset_at IS NOT NULL AND reset_at <= $1
		  AND period IN ('daily', 'monthly')
	`
	res, err := r.db.ExecContext(ctx, query, now,
		*models.NextQuotaReset(models.QuotaPeriodDaily, now),
		*models.NextQuotaReset(models.QuotaPeriodMonthly, now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
