// subscription_repository.go implements SubscriptionRepository, reading an organization's
// current billing subscription and the plan catalogue.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nextsaas/nextsaas/internal/db/models"
)

// SubscriptionRepository handles subscription and plan database operations
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetCurrentSubscription returns the organization's most recent subscription
func (r *SubscriptionRepository) GetCurrentSubscription(ctx context.Context, orgID string) (*models.Subscription, error) {
	query := `
		SELECT id, organization_id, plan_id, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var sub models.Subscription
	err := r.db.GetContext(ctx, &sub, query, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetPlan retrieves a plan with its feature list and limits
func (r *SubscriptionRepository) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	query := `SELECT id, name, features, limits FROM plans WHERE id = $1`

	var plan models.Plan
	var featuresJSON, limitsJSON []byte
	err := r.db.QueryRowxContext(ctx, query, planID).Scan(&plan.ID, &plan.Name, &featuresJSON, &limitsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if plan.Features, err = decodeStringList(featuresJSON); err != nil {
		return nil, fmt.Errorf("failed to decode plan features: %w", err)
	}
	plan.Limits = map[string]int64{}
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &plan.Limits); err != nil {
			return nil, fmt.Errorf("failed to decode plan limits: %w", err)
		}
	}

	return &plan, nil
}

// GetOrganizationPlan resolves the plan behind the organization's current subscription
func (r *SubscriptionRepository) GetOrganizationPlan(ctx context.Context, orgID string) (*models.Plan, error) {
	sub, err := r.GetCurrentSubscription(ctx, orgID)
	if err != nil || sub == nil {
		return nil, err
	}
	return r.GetPlan(ctx, sub.PlanID)
}
