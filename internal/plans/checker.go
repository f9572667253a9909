package plans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/telemetry"
)

// DefaultTTL is how long a plan stays cached when no TTL is configured
const DefaultTTL = 5 * time.Minute

// Source loads the plan attached to an organization's current subscription.
// It returns (nil, nil) when the organization has no subscription.
type Source interface {
	GetOrganizationPlan(ctx context.Context, organizationID string) (*models.Plan, error)
}

// LimitCheck is the outcome of Checker.CheckLimit
type LimitCheck struct {
	Allowed   bool  `json:"allowed"`
	Unlimited bool  `json:"unlimited"`
	Limit     int64 `json:"limit"`
	Current   int64 `json:"current"`
}

// Checker answers plan-gating questions through a Cache
type Checker struct {
	source Source
	cache  Cache
	clock  Clock
	ttl    time.Duration
	logger *slog.Logger
}

// NewChecker creates a Checker. A nil clock means SystemClock and a non-positive ttl
// means DefaultTTL.
func NewChecker(source Source, cache Cache, clock Clock, ttl time.Duration) *Checker {
	if clock == nil {
		clock = SystemClock
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Checker{
		source: source,
		cache:  cache,
		clock:  clock,
		ttl:    ttl,
		logger: slog.Default().With("component", "plans"),
	}
}

// Plan returns the organization's plan, or nil when it has no subscription.
// Cache failures are logged and fall through to the source.
func (c *Checker) Plan(ctx context.Context, organizationID string) (*models.Plan, error) {
	plan, _, err := c.cache.Get(ctx, organizationID)
	switch {
	case err == nil:
		telemetry.PlanCacheLookupsTotal.WithLabelValues("hit").Inc()
		return plan, nil
	case errors.Is(err, ErrCacheMiss):
		telemetry.PlanCacheLookupsTotal.WithLabelValues("miss").Inc()
	default:
		telemetry.PlanCacheLookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("plan cache read failed", "organization_id", organizationID, "error", err)
	}

	plan, err = c.source.GetOrganizationPlan(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if plan == nil {
		return nil, nil
	}

	if err := c.cache.Set(ctx, organizationID, plan, c.clock.Now().Add(c.ttl)); err != nil {
		c.logger.Warn("plan cache write failed", "organization_id", organizationID, "error", err)
	}
	return plan, nil
}

// HasFeature reports whether the organization's plan includes feature.
// An organization without a subscription has no features.
func (c *Checker) HasFeature(ctx context.Context, organizationID, feature string) (bool, error) {
	plan, err := c.Plan(ctx, organizationID)
	if err != nil || plan == nil {
		return false, err
	}
	return plan.HasFeature(feature), nil
}

// CheckLimit compares current against the plan's named limit. A limit absent from the
// plan, or negative, is unlimited. Without a subscription every limit is zero.
func (c *Checker) CheckLimit(ctx context.Context, organizationID, name string, current int64) (LimitCheck, error) {
	plan, err := c.Plan(ctx, organizationID)
	if err != nil {
		return LimitCheck{}, err
	}
	if plan == nil {
		return LimitCheck{Allowed: false, Limit: 0, Current: current}, nil
	}

	limit, ok := plan.Limit(name)
	if !ok || limit < 0 {
		return LimitCheck{Allowed: true, Unlimited: true, Limit: models.UnlimitedQuota, Current: current}, nil
	}
	return LimitCheck{Allowed: current < limit, Limit: limit, Current: current}, nil
}

// Invalidate drops the cached plan, for use after a subscription change
func (c *Checker) Invalidate(ctx context.Context, organizationID string) error {
	return c.cache.Delete(ctx, organizationID)
}
