// Package plans answers plan-gating questions (does this organization's plan include a
// feature, is usage under a plan limit) from the organization's current subscription.
//
// Plans change rarely and are read on many requests, so the Checker reads through a
// Cache. Cache entries carry an absolute expiry computed from an injected Clock; tests
// advance a fake clock instead of sleeping.
package plans

import (
	"context"
	"errors"
	"time"

	"github.com/nextsaas/nextsaas/internal/db/models"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired
var ErrCacheMiss = errors.New("plan cache miss")

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock
var SystemClock Clock = ClockFunc(time.Now)

// Cache stores plans by organization id. Get returns the plan and the time it expires;
// an expired entry is reported as ErrCacheMiss.
type Cache interface {
	Get(ctx context.Context, organizationID string) (*models.Plan, time.Time, error)
	Set(ctx context.Context, organizationID string, plan *models.Plan, expiresAt time.Time) error
	Delete(ctx context.Context, organizationID string) error
}
