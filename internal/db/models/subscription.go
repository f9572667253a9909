// Package models - subscription.go defines billing subscriptions and the plans they reference.
// Plans drive feature gating; subscription status drives the billing warning on tenant checks.
package models

import "time"

// Subscription status values, aligned with the payment provider
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
)

// Subscription is an organization's billing subscription
type Subscription struct {
	ID               string     `db:"id" json:"id"`
	OrganizationID   string     `db:"organization_id" json:"organization_id"`
	PlanID           string     `db:"plan_id" json:"plan_id"`
	Status           string     `db:"status" json:"status"`
	CurrentPeriodEnd *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// IsInGoodStanding reports whether the subscription is paid up (or trialing)
func (s *Subscription) IsInGoodStanding() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// Plan describes what a subscription tier unlocks
type Plan struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Features []string         `json:"features"`
	Limits   map[string]int64 `json:"limits"`
}

// HasFeature reports whether the plan includes feature
func (p *Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature || f == WildcardPermission {
			return true
		}
	}
	return false
}

// Limit returns the plan's limit for name. ok is false when the plan does not
// define the limit; a negative limit means unlimited.
func (p *Plan) Limit(name string) (limit int64, ok bool) {
	limit, ok = p.Limits[name]
	return limit, ok
}
