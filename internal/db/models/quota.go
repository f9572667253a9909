// Package models - quota.go defines per-organization usage quotas.
package models

import "time"

// UnlimitedQuota marks a quota row that never blocks
const UnlimitedQuota int64 = -1

// Quota periods
const (
	QuotaPeriodDaily   = "daily"
	QuotaPeriodMonthly = "monthly"
	QuotaPeriodTotal   = "total"
)

// Quota tracks usage of one resource type against its limit for a period
type Quota struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	ResourceType   string     `db:"resource_type" json:"resource_type"`
	LimitValue     int64      `db:"limit_value" json:"limit_value"`
	CurrentValue   int64      `db:"current_value" json:"current_value"`
	Period         string     `db:"period" json:"period"` // QuotaPeriodDaily, QuotaPeriodMonthly or QuotaPeriodTotal
	ResetAt        *time.Time `db:"reset_at" json:"reset_at,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsUnlimited reports whether the quota has no ceiling
func (q *Quota) IsUnlimited() bool {
	return q.LimitValue < 0
}

// NextQuotaReset returns the first period boundary strictly after the given time: the
// next UTC midnight for daily quotas, the first of the next UTC month for monthly ones.
// Total quotas and unknown periods never reset and get nil.
func NextQuotaReset(period string, after time.Time) *time.Time {
	t := after.UTC()
	var next time.Time
	switch period {
	case QuotaPeriodDaily:
		next = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	case QuotaPeriodMonthly:
		next = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil
	}
	return &next
}
