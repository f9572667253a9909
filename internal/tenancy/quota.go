package tenancy

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/nextsaas/nextsaas/internal/telemetry"
)

// QuotaWarningPercent is the usage level at which a quota starts producing warnings
const QuotaWarningPercent = 90

// QuotaExceededMessage is the error for a quota at or over its limit
func QuotaExceededMessage(resourceType string, current, limit int64) string {
	return fmt.Sprintf("%s quota exceeded (%d/%d)", resourceType, current, limit)
}

// QuotaWarningMessage is the warning for a quota at or above QuotaWarningPercent
func QuotaWarningMessage(resourceType string, percent int64) string {
	return fmt.Sprintf("%s quota is at %d%% capacity", resourceType, percent)
}

// usagePercent returns current*100/limit truncated, computed in 128 bits so limits near
// MaxInt64 cannot overflow. Requires 0 <= current < limit.
func usagePercent(current, limit int64) int64 {
	hi, lo := bits.Mul64(uint64(current), 100)
	pct, _ := bits.Div64(hi, lo, uint64(limit))
	return int64(pct)
}

// ValidateRateLimit compares the organization's usage of resourceType against every
// configured quota row. No rows, or a negative limit, means unlimited. Percentages use
// integer arithmetic so exactly 90% reports as 90%. operation is only logged.
func (v *Validator) ValidateRateLimit(ctx context.Context, tc *TenantContext, resourceType, operation string) (*ValidationResult, error) {
	res, err := v.validateRateLimit(ctx, tc, resourceType, operation)
	v.record(telemetry.CheckQuota, res, err)
	return res, err
}

func (v *Validator) validateRateLimit(ctx context.Context, tc *TenantContext, resourceType, operation string) (*ValidationResult, error) {
	res := newResult()

	lookup := v.store.FindQuotas(ctx, tc.OrganizationID, resourceType)
	switch lookup.State() {
	case StateFailed:
		return nil, fmt.Errorf("quota lookup: %w", lookup.Err())
	case StateNotFound:
		return res.finish(nil), nil
	}

	for _, q := range lookup.Value() {
		if q.IsUnlimited() {
			continue
		}
		switch {
		case q.CurrentValue >= q.LimitValue:
			res.fail(QuotaExceededMessage(resourceType, q.CurrentValue, q.LimitValue))
		case q.CurrentValue > 0:
			if pct := usagePercent(q.CurrentValue, q.LimitValue); pct >= QuotaWarningPercent {
				res.warn(QuotaWarningMessage(resourceType, pct))
			}
		}
	}

	if len(res.Errors) > 0 {
		v.logger.Info("quota exceeded",
			"organization_id", tc.OrganizationID,
			"resource_type", resourceType,
			"operation", operation,
		)
	}

	return res.finish(nil), nil
}
