package tenancy

import (
	"context"
	"fmt"

	"github.com/nextsaas/nextsaas/internal/auth"
	"github.com/nextsaas/nextsaas/internal/telemetry"
)

// APIKeyRole is the role carried by a TenantContext built from an API key
const APIKeyRole = "api_key"

// APIKeySubject returns the synthetic user id for requests authenticated by an API key
func APIKeySubject(keyID string) string {
	return "apikey:" + keyID
}

// ValidateAPIKeyAccess checks a raw API key presented for organizationID. Every failing
// condition is reported. The key must hold "*" or cover each required permission.
//
// A valid key gets its last_used_at updated in the background; that write never affects
// the result. A valid result carries a TenantContext for the key, confined to the key's
// workspace when it has one.
func (v *Validator) ValidateAPIKeyAccess(ctx context.Context, rawKey, organizationID string, required ...string) (*ValidationResult, error) {
	res, err := v.validateAPIKey(ctx, rawKey, organizationID, required)
	v.record(telemetry.CheckAPIKey, res, err)
	return res, err
}

func (v *Validator) validateAPIKey(ctx context.Context, rawKey, organizationID string, required []string) (*ValidationResult, error) {
	res := newResult()

	lookup := v.store.FindAPIKey(ctx, organizationID, rawKey)
	switch lookup.State() {
	case StateFailed:
		return nil, fmt.Errorf("api key lookup: %w", lookup.Err())
	case StateNotFound:
		res.fail(MsgInvalidAPIKey)
		return res.finish(nil), nil
	}

	key := lookup.Value()
	if key.OrganizationID != organizationID {
		res.fail(MsgInvalidAPIKey)
		return res.finish(nil), nil
	}
	if key.IsRevoked() {
		res.fail(MsgAPIKeyRevoked)
	}
	if key.IsExpired(v.now()) {
		res.fail(MsgAPIKeyExpired)
	}
	if !auth.HasAllPermissions(key.Permissions, required) {
		res.fail(MsgAPIKeyInsufficient)
	}

	if len(res.Errors) > 0 {
		return res.finish(nil), nil
	}

	v.touchAPIKey(ctx, key.ID)

	tc := NewTenantContext(organizationID, APIKeySubject(key.ID), APIKeyRole, key.Permissions)
	if key.WorkspaceID != nil {
		tc.WorkspaceID = *key.WorkspaceID
	}
	return res.finish(tc), nil
}

// touchAPIKey records key usage without holding up the request. The write keeps the
// request's values but not its cancellation, and has its own deadline.
func (v *Validator) touchAPIKey(ctx context.Context, keyID string) {
	detached := context.WithoutCancel(ctx)
	v.background(func() {
		tctx, cancel := context.WithTimeout(detached, v.touchTimeout)
		defer cancel()

		if err := v.store.TouchAPIKey(tctx, keyID); err != nil {
			telemetry.APIKeyTouchFailuresTotal.Inc()
			v.logger.Warn("failed to update api key last_used_at", "api_key_id", keyID, "error", err)
		}
	})
}
