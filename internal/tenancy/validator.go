package tenancy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/safego"
	"github.com/nextsaas/nextsaas/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Messages returned in ValidationResult.Errors and Warnings. Clients match on these
// strings, so they are part of the API.
const (
	MsgInvalidUser           = "Invalid or non-existent user"
	MsgUserBanned            = "User account is banned"
	MsgEmailNotConfirmed     = "User email is not confirmed"
	MsgOrganizationNotFound  = "Organization not found"
	MsgOrganizationDeleted   = "Organization has been deleted"
	MsgOrganizationSuspended = "Organization is suspended"
	MsgNotMember             = "User is not a member of this organization"
	MsgMembershipInactive    = "User membership is not active"

	MsgWorkspaceNotFound = "Workspace not found"
	MsgWorkspaceDeleted  = "Workspace has been deleted"
	MsgWorkspaceArchived = "Workspace is archived"
	MsgNoWorkspaceAccess = "No access to this workspace"

	MsgProjectNotFound       = "Project not found or access denied"
	MsgProjectWrongWorkspace = "Project does not belong to specified workspace"

	MsgInvalidAPIKey      = "Invalid API key"
	MsgAPIKeyRevoked      = "API key has been revoked"
	MsgAPIKeyExpired      = "API key has expired"
	MsgAPIKeyInsufficient = "API key lacks required permissions"
)

// BillingInactiveMessage is the warning attached when the subscription is not in good standing
func BillingInactiveMessage(status string) string {
	return fmt.Sprintf("Billing is not active (status: %s)", status)
}

// DefaultTouchTimeout bounds the background last_used_at update
const DefaultTouchTimeout = 5 * time.Second

// Validator runs tenant context checks against a Store. It holds no per-request state and
// is safe for concurrent use.
type Validator struct {
	store        Store
	logger       *slog.Logger
	now          func() time.Time
	parallel     bool
	touchTimeout time.Duration
	background   func(func())
}

// Option configures a Validator
type Option func(*Validator)

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithClock overrides time.Now for ban and expiry checks
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithParallelLookups runs the membership and billing lookups concurrently
func WithParallelLookups(enabled bool) Option {
	return func(v *Validator) { v.parallel = enabled }
}

// WithTouchTimeout bounds the background API key last_used_at update
func WithTouchTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.touchTimeout = d
		}
	}
}

// WithBackgroundRunner replaces the goroutine launcher used for fire-and-forget writes
func WithBackgroundRunner(run func(func())) Option {
	return func(v *Validator) { v.background = run }
}

// NewValidator creates a Validator over store
func NewValidator(store Store, opts ...Option) *Validator {
	v := &Validator{
		store:        store,
		logger:       slog.Default(),
		now:          time.Now,
		touchTimeout: DefaultTouchTimeout,
		background:   safego.Go,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) record(check string, res *ValidationResult, err error) {
	if err != nil {
		telemetry.RecordValidationError(check)
		return
	}
	telemetry.RecordValidation(check, res.IsValid, len(res.Warnings))
}

// ValidateTenantContext checks that userID may act inside organizationID and, when it may,
// returns the resolved TenantContext on the result.
//
// Checks run in order: user, ban, email confirmation, organization, membership,
// permissions, billing. A missing user or organization, and a missing or inactive
// membership, stop the checks that depend on them. An error is returned only when the
// organization, membership or permission lookup fails outright.
func (v *Validator) ValidateTenantContext(ctx context.Context, userID, organizationID string) (*ValidationResult, error) {
	res, err := v.validateTenant(ctx, userID, organizationID)
	v.record(telemetry.CheckTenant, res, err)
	return res, err
}

func (v *Validator) validateTenant(ctx context.Context, userID, organizationID string) (*ValidationResult, error) {
	res := newResult()
	log := v.logger.With("user_id", userID, "organization_id", organizationID)

	user := v.store.FindUser(ctx, userID)
	switch user.State() {
	case StateFailed:
		log.Warn("user lookup failed", "error", user.Err())
		res.fail(MsgInvalidUser)
		return res.finish(nil), nil
	case StateNotFound:
		res.fail(MsgInvalidUser)
		return res.finish(nil), nil
	}

	if user.Value().IsBanned(v.now()) {
		res.fail(MsgUserBanned)
	}
	if !user.Value().IsEmailConfirmed() {
		res.warn(MsgEmailNotConfirmed)
	}

	org := v.store.FindOrganization(ctx, organizationID)
	switch org.State() {
	case StateFailed:
		return nil, fmt.Errorf("organization lookup: %w", org.Err())
	case StateNotFound:
		res.fail(MsgOrganizationNotFound)
		return res.finish(nil), nil
	}
	if org.Value().IsDeleted() {
		res.fail(MsgOrganizationDeleted)
		return res.finish(nil), nil
	}
	if org.Value().IsSuspended() {
		res.fail(MsgOrganizationSuspended)
		return res.finish(nil), nil
	}

	membership, billing := v.findMembership(ctx, organizationID, userID)
	switch membership.State() {
	case StateFailed:
		return nil, fmt.Errorf("membership lookup: %w", membership.Err())
	case StateNotFound:
		res.fail(MsgNotMember)
		return res.finish(nil), nil
	}
	member := membership.Value()
	if !member.IsActive() {
		res.fail(MsgMembershipInactive)
		return res.finish(nil), nil
	}

	permissions := member.Permissions
	resolved := v.store.ResolvePermissions(ctx, organizationID, userID)
	switch resolved.State() {
	case StateFailed:
		return nil, fmt.Errorf("permission lookup: %w", resolved.Err())
	case StateFound:
		permissions = resolved.Value()
	}

	v.applyBilling(res, billing(), log)

	return res.finish(NewTenantContext(organizationID, userID, member.Role, permissions)), nil
}

// findMembership looks up the membership and returns a getter for the billing status.
// In parallel mode both lookups start together and a failed membership lookup cancels the
// billing one; otherwise billing is fetched when the getter is first called.
func (v *Validator) findMembership(ctx context.Context, organizationID, userID string) (Lookup[*models.OrganizationMember], func() Lookup[*models.Subscription]) {
	if !v.parallel {
		return v.store.FindMembership(ctx, organizationID, userID), func() Lookup[*models.Subscription] {
			return v.store.FindBillingStatus(ctx, organizationID)
		}
	}

	var membership Lookup[*models.OrganizationMember]
	var billing Lookup[*models.Subscription]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		membership = v.store.FindMembership(gctx, organizationID, userID)
		return membership.Err()
	})
	g.Go(func() error {
		billing = v.store.FindBillingStatus(gctx, organizationID)
		return nil
	})
	_ = g.Wait()

	return membership, func() Lookup[*models.Subscription] { return billing }
}

func (v *Validator) applyBilling(res *ValidationResult, billing Lookup[*models.Subscription], log *slog.Logger) {
	switch billing.State() {
	case StateFailed:
		log.Warn("billing status lookup failed", "error", billing.Err())
	case StateFound:
		if sub := billing.Value(); !sub.IsInGoodStanding() {
			res.warn(BillingInactiveMessage(sub.Status))
		}
	}
}
