package tenants

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/db/repositories"
	"github.com/nextsaas/nextsaas/internal/middleware"
	"github.com/nextsaas/nextsaas/internal/plans"
	"github.com/nextsaas/nextsaas/internal/tenancy"
)

var errDB = errors.New("connection refused")

// ---------------------------------------------------------------------------
// Tenant validation stand-in
// ---------------------------------------------------------------------------

// passValidator accepts every caller with tc and attaches canned warnings to resource checks
type passValidator struct {
	tc               *tenancy.TenantContext
	resourceWarnings []string
	rejectAPIKey     bool
}

func (v *passValidator) ok(warnings []string) *tenancy.ValidationResult {
	return &tenancy.ValidationResult{IsValid: true, Errors: []string{}, Warnings: append([]string{}, warnings...), Context: v.tc}
}

func (v *passValidator) ValidateTenantContext(context.Context, string, string) (*tenancy.ValidationResult, error) {
	return v.ok(nil), nil
}

func (v *passValidator) ValidateWorkspaceAccess(context.Context, *tenancy.TenantContext, string) (*tenancy.ValidationResult, error) {
	return v.ok(v.resourceWarnings), nil
}

func (v *passValidator) ValidateProjectAccess(context.Context, *tenancy.TenantContext, string, string) (*tenancy.ValidationResult, error) {
	return v.ok(v.resourceWarnings), nil
}

func (v *passValidator) ValidateAPIKeyAccess(context.Context, string, string, ...string) (*tenancy.ValidationResult, error) {
	if v.rejectAPIKey {
		return &tenancy.ValidationResult{Errors: []string{tenancy.MsgInvalidAPIKey}, Warnings: []string{}}, nil
	}
	return v.ok(nil), nil
}

func (v *passValidator) ValidateRateLimit(context.Context, *tenancy.TenantContext, string, string) (*tenancy.ValidationResult, error) {
	return v.ok(nil), nil
}

// ---------------------------------------------------------------------------
// Dependency fakes
// ---------------------------------------------------------------------------

type fakeQuotas struct {
	res          *tenancy.ValidationResult
	err          error
	gotResource  string
	gotOperation string
}

func (f *fakeQuotas) ValidateRateLimit(_ context.Context, _ *tenancy.TenantContext, resourceType, operation string) (*tenancy.ValidationResult, error) {
	f.gotResource, f.gotOperation = resourceType, operation
	return f.res, f.err
}

type fakePlans struct {
	plan        *models.Plan
	err         error
	invalidated []string
}

func (f *fakePlans) Plan(context.Context, string) (*models.Plan, error) {
	return f.plan, f.err
}

func (f *fakePlans) CheckLimit(_ context.Context, _ string, name string, current int64) (plans.LimitCheck, error) {
	if f.err != nil {
		return plans.LimitCheck{}, f.err
	}
	check := plans.LimitCheck{Current: current}
	if f.plan == nil {
		return check, nil
	}
	limit, ok := f.plan.Limit(name)
	check.Limit = limit
	check.Unlimited = !ok || limit < 0
	check.Allowed = check.Unlimited || current < limit
	return check, nil
}

func (f *fakePlans) Invalidate(_ context.Context, organizationID string) error {
	f.invalidated = append(f.invalidated, organizationID)
	return nil
}

type fakeWorkspaces struct {
	workspaces []models.Workspace
	err        error
}

func (f *fakeWorkspaces) GetWorkspaceByID(_ context.Context, id string) (*models.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.workspaces {
		if f.workspaces[i].ID == id {
			ws := f.workspaces[i]
			return &ws, nil
		}
	}
	return nil, nil
}

func (f *fakeWorkspaces) ListOrganizationWorkspaces(context.Context, string) ([]models.Workspace, error) {
	return f.workspaces, f.err
}

type usageChange struct {
	org, resource string
	delta         int64
}

type fakeQuotaStore struct {
	mu        sync.Mutex
	upserted  []*models.Quota
	changes   []usageChange
	upsertErr error
	usageErr  error
}

func (f *fakeQuotaStore) UpsertQuota(_ context.Context, q *models.Quota) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, q)
	return f.upsertErr
}

func (f *fakeQuotaStore) IncrementUsage(_ context.Context, orgID, resourceType string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, usageChange{orgID, resourceType, delta})
	return f.usageErr
}

type fakeAudit struct {
	logs       []*models.AuditLog
	total      int
	err        error
	gotFilters repositories.AuditFilters
	gotLimit   int
	gotOffset  int
}

func (f *fakeAudit) ListAuditLogs(_ context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	f.gotFilters, f.gotLimit, f.gotOffset = filters, limit, offset
	return f.logs, f.total, f.err
}

type fakeAPIKeys struct {
	keys      map[string]*models.APIKey
	created   []*models.APIKey
	revoked   []string
	createErr error
}

func newFakeAPIKeys(keys ...*models.APIKey) *fakeAPIKeys {
	f := &fakeAPIKeys{keys: make(map[string]*models.APIKey)}
	for _, k := range keys {
		f.keys[k.ID] = k
	}
	return f
}

func (f *fakeAPIKeys) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	if f.createErr != nil {
		return f.createErr
	}
	k.ID = "key-new"
	f.keys[k.ID] = k
	f.created = append(f.created, k)
	return nil
}

func (f *fakeAPIKeys) GetAPIKeyByID(_ context.Context, id string) (*models.APIKey, error) {
	return f.keys[id], nil
}

func (f *fakeAPIKeys) ListOrganizationAPIKeys(_ context.Context, orgID string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range f.keys {
		if k.OrganizationID == orgID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAPIKeys) RevokeAPIKey(_ context.Context, id string) error {
	f.revoked = append(f.revoked, id)
	return nil
}

type fakeMemberships struct {
	members []*models.OrganizationMember
	err     error
}

func (f *fakeMemberships) ListUserMemberships(context.Context, string) ([]*models.OrganizationMember, error) {
	return f.members, f.err
}

type permissionGrant struct {
	org, user, permission string
	grantedBy             *string
}

type fakePermissions struct {
	granted []permissionGrant
	revoked []permissionGrant
	err     error
}

func (f *fakePermissions) GrantPermission(_ context.Context, orgID, userID, permission string, grantedBy *string) error {
	f.granted = append(f.granted, permissionGrant{orgID, userID, permission, grantedBy})
	return f.err
}

func (f *fakePermissions) RevokePermission(_ context.Context, orgID, userID, permission string) error {
	f.revoked = append(f.revoked, permissionGrant{org: orgID, user: userID, permission: permission})
	return f.err
}

// ---------------------------------------------------------------------------
// Router helpers
// ---------------------------------------------------------------------------

func adminContext() *tenancy.TenantContext {
	return tenancy.NewTenantContext("org-123", "user-123", models.RoleAdmin,
		[]string{"api_keys:manage", "workspaces:*", "members:manage", "audit:view"})
}

// callerAs marks the request as authenticated the way AuthMiddleware would
func callerAs(method, userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.AuthMethodKey, method)
		if method == middleware.AuthMethodJWT {
			c.Set(middleware.UserIDKey, userID)
		} else {
			c.Set(middleware.APIKeyKey, "nsk_presented0123")
		}
		c.Next()
	}
}

func serve(r *gin.Engine, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func stringPtr(s string) *string { return &s }

// compile-time check that the stand-in satisfies the adapters
var _ middleware.TenantValidator = (*passValidator)(nil)
