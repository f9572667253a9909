// Package tenants implements the organization-scoped HTTP handlers of the gateway.
// Every handler here runs behind a tenant adapter from internal/middleware, so the
// caller's TenantContext has already been validated when it executes; handlers only
// read it back with middleware.TenantContext.
package tenants

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/db/repositories"
	"github.com/nextsaas/nextsaas/internal/middleware"
	"github.com/nextsaas/nextsaas/internal/plans"
	"github.com/nextsaas/nextsaas/internal/tenancy"
)

// QuotaValidator reports quota usage. *tenancy.Validator implements it.
type QuotaValidator interface {
	ValidateRateLimit(ctx context.Context, tc *tenancy.TenantContext, resourceType, operation string) (*tenancy.ValidationResult, error)
}

// PlanService answers plan questions. *plans.Checker implements it.
type PlanService interface {
	Plan(ctx context.Context, organizationID string) (*models.Plan, error)
	CheckLimit(ctx context.Context, organizationID, name string, current int64) (plans.LimitCheck, error)
	Invalidate(ctx context.Context, organizationID string) error
}

// WorkspaceLister reads an organization's workspaces
type WorkspaceLister interface {
	GetWorkspaceByID(ctx context.Context, id string) (*models.Workspace, error)
	ListOrganizationWorkspaces(ctx context.Context, orgID string) ([]models.Workspace, error)
}

// QuotaStore reads and adjusts usage counters
type QuotaStore interface {
	UpsertQuota(ctx context.Context, q *models.Quota) error
	IncrementUsage(ctx context.Context, orgID, resourceType string, delta int64) error
}

// AuditLister pages through audit entries
type AuditLister interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// APIKeyStore manages organization API keys
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error
	GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error)
	ListOrganizationAPIKeys(ctx context.Context, orgID string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
}

// MembershipLister lists a user's organization memberships
type MembershipLister interface {
	ListUserMemberships(ctx context.Context, userID string) ([]*models.OrganizationMember, error)
}

// PermissionStore grants and revokes explicit member permissions
type PermissionStore interface {
	GrantPermission(ctx context.Context, orgID, userID, permission string, grantedBy *string) error
	RevokePermission(ctx context.Context, orgID, userID, permission string) error
}

// Deps bundles what the handlers read from and write to
type Deps struct {
	Quotas      QuotaValidator
	Plans       PlanService
	Workspaces  WorkspaceLister
	QuotaStore  QuotaStore
	Audit       AuditLister
	APIKeys     APIKeyStore
	Memberships MembershipLister
	Permissions PermissionStore

	// APIKeyPrefix is used when generating new keys
	APIKeyPrefix string
	// Now defaults to time.Now
	Now func() time.Time
}

// Handlers serves the organization-scoped API
type Handlers struct {
	Deps
}

// New creates the handlers
func New(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{Deps: d}
}

// accessResponse describes a successful resource access check
type accessResponse struct {
	Resource string                 `json:"resource"`
	ID       string                 `json:"id"`
	Context  *tenancy.TenantContext `json:"context"`
	Warnings []string               `json:"warnings"`
}

// warnings never returns nil so responses always carry an array
func warnings(c *gin.Context) []string {
	w := middleware.Warnings(c)
	if w == nil {
		return []string{}
	}
	return w
}

// tenantContext reads the validated context; the tenant adapter guarantees it is set
func tenantContext(c *gin.Context) *tenancy.TenantContext {
	tc, _ := middleware.TenantContext(c)
	return tc
}

func internalError(c *gin.Context, message string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", c.GetString(middleware.RequestIDKey))
	slog.ErrorContext(c.Request.Context(), message, attrs...)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// @Summary      Current tenant context
// @Description  Validates the caller against the organization and returns the resolved context.
// @Tags         Context
// @Security     Bearer
// @Produce      json
// @Param        organization_id  path  string  true  "Organization ID"
// @Success      200  {object}  tenancy.ValidationResult
// @Failure      403  {object}  map[string]interface{}  "Invalid request context"
// @Router       /api/v1/organizations/{organization_id}/context [get]
func (h *Handlers) GetContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, _ := middleware.ValidationResult(c)
		c.JSON(http.StatusOK, res)
	}
}

// GetWorkspaceAccess confirms access to :workspace_id
// GET /api/v1/organizations/:organization_id/workspaces/:workspace_id
func (h *Handlers) GetWorkspaceAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, accessResponse{
			Resource: string(middleware.ResourceWorkspace),
			ID:       c.Param("workspace_id"),
			Context:  tenantContext(c),
			Warnings: warnings(c),
		})
	}
}

// GetProjectAccess confirms access to :project_id
// GET /api/v1/organizations/:organization_id/projects/:project_id
func (h *Handlers) GetProjectAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, accessResponse{
			Resource: string(middleware.ResourceProject),
			ID:       c.Param("project_id"),
			Context:  tenantContext(c),
			Warnings: warnings(c),
		})
	}
}

// ListWorkspaces lists the organization's workspaces
// GET /api/v1/organizations/:organization_id/workspaces
func (h *Handlers) ListWorkspaces() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		workspaces, err := h.Workspaces.ListOrganizationWorkspaces(c.Request.Context(), tc.OrganizationID)
		if err != nil {
			internalError(c, "Failed to list workspaces", err, "organization_id", tc.OrganizationID)
			return
		}
		c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
	}
}

// @Summary      Quota status
// @Description  Reports whether the organization may perform another operation against the quota. Always 200; isValid carries the answer.
// @Tags         Quotas
// @Security     Bearer
// @Produce      json
// @Param        organization_id  path   string  true   "Organization ID"
// @Param        resource_type    path   string  true   "Quota resource type"
// @Param        operation        query  string  false  "Operation name (default read)"
// @Success      200  {object}  tenancy.ValidationResult
// @Router       /api/v1/organizations/{organization_id}/quotas/{resource_type} [get]
func (h *Handlers) GetQuotaStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		resourceType := c.Param("resource_type")

		res, err := h.Quotas.ValidateRateLimit(c.Request.Context(), tc, resourceType, c.DefaultQuery("operation", "read"))
		if err != nil {
			internalError(c, "Failed to check quota", err, "organization_id", tc.OrganizationID, "resource_type", resourceType)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// SetQuotaRequest replaces the limit of one quota
type SetQuotaRequest struct {
	LimitValue *int64 `json:"limit_value" binding:"required"`
	Period     string `json:"period" binding:"omitempty,oneof=daily monthly total"`
}

// SetQuota creates or replaces the limit of :resource_type. A new daily or monthly quota
// first resets at the next period boundary; an existing row keeps its usage and reset time.
// PUT /api/v1/organizations/:organization_id/quotas/:resource_type
func (h *Handlers) SetQuota() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetQuotaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": []string{err.Error()}})
			return
		}
		if *req.LimitValue < models.UnlimitedQuota {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit_value must be -1 (unlimited) or greater"})
			return
		}
		if req.Period == "" {
			req.Period = models.QuotaPeriodMonthly
		}

		tc := tenantContext(c)
		now := h.Now()
		quota := &models.Quota{
			OrganizationID: tc.OrganizationID,
			ResourceType:   c.Param("resource_type"),
			LimitValue:     *req.LimitValue,
			Period:         req.Period,
			ResetAt:        models.NextQuotaReset(req.Period, now),
			UpdatedAt:      now,
		}
		if err := h.QuotaStore.UpsertQuota(c.Request.Context(), quota); err != nil {
			internalError(c, "Failed to update quota", err, "organization_id", tc.OrganizationID)
			return
		}
		c.JSON(http.StatusOK, quota)
	}
}

// GetFeature reports whether the organization's plan includes :feature
// GET /api/v1/organizations/:organization_id/features/:feature
func (h *Handlers) GetFeature() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		feature := c.Param("feature")

		plan, err := h.Plans.Plan(c.Request.Context(), tc.OrganizationID)
		if err != nil {
			internalError(c, "Failed to load plan", err, "organization_id", tc.OrganizationID)
			return
		}

		resp := gin.H{"feature": feature, "enabled": false, "plan": nil}
		if plan != nil {
			resp["enabled"] = plan.HasFeature(feature)
			resp["plan"] = plan.ID
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetLimit compares ?current= against the plan's :limit
// GET /api/v1/organizations/:organization_id/limits/:limit
func (h *Handlers) GetLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := strconv.ParseInt(c.DefaultQuery("current", "0"), 10, 64)
		if err != nil || current < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "current must be a non-negative integer"})
			return
		}

		tc := tenantContext(c)
		name := c.Param("limit")
		check, err := h.Plans.CheckLimit(c.Request.Context(), tc.OrganizationID, name, current)
		if err != nil {
			internalError(c, "Failed to load plan", err, "organization_id", tc.OrganizationID)
			return
		}

		c.JSON(http.StatusOK, struct {
			Name string `json:"name"`
			plans.LimitCheck
		}{name, check})
	}
}

// RefreshPlan drops the cached plan and reloads it, for use after a billing change
// POST /api/v1/organizations/:organization_id/plan/refresh
func (h *Handlers) RefreshPlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		if err := h.Plans.Invalidate(c.Request.Context(), tc.OrganizationID); err != nil {
			internalError(c, "Failed to refresh plan", err, "organization_id", tc.OrganizationID)
			return
		}
		plan, err := h.Plans.Plan(c.Request.Context(), tc.OrganizationID)
		if err != nil {
			internalError(c, "Failed to load plan", err, "organization_id", tc.OrganizationID)
			return
		}
		c.JSON(http.StatusOK, gin.H{"plan": plan})
	}
}
