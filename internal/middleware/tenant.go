package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/tenancy"
)

const (
	// WarningsHeader carries non-blocking validation warnings, joined with "; "
	WarningsHeader = "X-Context-Warnings"

	// OrganizationHeader names the organization when the route has no :organization_id
	OrganizationHeader = "X-Organization-ID"

	// ValidationResultKey holds the most recent ValidationResult of the request
	ValidationResultKey = "validation_result"

	// DenialKey holds a Denial when a tenant adapter refused the request
	DenialKey = "tenant_denial"

	warningsKey = "context_warnings"
)

// TenantValidator is the set of checks the adapters run. *tenancy.Validator implements it.
type TenantValidator interface {
	ValidateTenantContext(ctx context.Context, userID, organizationID string) (*tenancy.ValidationResult, error)
	ValidateWorkspaceAccess(ctx context.Context, tc *tenancy.TenantContext, workspaceID string) (*tenancy.ValidationResult, error)
	ValidateProjectAccess(ctx context.Context, tc *tenancy.TenantContext, projectID, workspaceID string) (*tenancy.ValidationResult, error)
	ValidateAPIKeyAccess(ctx context.Context, rawKey, organizationID string, required ...string) (*tenancy.ValidationResult, error)
	ValidateRateLimit(ctx context.Context, tc *tenancy.TenantContext, resourceType, operation string) (*tenancy.ValidationResult, error)
}

// PlanChecker answers plan feature questions. *plans.Checker implements it.
type PlanChecker interface {
	HasFeature(ctx context.Context, organizationID, feature string) (bool, error)
}

// ResourceKind selects the check WithResourceValidation runs
type ResourceKind string

const (
	ResourceWorkspace ResourceKind = "workspace"
	ResourceProject   ResourceKind = "project"
)

// Denial records why a tenant adapter refused a request, for the audit middleware
type Denial struct {
	Check  string
	Errors []string
}

// TenantContext returns the context stored by a successful tenant adapter
func TenantContext(c *gin.Context) (*tenancy.TenantContext, bool) {
	v, ok := c.Get(TenantContextKey)
	if !ok {
		return nil, false
	}
	tc, ok := v.(*tenancy.TenantContext)
	return tc, ok && tc != nil
}

// ValidationResult returns the most recent result stored by a tenant adapter
func ValidationResult(c *gin.Context) (*tenancy.ValidationResult, bool) {
	v, ok := c.Get(ValidationResultKey)
	if !ok {
		return nil, false
	}
	res, ok := v.(*tenancy.ValidationResult)
	return res, ok && res != nil
}

// Warnings returns every warning the tenant adapters and guards added to the request
func Warnings(c *gin.Context) []string {
	return c.GetStringSlice(warningsKey)
}

// WithContextValidation validates the caller's tenant context for the organization in
// the :organization_id path parameter (or X-Organization-ID header) and then runs
// handlers in order, stopping when one aborts. JWT callers are checked with
// ValidateTenantContext and API key callers with ValidateAPIKeyAccess.
func WithContextValidation(v TenantValidator, handlers ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := validateContext(c, v); !ok {
			return
		}
		runHandlers(c, handlers)
	}
}

// WithResourceValidation validates the tenant context, then access to the workspace or
// project whose id getResourceID extracts. For projects, a :workspace_id parameter or
// workspace_id query value narrows the check to that workspace.
func WithResourceValidation(v TenantValidator, kind ResourceKind, getResourceID func(*gin.Context) string, handlers ...gin.HandlerFunc) gin.HandlerFunc {
	if kind != ResourceWorkspace && kind != ResourceProject {
		panic(fmt.Sprintf("middleware: unknown resource kind %q", kind))
	}

	return func(c *gin.Context) {
		tc, ok := validateContext(c, v)
		if !ok {
			return
		}

		resourceID := getResourceID(c)
		if resourceID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("%s ID is required", kind),
			})
			return
		}

		var res *tenancy.ValidationResult
		var err error
		switch kind {
		case ResourceWorkspace:
			res, err = v.ValidateWorkspaceAccess(c.Request.Context(), tc, resourceID)
		case ResourceProject:
			res, err = v.ValidateProjectAccess(c.Request.Context(), tc, resourceID, workspaceHint(c))
		}
		if err != nil {
			abortValidationError(c, string(kind), err)
			return
		}
		if !res.IsValid {
			deny(c, http.StatusForbidden, fmt.Sprintf("Invalid %s access", kind), string(kind), res)
			return
		}

		c.Set(ValidationResultKey, res)
		addWarnings(c, res.Warnings)
		runHandlers(c, handlers)
	}
}

// RequireAPIKey authenticates the request with the presented API key for the
// organization named by the route or X-Organization-ID header. The key must hold every
// listed permission.
func RequireAPIKey(v TenantValidator, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey, ok := presentedAPIKey(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "API key required",
			})
			return
		}

		organizationID, ok := requireOrganizationID(c)
		if !ok {
			return
		}

		res, err := v.ValidateAPIKeyAccess(c.Request.Context(), rawKey, organizationID, permissions...)
		if err != nil {
			abortValidationError(c, "api_key", err)
			return
		}
		if !res.IsValid {
			deny(c, http.StatusForbidden, "Invalid API key", "api_key", res)
			return
		}

		accept(c, organizationID, res)
	}
}

// RequireQuota refuses the request with 429 when the organization has used up its
// resourceType quota. It must run after a tenant adapter.
func RequireQuota(v TenantValidator, resourceType, operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := requireTenantContext(c)
		if !ok {
			return
		}

		res, err := v.ValidateRateLimit(c.Request.Context(), tc, resourceType, operation)
		if err != nil {
			abortValidationError(c, "quota", err)
			return
		}
		if !res.IsValid {
			deny(c, http.StatusTooManyRequests, "Quota exceeded", "quota", res)
			return
		}
		addWarnings(c, res.Warnings)
	}
}

// RequirePlanFeature refuses the request with 402 unless the organization's plan
// includes feature. It must run after a tenant adapter.
func RequirePlanFeature(checker PlanChecker, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := requireTenantContext(c)
		if !ok {
			return
		}

		enabled, err := checker.HasFeature(c.Request.Context(), tc.OrganizationID, feature)
		if err != nil {
			abortValidationError(c, "plan", err)
			return
		}
		if !enabled {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":   "Plan upgrade required",
				"details": []string{fmt.Sprintf("Feature '%s' is not included in the current plan", feature)},
			})
			return
		}
	}
}

// RequirePermission refuses the request with 403 unless the tenant context covers
// permission. It must run after a tenant adapter.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := requireTenantContext(c)
		if !ok {
			return
		}
		if !tc.HasPermission(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": []string{fmt.Sprintf("Missing permission '%s'", permission)},
			})
			return
		}
	}
}

// validateContext runs the tenant (or API key) check and stores its outcome on c.
// It aborts c and returns false when the request must not continue.
func validateContext(c *gin.Context, v TenantValidator) (*tenancy.TenantContext, bool) {
	organizationID, ok := requireOrganizationID(c)
	if !ok {
		return nil, false
	}

	var res *tenancy.ValidationResult
	var err error
	check := "tenant"
	if rawKey, isKey := presentedAPIKey(c); isKey {
		check = "api_key"
		res, err = v.ValidateAPIKeyAccess(c.Request.Context(), rawKey, organizationID)
	} else {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return nil, false
		}
		res, err = v.ValidateTenantContext(c.Request.Context(), userID, organizationID)
	}

	if err != nil {
		abortValidationError(c, check, err)
		return nil, false
	}
	if !res.IsValid {
		deny(c, http.StatusForbidden, "Invalid request context", check, res)
		return nil, false
	}

	accept(c, organizationID, res)
	return res.Context, true
}

func accept(c *gin.Context, organizationID string, res *tenancy.ValidationResult) {
	c.Set(OrganizationIDKey, organizationID)
	c.Set(TenantContextKey, res.Context)
	c.Set(ValidationResultKey, res)
	addWarnings(c, res.Warnings)
}

func deny(c *gin.Context, status int, message, check string, res *tenancy.ValidationResult) {
	c.Set(ValidationResultKey, res)
	c.Set(DenialKey, Denial{Check: check, Errors: res.Errors})
	c.AbortWithStatusJSON(status, gin.H{
		"error":   message,
		"details": res.Errors,
	})
}

// abortValidationError hides infrastructure detail from the client
func abortValidationError(c *gin.Context, check string, err error) {
	slog.ErrorContext(c.Request.Context(), "tenant validation failed",
		"check", check,
		"organization_id", organizationID(c),
		"request_id", c.GetString(RequestIDKey),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to validate request context",
	})
}

// addWarnings appends to the request's warning list and rewrites the header. Headers
// must be final before the handler writes a body, so warnings are published here
// rather than after the handler returns.
func addWarnings(c *gin.Context, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	all := append(c.GetStringSlice(warningsKey), warnings...)
	c.Set(warningsKey, all)
	c.Header(WarningsHeader, strings.Join(all, "; "))
}

func runHandlers(c *gin.Context, handlers []gin.HandlerFunc) {
	for _, h := range handlers {
		if c.IsAborted() {
			return
		}
		h(c)
	}
}

func organizationID(c *gin.Context) string {
	if id := c.Param("organization_id"); id != "" {
		return id
	}
	return c.GetHeader(OrganizationHeader)
}

func requireOrganizationID(c *gin.Context) (string, bool) {
	id := organizationID(c)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Organization ID is required",
		})
		return "", false
	}
	return id, true
}

func requireTenantContext(c *gin.Context) (*tenancy.TenantContext, bool) {
	tc, ok := TenantContext(c)
	if !ok {
		slog.ErrorContext(c.Request.Context(), "tenant guard used without a tenant adapter", "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to validate request context",
		})
		return nil, false
	}
	return tc, true
}

func workspaceHint(c *gin.Context) string {
	if id := c.Param("workspace_id"); id != "" {
		return id
	}
	return c.Query("workspace_id")
}
