// audit.go provides Gin middleware that records refused tenant validations and
// successful administrative writes through the log_audit_event stored procedure.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/safego"
)

// AuditWriter persists audit entries. *repositories.AuditRepository implements it.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditOptions selects which requests are recorded
type AuditOptions struct {
	// LogDenials records every request refused by a tenant adapter
	LogDenials bool
	// LogAdminWrites records successful non-GET requests made by admins and owners
	LogAdminWrites bool
	// Timeout bounds the background write
	Timeout time.Duration
	// Run launches the background write; defaults to safego.Go
	Run func(func())
}

// DefaultAuditOptions records denials and admin writes with a 5 second write timeout
func DefaultAuditOptions() AuditOptions {
	return AuditOptions{
		LogDenials:     true,
		LogAdminWrites: true,
		Timeout:        5 * time.Second,
	}
}

// AuditMiddleware writes audit entries after the handler chain completes. The write runs
// in the background with a context detached from the request.
func AuditMiddleware(writer AuditWriter, opts AuditOptions) gin.HandlerFunc {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Run == nil {
		opts.Run = safego.Go
	}

	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}

		entry := buildAuditEntry(c, opts)
		if entry == nil {
			return
		}

		ctx := context.WithoutCancel(c.Request.Context())
		opts.Run(func() {
			wctx, cancel := context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
			if err := writer.CreateAuditLog(wctx, entry); err != nil {
				slog.Error("failed to write audit log", "action", entry.Action, "error", err)
			}
		})
	}
}

func buildAuditEntry(c *gin.Context, opts AuditOptions) *models.AuditLog {
	metadata := map[string]interface{}{
		"status_code": c.Writer.Status(),
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
	}
	if method := c.GetString(AuthMethodKey); method != "" {
		metadata["auth_method"] = method
	}
	if id := c.GetString(RequestIDKey); id != "" {
		metadata["request_id"] = id
	}

	var action string
	if v, denied := c.Get(DenialKey); denied {
		if !opts.LogDenials {
			return nil
		}
		d, _ := v.(Denial)
		action = d.Check + ".denied"
		metadata["errors"] = d.Errors
	} else {
		if !opts.LogAdminWrites || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return nil
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			return nil
		}
		tc, ok := TenantContext(c)
		if !ok || !auditedRole(tc.Role) {
			return nil
		}
		action = fmt.Sprintf("%s %s", strings.ToLower(c.Request.Method), c.FullPath())
	}

	entry := &models.AuditLog{
		Action:    action,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if ip := c.ClientIP(); ip != "" {
		entry.IPAddress = &ip
	}
	if tc, ok := TenantContext(c); ok {
		userID := tc.UserID
		entry.UserID = &userID
	} else if userID := c.GetString(UserIDKey); userID != "" {
		entry.UserID = &userID
	}
	if orgID := organizationID(c); orgID != "" {
		entry.OrganizationID = &orgID
	}
	if resourceType, resourceID := auditResource(c); resourceType != "" {
		entry.ResourceType = &resourceType
		if resourceID != "" {
			entry.ResourceID = &resourceID
		}
	}
	return entry
}

// auditedRole reports whether successful writes by role are recorded
func auditedRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleOwner
}

// auditResource picks the most specific resource named by the route
func auditResource(c *gin.Context) (resourceType, resourceID string) {
	switch {
	case c.Param("project_id") != "":
		return "project", c.Param("project_id")
	case c.Param("workspace_id") != "":
		return "workspace", c.Param("workspace_id")
	case strings.Contains(c.FullPath(), "/api-keys"):
		return "api_key", ""
	case c.Param("organization_id") != "":
		return "organization", c.Param("organization_id")
	}
	return "", ""
}
