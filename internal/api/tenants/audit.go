package tenants

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/db/repositories"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// ListAuditLogs pages through the organization's audit log, newest first
// GET /api/v1/organizations/:organization_id/audit-logs?action=&limit=&offset=
func (h *Handlers) ListAuditLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultAuditPageSize)))
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if limit > maxAuditPageSize {
			limit = maxAuditPageSize
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}

		tc := tenantContext(c)
		filters := repositories.AuditFilters{OrganizationID: &tc.OrganizationID}
		if action := c.Query("action"); action != "" {
			filters.Action = &action
		}

		logs, total, err := h.Audit.ListAuditLogs(c.Request.Context(), filters, limit, offset)
		if err != nil {
			internalError(c, "Failed to list audit logs", err, "organization_id", tc.OrganizationID)
			return
		}

		entries := make([]gin.H, 0, len(logs))
		for _, l := range logs {
			entries = append(entries, gin.H{
				"id":            l.ID,
				"user_id":       l.UserID,
				"action":        l.Action,
				"resource_type": l.ResourceType,
				"resource_id":   l.ResourceID,
				"metadata":      l.Metadata,
				"ip_address":    l.IPAddress,
				"created_at":    l.CreatedAt.Format(time.RFC3339),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": entries,
			"pagination": gin.H{
				"total":  total,
				"limit":  limit,
				"offset": offset,
			},
		})
	}
}
