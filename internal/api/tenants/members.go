package tenants

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/auth"
	"github.com/nextsaas/nextsaas/internal/middleware"
)

// GrantPermissionRequest adds one explicit permission to a member
type GrantPermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// GrantPermission adds an explicit permission on top of the member's role defaults.
// The caller must already hold the permission being granted.
// POST /api/v1/organizations/:organization_id/members/:user_id/permissions
func (h *Handlers) GrantPermission() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GrantPermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": []string{err.Error()}})
			return
		}
		if err := auth.ValidatePermission(req.Permission); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid permission", "details": []string{err.Error()}})
			return
		}

		tc := tenantContext(c)
		if !tc.HasPermission(req.Permission) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": []string{"Cannot grant permission '" + req.Permission + "'"},
			})
			return
		}

		var grantedBy *string
		if c.GetString(middleware.AuthMethodKey) == middleware.AuthMethodJWT {
			grantedBy = &tc.UserID
		}

		userID := c.Param("user_id")
		if err := h.Permissions.GrantPermission(c.Request.Context(), tc.OrganizationID, userID, req.Permission, grantedBy); err != nil {
			internalError(c, "Failed to grant permission", err, "organization_id", tc.OrganizationID, "user_id", userID)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "permission": req.Permission})
	}
}

// RevokePermission removes an explicit grant. Role defaults are not affected.
// DELETE /api/v1/organizations/:organization_id/members/:user_id/permissions/:permission
func (h *Handlers) RevokePermission() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		userID := c.Param("user_id")
		permission := c.Param("permission")

		if err := h.Permissions.RevokePermission(c.Request.Context(), tc.OrganizationID, userID, permission); err != nil {
			internalError(c, "Failed to revoke permission", err, "organization_id", tc.OrganizationID, "user_id", userID)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type membershipResponse struct {
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	Permissions    []string  `json:"permissions"`
	CreatedAt      time.Time `json:"created_at"`
}

// MyOrganizations lists the organizations the signed-in user belongs to. It sits outside
// any organization, so API keys cannot call it.
// GET /api/v1/me/organizations
func (h *Handlers) MyOrganizations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.UserIDKey)
		if userID == "" || c.GetString(middleware.AuthMethodKey) != middleware.AuthMethodJWT {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
			return
		}

		members, err := h.Memberships.ListUserMemberships(c.Request.Context(), userID)
		if err != nil {
			internalError(c, "Failed to list organizations", err, "user_id", userID)
			return
		}

		resp := make([]membershipResponse, 0, len(members))
		for _, m := range members {
			resp = append(resp, membershipResponse{
				OrganizationID: m.OrganizationID,
				Role:           m.Role,
				Status:         m.Status,
				Permissions:    m.Permissions,
				CreatedAt:      m.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"organizations": resp})
	}
}
