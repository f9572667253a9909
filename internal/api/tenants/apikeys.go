package tenants

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/auth"
	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/middleware"
	"github.com/nextsaas/nextsaas/internal/tenancy"
)

// QuotaAPIKeys is the quota resource type counting an organization's active keys
const QuotaAPIKeys = "api_keys"

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name        string     `json:"name" binding:"required,max=100"`
	Permissions []string   `json:"permissions" binding:"required,min=1"`
	WorkspaceID *string    `json:"workspace_id"`
	ExpiresAt   *time.Time `json:"expires_at"` // RFC3339
}

// CreateAPIKeyResponse represents the response when creating an API key
type CreateAPIKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Key         string     `json:"key"` // Only returned once during creation
	KeyPrefix   string     `json:"key_prefix"`
	Permissions []string   `json:"permissions"`
	WorkspaceID *string    `json:"workspace_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func apiKeyJSON(k *models.APIKey) gin.H {
	var expiresAt, lastUsed, revokedAt interface{}
	if k.ExpiresAt != nil {
		expiresAt = k.ExpiresAt.Format(time.RFC3339)
	}
	if k.LastUsedAt != nil {
		lastUsed = k.LastUsedAt.Format(time.RFC3339)
	}
	if k.RevokedAt != nil {
		revokedAt = k.RevokedAt.Format(time.RFC3339)
	}
	return gin.H{
		"id":           k.ID,
		"name":         k.Name,
		"key_prefix":   k.KeyPrefix,
		"workspace_id": k.WorkspaceID,
		"permissions":  k.Permissions,
		"expires_at":   expiresAt,
		"last_used_at": lastUsed,
		"revoked_at":   revokedAt,
		"created_at":   k.CreatedAt.Format(time.RFC3339),
	}
}

// ListAPIKeys lists the organization's API keys without their secrets
// GET /api/v1/organizations/:organization_id/api-keys
func (h *Handlers) ListAPIKeys() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		keys, err := h.APIKeys.ListOrganizationAPIKeys(c.Request.Context(), tc.OrganizationID)
		if err != nil {
			internalError(c, "Failed to list API keys", err, "organization_id", tc.OrganizationID)
			return
		}

		resp := make([]gin.H, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, apiKeyJSON(k))
		}
		c.JSON(http.StatusOK, gin.H{"keys": resp})
	}
}

// @Summary      Create API key
// @Description  Create an organization API key. The caller cannot grant permissions it does not hold. The full key is only returned once.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        organization_id  path  string               true  "Organization ID"
// @Param        body             body  CreateAPIKeyRequest  true  "API key creation request"
// @Success      201  {object}  CreateAPIKeyResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request or permissions"
// @Failure      403  {object}  map[string]interface{}  "Permissions exceed the caller's"
// @Failure      429  {object}  map[string]interface{}  "API key quota exceeded"
// @Router       /api/v1/organizations/{organization_id}/api-keys [post]
func (h *Handlers) CreateAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": []string{err.Error()}})
			return
		}

		tc := tenantContext(c)

		var details []string
		for _, p := range req.Permissions {
			if err := auth.ValidatePermission(p); err != nil {
				details = append(details, err.Error())
			}
		}
		if len(details) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid permissions", "details": details})
			return
		}
		for _, p := range req.Permissions {
			if !tc.HasPermission(p) {
				details = append(details, "Cannot grant permission '"+p+"'")
			}
		}
		if len(details) > 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "details": details})
			return
		}

		// A workspace-scoped caller can only mint keys for its own workspace
		if tc.WorkspaceID != "" && (req.WorkspaceID == nil || *req.WorkspaceID != tc.WorkspaceID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "details": []string{"Cannot create a key outside workspace '" + tc.WorkspaceID + "'"}})
			return
		}
		if req.WorkspaceID != nil {
			ws, err := h.Workspaces.GetWorkspaceByID(c.Request.Context(), *req.WorkspaceID)
			if err != nil {
				internalError(c, "Failed to load workspace", err, "workspace_id", *req.WorkspaceID)
				return
			}
			if ws == nil || ws.OrganizationID != tc.OrganizationID || ws.IsDeleted() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workspace_id", "details": []string{tenancy.MsgWorkspaceNotFound}})
				return
			}
		}

		now := h.Now()
		if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
			return
		}

		rawKey, hash, displayPrefix, err := auth.GenerateAPIKey(h.APIKeyPrefix)
		if err != nil {
			internalError(c, "Failed to generate API key", err)
			return
		}

		key := &models.APIKey{
			OrganizationID: tc.OrganizationID,
			WorkspaceID:    req.WorkspaceID,
			Name:           req.Name,
			KeyHash:        hash,
			KeyPrefix:      displayPrefix,
			Permissions:    auth.NormalizePermissions(req.Permissions),
			ExpiresAt:      req.ExpiresAt,
			CreatedAt:      now,
		}
		// API key callers have no user row to reference
		if c.GetString(middleware.AuthMethodKey) == middleware.AuthMethodJWT {
			userID := tc.UserID
			key.CreatedBy = &userID
		}

		if err := h.APIKeys.CreateAPIKey(c.Request.Context(), key); err != nil {
			internalError(c, "Failed to create API key", err, "organization_id", tc.OrganizationID)
			return
		}
		h.recordUsage(c, tc.OrganizationID, QuotaAPIKeys, 1)

		c.JSON(http.StatusCreated, CreateAPIKeyResponse{
			ID:          key.ID,
			Name:        key.Name,
			Key:         rawKey,
			KeyPrefix:   key.KeyPrefix,
			Permissions: key.Permissions,
			WorkspaceID: key.WorkspaceID,
			ExpiresAt:   key.ExpiresAt,
			CreatedAt:   key.CreatedAt,
		})
	}
}

// RevokeAPIKey revokes :key_id. Revoking an already revoked key succeeds.
// DELETE /api/v1/organizations/:organization_id/api-keys/:key_id
func (h *Handlers) RevokeAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantContext(c)
		keyID := c.Param("key_id")

		key, err := h.APIKeys.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			internalError(c, "Failed to load API key", err, "key_id", keyID)
			return
		}
		// A key from another organization is reported as missing
		if key == nil || key.OrganizationID != tc.OrganizationID {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}

		if !key.IsRevoked() {
			if err := h.APIKeys.RevokeAPIKey(c.Request.Context(), keyID); err != nil {
				internalError(c, "Failed to revoke API key", err, "key_id", keyID)
				return
			}
			h.recordUsage(c, tc.OrganizationID, QuotaAPIKeys, -1)
		}

		c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
	}
}

// VerifyAPIKey reports the presented key's context. Each ?permission= value must be
// held by the key for the result to stay valid.
// POST /api/v1/api-keys/verify
func (h *Handlers) VerifyAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, _ := middleware.ValidationResult(c)
		tc := tenantContext(c)

		for _, p := range c.QueryArray("permission") {
			if !tc.HasPermission(p) {
				c.JSON(http.StatusOK, &tenancy.ValidationResult{
					IsValid:  false,
					Errors:   []string{tenancy.MsgAPIKeyInsufficient},
					Warnings: res.Warnings,
				})
				return
			}
		}
		c.JSON(http.StatusOK, res)
	}
}

// recordUsage adjusts a usage counter after the change it counts has been committed.
// A failed update is only logged and leaves the counter off by delta. Running counts
// such as api_keys have no reset period, so that drift stays until an operator
// corrects the row.
func (h *Handlers) recordUsage(c *gin.Context, organizationID, resourceType string, delta int64) {
	if err := h.QuotaStore.IncrementUsage(c.Request.Context(), organizationID, resourceType, delta); err != nil {
		slog.WarnContext(c.Request.Context(), "failed to update usage counter",
			"organization_id", organizationID, "resource_type", resourceType, "delta", delta, "error", err)
	}
}
