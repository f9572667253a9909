package tenants

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/middleware"
	"github.com/nextsaas/nextsaas/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newOrgRouter mounts handler under /orgs/:organization_id behind WithContextValidation
func newOrgRouter(v *passValidator, method, path string, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(callerAs(middleware.AuthMethodJWT, "user-123"))
	r.Handle(method, "/orgs/:organization_id"+path, middleware.WithContextValidation(v, handler))
	return r
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestGetContext(t *testing.T) {
	h := New(Deps{})
	r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/context", h.GetContext())

	w := serve(r, http.MethodGet, "/orgs/org-123/context", "")

	require.Equal(t, http.StatusOK, w.Code)
	var res tenancy.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.IsValid)
	require.NotNil(t, res.Context)
	assert.Equal(t, "org-123", res.Context.OrganizationID)
	assert.Equal(t, models.RoleAdmin, res.Context.Role)
}

func TestGetWorkspaceAccess_CarriesWarnings(t *testing.T) {
	h := New(Deps{})
	v := &passValidator{tc: adminContext(), resourceWarnings: []string{tenancy.MsgWorkspaceArchived}}

	r := gin.New()
	r.Use(callerAs(middleware.AuthMethodJWT, "user-123"))
	r.GET("/orgs/:organization_id/workspaces/:workspace_id", middleware.WithResourceValidation(v, middleware.ResourceWorkspace,
		func(c *gin.Context) string { return c.Param("workspace_id") }, h.GetWorkspaceAccess()))

	w := serve(r, http.MethodGet, "/orgs/org-123/workspaces/ws-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenancy.MsgWorkspaceArchived, w.Header().Get(middleware.WarningsHeader))
	body := decode(t, w.Body.Bytes())
	assert.Equal(t, "workspace", body["resource"])
	assert.Equal(t, "ws-1", body["id"])
	assert.Equal(t, []interface{}{tenancy.MsgWorkspaceArchived}, body["warnings"])
}

func TestGetProjectAccess_EmptyWarningsIsArray(t *testing.T) {
	h := New(Deps{})
	v := &passValidator{tc: adminContext()}

	r := gin.New()
	r.Use(callerAs(middleware.AuthMethodJWT, "user-123"))
	r.GET("/orgs/:organization_id/projects/:project_id", middleware.WithResourceValidation(v, middleware.ResourceProject,
		func(c *gin.Context) string { return c.Param("project_id") }, h.GetProjectAccess()))

	w := serve(r, http.MethodGet, "/orgs/org-123/projects/proj-9", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w.Body.Bytes())
	assert.Equal(t, "project", body["resource"])
	assert.Equal(t, "proj-9", body["id"])
	assert.Equal(t, []interface{}{}, body["warnings"])
}

func TestListWorkspaces(t *testing.T) {
	t.Run("lists", func(t *testing.T) {
		ws := &fakeWorkspaces{workspaces: []models.Workspace{{ID: "ws-1", OrganizationID: "org-123", Name: "Prod"}}}
		h := New(Deps{Workspaces: ws})
		r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/workspaces", h.ListWorkspaces())

		w := serve(r, http.MethodGet, "/orgs/org-123/workspaces", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"name":"Prod"`)
	})

	t.Run("store failure", func(t *testing.T) {
		h := New(Deps{Workspaces: &fakeWorkspaces{err: errDB}})
		r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/workspaces", h.ListWorkspaces())

		w := serve(r, http.MethodGet, "/orgs/org-123/workspaces", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Failed to list workspaces"}`, w.Body.String())
	})
}

func TestGetQuotaStatus(t *testing.T) {
	t.Run("defaults operation to read", func(t *testing.T) {
		q := &fakeQuotas{res: &tenancy.ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{"near"}}}
		h := New(Deps{Quotas: q})
		r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/quotas/:resource_type", h.GetQuotaStatus())

		w := serve(r, http.MethodGet, "/orgs/org-123/quotas/api_calls", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "api_calls", q.gotResource)
		assert.Equal(t, "read", q.gotOperation)
		assert.JSONEq(t, `{"isValid":true,"errors":[],"warnings":["near"]}`, w.Body.String())
	})

	t.Run("exceeded is still 200", func(t *testing.T) {
		msg := tenancy.QuotaExceededMessage("api_calls", 10, 10)
		q := &fakeQuotas{res: &tenancy.ValidationResult{IsValid: false, Errors: []string{msg}, Warnings: []string{}}}
		h := New(Deps{Quotas: q})
		r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/quotas/:resource_type", h.GetQuotaStatus())

		w := serve(r, http.MethodGet, "/orgs/org-123/quotas/api_calls?operation=create", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "create", q.gotOperation)
		assert.Contains(t, w.Body.String(), `"isValid":false`)
	})

	t.Run("lookup failure", func(t *testing.T) {
		h := New(Deps{Quotas: &fakeQuotas{err: errDB}})
		r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/quotas/:resource_type", h.GetQuotaStatus())

		w := serve(r, http.MethodGet, "/orgs/org-123/quotas/api_calls", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Failed to check quota"}`, w.Body.String())
	})
}

func TestSetQuota(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantPeriod string
		wantLimit  int64
		wantReset  *time.Time
	}{
		{"defaults to monthly", `{"limit_value":1000}`, http.StatusOK, "monthly", 1000, models.NextQuotaReset("monthly", fixedNow)},
		{"unlimited", `{"limit_value":-1,"period":"total"}`, http.StatusOK, "total", -1, nil},
		{"zero blocks everything", `{"limit_value":0,"period":"daily"}`, http.StatusOK, "daily", 0, models.NextQuotaReset("daily", fixedNow)},
		{"missing limit", `{"period":"daily"}`, http.StatusBadRequest, "", 0, nil},
		{"below unlimited", `{"limit_value":-2}`, http.StatusBadRequest, "", 0, nil},
		{"unknown period", `{"limit_value":5,"period":"hourly"}`, http.StatusBadRequest, "", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeQuotaStore{}
			h := New(Deps{QuotaStore: store, Now: func() time.Time { return fixedNow }})
			r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodPut, "/quotas/:resource_type", h.SetQuota())

			w := serve(r, http.MethodPut, "/orgs/org-123/quotas/api_calls", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, store.upserted)
				return
			}
			require.Len(t, store.upserted, 1)
			q := store.upserted[0]
			assert.Equal(t, "org-123", q.OrganizationID)
			assert.Equal(t, "api_calls", q.ResourceType)
			assert.Equal(t, tt.wantLimit, q.LimitValue)
			assert.Equal(t, tt.wantPeriod, q.Period)
			assert.Equal(t, fixedNow, q.UpdatedAt)
			if tt.wantReset == nil {
				assert.Nil(t, q.ResetAt)
				return
			}
			require.NotNil(t, q.ResetAt)
			assert.Equal(t, *tt.wantReset, *q.ResetAt)
			assert.True(t, q.ResetAt.After(fixedNow))
		})
	}
}

func TestSetQuota_StoreFailure(t *testing.T) {
	h := New(Deps{QuotaStore: &fakeQuotaStore{upsertErr: errDB}})
	r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodPut, "/quotas/:resource_type", h.SetQuota())

	w := serve(r, http.MethodPut, "/orgs/org-123/quotas/api_calls", `{"limit_value":10}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetFeature(t *testing.T) {
	pro := &models.Plan{ID: "pro", Features: []string{"audit_logs", "sso"}}

	tests := []struct {
		name     string
		plan     *models.Plan
		feature  string
		wantJSON string
	}{
		{"included", pro, "sso", `{"feature":"sso","enabled":true,"plan":"pro"}`},
		{"not included", pro, "custom_domains", `{"feature":"custom_domains","enabled":false,"plan":"pro"}`},
		{"no subscription", nil, "sso", `{"feature":"sso","enabled":false,"plan":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Deps{Plans: &fakePlans{plan: tt.plan}})
			r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/features/:feature", h.GetFeature())

			w := serve(r, http.MethodGet, "/orgs/org-123/features/"+tt.feature, "")

			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.wantJSON, w.Body.String())
		})
	}
}

func TestGetLimit(t *testing.T) {
	plan := &models.Plan{ID: "starter", Limits: map[string]int64{"workspaces": 3, "projects": -1}}

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantJSON   string
	}{
		{"under", "/workspaces?current=2", http.StatusOK, `{"name":"workspaces","allowed":true,"unlimited":false,"limit":3,"current":2}`},
		{"at limit", "/workspaces?current=3", http.StatusOK, `{"name":"workspaces","allowed":false,"unlimited":false,"limit":3,"current":3}`},
		{"unlimited", "/projects?current=500", http.StatusOK, `{"name":"projects","allowed":true,"unlimited":true,"limit":-1,"current":500}`},
		{"negative current", "/workspaces?current=-1", http.StatusBadRequest, `{"error":"current must be a non-negative integer"}`},
		{"non-numeric current", "/workspaces?current=many", http.StatusBadRequest, `{"error":"current must be a non-negative integer"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Deps{Plans: &fakePlans{plan: plan}})
			r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodGet, "/limits/:limit", h.GetLimit())

			w := serve(r, http.MethodGet, "/orgs/org-123/limits"+tt.target, "")

			require.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantJSON, w.Body.String())
		})
	}
}

func TestRefreshPlan(t *testing.T) {
	p := &fakePlans{plan: &models.Plan{ID: "pro", Name: "Pro"}}
	h := New(Deps{Plans: p})
	r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodPost, "/plan/refresh", h.RefreshPlan())

	w := serve(r, http.MethodPost, "/orgs/org-123/plan/refresh", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"org-123"}, p.invalidated)
	assert.Contains(t, w.Body.String(), `"id":"pro"`)
}

func TestRefreshPlan_LoadFailure(t *testing.T) {
	h := New(Deps{Plans: &fakePlans{err: errDB}})
	r := newOrgRouter(&passValidator{tc: adminContext()}, http.MethodPost, "/plan/refresh", h.RefreshPlan())

	w := serve(r, http.MethodPost, "/orgs/org-123/plan/refresh", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to load plan"}`, w.Body.String())
}
