package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/config"
	"github.com/nextsaas/nextsaas/internal/middleware"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func newRedisClient(t *testing.T, addr string) redis.UniversalClient {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	return client
}

func getJSON(t *testing.T, r http.Handler, target string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.APIKeys.Prefix = "nsk"
	cfg.Tenancy.APIKeyTouchTimeout = 5 * time.Second
	cfg.Plans.CacheBackend = config.BackendMemory
	cfg.Plans.CacheTTL = time.Minute
	cfg.Plans.CacheSize = 16
	cfg.Security.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.Backend = config.BackendMemory
	cfg.Security.RateLimiting.RequestsPerMinute = 600
	cfg.Audit.Enabled = true
	cfg.Audit.LogDenials = true
	return cfg
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func TestHealthCheckHandler_Healthy(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthCheckHandler(newHealthDB(t, true)))

	code, body := getJSON(t, r, "/health")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthCheckHandler(newHealthDB(t, false)))

	code, body := getJSON(t, r, "/health")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name       string
		pingOK     bool
		redisAddr  string
		wantStatus int
		wantChecks map[string]interface{}
	}{
		{"database only", true, "", http.StatusOK, map[string]interface{}{"database": "healthy"}},
		{"database and redis", true, mr.Addr(), http.StatusOK, map[string]interface{}{"database": "healthy", "redis": "healthy"}},
		{"database down", false, mr.Addr(), http.StatusServiceUnavailable, map[string]interface{}{"database": "unhealthy"}},
		{"redis down", true, "127.0.0.1:1", http.StatusServiceUnavailable, map[string]interface{}{"database": "healthy", "redis": "unhealthy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rdb redis.UniversalClient
			if tt.redisAddr != "" {
				rdb = newRedisClient(t, tt.redisAddr)
			}
			r := gin.New()
			r.GET("/ready", readinessHandler(newHealthDB(t, tt.pingOK), rdb))

			code, body := getJSON(t, r, "/ready")
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if body["ready"] != (tt.wantStatus == http.StatusOK) {
				t.Errorf("ready = %v", body["ready"])
			}
			checks, _ := body["checks"].(map[string]interface{})
			if len(checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if checks[k] != v {
					t.Errorf("checks[%s] = %v, want %v", k, checks[k], v)
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	code, body := getJSON(t, r, "/version")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body["version"] != Version {
		t.Errorf("version = %v, want %s", body["version"], Version)
	}
	if body["api_version"] != "v1" {
		t.Errorf("api_version = %v, want v1", body["api_version"])
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggerMiddleware_RecordsRequest(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.GET("/orgs/:organization_id", func(c *gin.Context) {
		c.Set(middleware.OrganizationIDKey, c.Param("organization_id"))
		c.Set(middleware.AuthMethodKey, middleware.AuthMethodJWT)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/orgs/org-1?x=1", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log %q: %v", buf.String(), err)
	}
	want := map[string]interface{}{
		"msg":             "http request",
		"level":           "INFO",
		"path":            "/orgs/org-1",
		"query":           "x=1",
		"request_id":      "req-42",
		"organization_id": "org-1",
		"auth_method":     "jwt",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("log[%s] = %v, want %v", k, rec[k], v)
		}
	}
}

func TestLoggerMiddleware_ServerErrorLevel(t *testing.T) {
	buf := captureLogs(t)

	r := gin.New()
	r.Use(LoggerMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected ERROR level, got %s", buf.String())
	}
	if strings.Contains(buf.String(), "organization_id") {
		t.Errorf("organization_id should be omitted when unset: %s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func serveCORS(cfg *config.Config, method, origin string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.Handle(method, "/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://example.com"}
	cfg.Security.CORS.AllowedMethods = []string{"GET", "POST"}

	w := serveCORS(cfg, http.MethodGet, "https://example.com")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://example.com", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Access-Control-Allow-Methods = %q, want GET, POST", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, middleware.OrganizationHeader) {
		t.Errorf("Access-Control-Allow-Headers = %q, want it to include %s", got, middleware.OrganizationHeader)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, middleware.WarningsHeader) {
		t.Errorf("Access-Control-Expose-Headers = %q, want it to include %s", got, middleware.WarningsHeader)
	}
}

func TestCORSMiddleware_DefaultMethods(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	w := serveCORS(cfg, http.MethodGet, "https://anything.com")

	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, PATCH, DELETE, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://allowed.com"}

	w := serveCORS(cfg, http.MethodGet, "https://evil.com")

	// Request passes through but no CORS header set
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no Access-Control-Allow-Origin header for disallowed origin")
	}
}

func TestCORSMiddleware_PreflightOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	w := serveCORS(cfg, http.MethodOptions, "https://example.com")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 for OPTIONS preflight", w.Code)
	}
}

func TestCORSMiddleware_WildcardNoOriginHeader(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	w := serveCORS(cfg, http.MethodGet, "")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, bg, err := NewRouter(cfg, db, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)
	return r
}

func TestNewRouter_RegistersRoutes(t *testing.T) {
	r := newTestRouter(t, testConfig())

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /ready",
		"GET /version",
		"GET /api/v1/me/organizations",
		"POST /api/v1/api-keys/verify",
		"GET /api/v1/organizations/:organization_id/context",
		"GET /api/v1/organizations/:organization_id/workspaces",
		"GET /api/v1/organizations/:organization_id/workspaces/:workspace_id",
		"GET /api/v1/organizations/:organization_id/projects/:project_id",
		"GET /api/v1/organizations/:organization_id/quotas/:resource_type",
		"PUT /api/v1/organizations/:organization_id/quotas/:resource_type",
		"GET /api/v1/organizations/:organization_id/features/:feature",
		"GET /api/v1/organizations/:organization_id/limits/:limit",
		"POST /api/v1/organizations/:organization_id/plan/refresh",
		"GET /api/v1/organizations/:organization_id/audit-logs",
		"GET /api/v1/organizations/:organization_id/api-keys",
		"POST /api/v1/organizations/:organization_id/api-keys",
		"DELETE /api/v1/organizations/:organization_id/api-keys/:key_id",
		"POST /api/v1/organizations/:organization_id/members/:user_id/permissions",
		"DELETE /api/v1/organizations/:organization_id/members/:user_id/permissions/:permission",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestNewRouter_APIRequiresAuth(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/context", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on error response")
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
}

func TestNewRouter_BackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"redis plan cache without client", func(c *config.Config) { c.Plans.CacheBackend = config.BackendRedis }},
		{"redis throttle without client", func(c *config.Config) { c.Security.RateLimiting.Backend = config.BackendRedis }},
		{"unknown plan cache", func(c *config.Config) { c.Plans.CacheBackend = "memcached" }},
		{"unknown throttle", func(c *config.Config) { c.Security.RateLimiting.Backend = "token-ring" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, _, err := NewRouter(cfg, nil, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewRouter_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Plans.CacheBackend = config.BackendRedis
	cfg.Security.RateLimiting.Backend = config.BackendRedis

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, bg, err := NewRouter(cfg, db, newRedisClient(t, mr.Addr()))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)
	if bg.rateLimiter != nil {
		t.Error("in-memory limiter should not be created for the redis backend")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/context", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
