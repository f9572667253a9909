// Package api wires together all HTTP routes of the NextSaaS gateway.
//
// Route grouping:
//   - Probes (/health, /ready, /version) are unauthenticated.
//   - Everything under /api/v1 requires a bearer JWT or API key. Routes scoped to an
//     organization live under /api/v1/organizations/:organization_id and run behind a
//     tenant adapter, which validates the caller's membership before any handler runs.
//     Guards (permission, quota, plan feature) are passed to the adapter and run in
//     order after it.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/api/tenants"
	"github.com/nextsaas/nextsaas/internal/auth"
	"github.com/nextsaas/nextsaas/internal/config"
	"github.com/nextsaas/nextsaas/internal/db"
	"github.com/nextsaas/nextsaas/internal/db/repositories"
	"github.com/nextsaas/nextsaas/internal/jobs"
	"github.com/nextsaas/nextsaas/internal/middleware"
	"github.com/nextsaas/nextsaas/internal/plans"
	"github.com/nextsaas/nextsaas/internal/tenancy"
	"github.com/redis/go-redis/v9"
)

// Version is the gateway version reported by /version; set at build time with
// -ldflags "-X github.com/nextsaas/nextsaas/internal/api.Version=..."
var Version = "0.1.0"

// Quota resource checked on every workspace and project read
const quotaAPICalls = "api_calls"

// Plan feature required to read the audit log
const featureAuditLogs = "audit_logs"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	quotaResetJob *jobs.QuotaResetJob
	rateLimiter   *middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.quotaResetJob != nil {
		bg.quotaResetJob.Stop()
	}
	if bg.rateLimiter != nil {
		bg.rateLimiter.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb may be nil when Redis is not
// configured; config validation guarantees no Redis backend is selected in that case.
func NewRouter(cfg *config.Config, sqlDB *sql.DB, rdb redis.UniversalClient) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Initialize repositories
	sqlxDB := db.NewSQLX(sqlDB)
	userRepo := repositories.NewUserRepository(sqlDB)
	orgRepo := repositories.NewOrganizationRepository(sqlDB)
	apiKeyRepo := repositories.NewAPIKeyRepository(sqlDB)
	auditRepo := repositories.NewAuditRepository(sqlDB)
	rbacRepo := repositories.NewRBACRepository(sqlxDB)
	subscriptionRepo := repositories.NewSubscriptionRepository(sqlxDB)
	workspaceRepo := repositories.NewWorkspaceRepository(sqlxDB)
	projectRepo := repositories.NewProjectRepository(sqlxDB)
	quotaRepo := repositories.NewQuotaRepository(sqlxDB)

	validator := tenancy.NewValidator(
		tenancy.NewPostgresStore(tenancy.Repositories{
			Users:         userRepo,
			Organizations: orgRepo,
			RBAC:          rbacRepo,
			Subscriptions: subscriptionRepo,
			Workspaces:    workspaceRepo,
			Projects:      projectRepo,
			APIKeys:       apiKeyRepo,
			Quotas:        quotaRepo,
		}),
		tenancy.WithParallelLookups(cfg.Tenancy.ParallelLookups),
		tenancy.WithTouchTimeout(cfg.Tenancy.APIKeyTouchTimeout),
	)

	planCache, err := newPlanCache(cfg, rdb)
	if err != nil {
		return nil, nil, err
	}
	planChecker := plans.NewChecker(subscriptionRepo, planCache, nil, cfg.Plans.CacheTTL)
	slog.Info("plan cache initialized", "backend", cfg.Plans.CacheBackend, "ttl", cfg.Plans.CacheTTL)

	limiter, err := newLimiter(cfg, rdb)
	if err != nil {
		return nil, nil, err
	}
	if rl, ok := limiter.(*middleware.RateLimiter); ok {
		bg.rateLimiter = rl
	}

	if cfg.Tenancy.QuotaResetInterval > 0 {
		bg.quotaResetJob = jobs.NewQuotaResetJob(quotaRepo, cfg.Tenancy.QuotaResetInterval)
		go bg.quotaResetJob.Start(context.Background())
	}

	h := tenants.New(tenants.Deps{
		Quotas:       validator,
		Plans:        planChecker,
		Workspaces:   workspaceRepo,
		QuotaStore:   quotaRepo,
		Audit:        auditRepo,
		APIKeys:      apiKeyRepo,
		Memberships:  orgRepo,
		Permissions:  rbacRepo,
		APIKeyPrefix: cfg.Auth.APIKeys.Prefix,
	})

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(sqlDB))
	router.GET("/ready", readinessHandler(sqlDB, rdb))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(cfg.Auth.APIKeys.Prefix))
	if limiter != nil {
		apiV1.Use(middleware.RateLimitMiddleware(limiter))
	}
	if cfg.Audit.Enabled {
		apiV1.Use(middleware.AuditMiddleware(auditRepo, middleware.AuditOptions{
			LogDenials:     cfg.Audit.LogDenials,
			LogAdminWrites: cfg.Audit.LogAdminWrites,
			Timeout:        cfg.Audit.WriteTimeout,
		}))
	}

	registerRoutes(apiV1, validator, planChecker, h)

	return router, bg, nil
}

// registerRoutes mounts the authenticated API on apiV1
func registerRoutes(apiV1 *gin.RouterGroup, v middleware.TenantValidator, planChecker middleware.PlanChecker, h *tenants.Handlers) {
	withContext := func(handlers ...gin.HandlerFunc) gin.HandlerFunc {
		return middleware.WithContextValidation(v, handlers...)
	}
	need := middleware.RequirePermission

	apiV1.GET("/me/organizations", h.MyOrganizations())
	apiV1.POST("/api-keys/verify", middleware.RequireAPIKey(v), h.VerifyAPIKey())

	org := apiV1.Group("/organizations/:organization_id")
	{
		org.GET("/context", withContext(h.GetContext()))

		org.GET("/workspaces", withContext(need(auth.PermWorkspacesView), h.ListWorkspaces()))
		org.GET("/workspaces/:workspace_id", middleware.WithResourceValidation(v, middleware.ResourceWorkspace, pathParam("workspace_id"),
			middleware.RequireQuota(v, quotaAPICalls, "read"),
			h.GetWorkspaceAccess(),
		))
		org.GET("/projects/:project_id", middleware.WithResourceValidation(v, middleware.ResourceProject, pathParam("project_id"),
			middleware.RequireQuota(v, quotaAPICalls, "read"),
			h.GetProjectAccess(),
		))

		org.GET("/quotas/:resource_type", withContext(h.GetQuotaStatus()))
		org.PUT("/quotas/:resource_type", withContext(need(auth.PermBillingManage), h.SetQuota()))

		org.GET("/features/:feature", withContext(h.GetFeature()))
		org.GET("/limits/:limit", withContext(h.GetLimit()))
		org.POST("/plan/refresh", withContext(need(auth.PermBillingManage), h.RefreshPlan()))

		org.GET("/audit-logs", withContext(
			need(auth.PermAuditView),
			middleware.RequirePlanFeature(planChecker, featureAuditLogs),
			h.ListAuditLogs(),
		))

		org.GET("/api-keys", withContext(need(auth.PermAPIKeysManage), h.ListAPIKeys()))
		org.POST("/api-keys", withContext(
			need(auth.PermAPIKeysManage),
			middleware.RequireQuota(v, tenants.QuotaAPIKeys, "create"),
			h.CreateAPIKey(),
		))
		org.DELETE("/api-keys/:key_id", withContext(need(auth.PermAPIKeysManage), h.RevokeAPIKey()))

		org.POST("/members/:user_id/permissions", withContext(need(auth.PermMembersManage), h.GrantPermission()))
		org.DELETE("/members/:user_id/permissions/:permission", withContext(need(auth.PermMembersManage), h.RevokePermission()))
	}
}

func pathParam(name string) func(*gin.Context) string {
	return func(c *gin.Context) string { return c.Param(name) }
}

func newPlanCache(cfg *config.Config, rdb redis.UniversalClient) (plans.Cache, error) {
	switch cfg.Plans.CacheBackend {
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("plans.cache_backend is redis but no Redis client is configured")
		}
		return plans.NewRedisCache(rdb, nil), nil
	case config.BackendMemory, "":
		return plans.NewMemoryCache(cfg.Plans.CacheSize, nil)
	default:
		return nil, fmt.Errorf("unknown plan cache backend %q", cfg.Plans.CacheBackend)
	}
}

// newLimiter returns nil when throttling is disabled
func newLimiter(cfg *config.Config, rdb redis.UniversalClient) (middleware.Limiter, error) {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil, nil
	}
	limitCfg := middleware.DefaultRateLimitConfig()
	limitCfg.RequestsPerMinute = rl.RequestsPerMinute
	if rl.Burst > 0 {
		limitCfg.BurstSize = rl.Burst
	}

	switch rl.Backend {
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("security.rate_limiting.backend is redis but no Redis client is configured")
		}
		return middleware.NewRedisRateLimiter(rdb, limitCfg), nil
	case config.BackendMemory, "":
		return middleware.NewRateLimiter(limitCfg), nil
	default:
		return nil, fmt.Errorf("unknown rate limiting backend %q", rl.Backend)
	}
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler also probes Redis, since the plan cache and throttle may depend on it
func readinessHandler(db *sql.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the gateway version and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured record per request. The handler chosen in
// telemetry.SetupLogger decides between JSON and text output.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if org := c.GetString(middleware.OrganizationIDKey); org != "" {
			attrs = append(attrs, slog.String("organization_id", org))
		}
		if method := c.GetString(middleware.AuthMethodKey); method != "" {
			attrs = append(attrs, slog.String("auth_method", method))
		}

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	allowHeaders := strings.Join([]string{
		"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With",
		middleware.OrganizationHeader, middleware.RequestIDHeader,
	}, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Expose-Headers", middleware.WarningsHeader+", X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
