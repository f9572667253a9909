// Package telemetry provides application-level observability for the tenant gateway.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on the
// side-channel HTTP server started by main.go:
//
//	GET http://<host>:<NEXTSAAS_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Tenant validation outcomes and warnings, by check
//   - API key last-used touch failures
//   - Plan cache hits and misses
//   - Request throttling rejections
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/organizations/:organization_id/context)
// so organization and resource ids never become label values. Validation metrics are labelled
// by check name only.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Validation check names used as the "check" label
const (
	CheckTenant    = "tenant"
	CheckWorkspace = "workspace"
	CheckProject   = "project"
	CheckAPIKey    = "api_key"
	CheckQuota     = "quota"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):       sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency by route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Tenant validation metrics.
//
// TenantValidationsTotal counts every validator call by check and outcome
// ("valid", "invalid", "error"). A jump in invalid tenant checks usually means a
// suspended organization or a revoked key still in use.
//
// Example PromQL queries:
//   - Denial ratio: sum(rate(tenant_validations_total{outcome="invalid"}[5m])) / sum(rate(tenant_validations_total[5m]))
var (
	TenantValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_validations_total",
			Help: "Total number of tenant context validations, by check and outcome.",
		},
		[]string{"check", "outcome"},
	)

	TenantValidationWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_validation_warnings_total",
			Help: "Total number of non-blocking warnings attached to validations, by check.",
		},
		[]string{"check"},
	)
)

// APIKeyTouchFailuresTotal counts failed best-effort last_used_at updates
var APIKeyTouchFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "api_key_touch_failures_total",
		Help: "Total number of API key last-used updates that failed.",
	},
)

// PlanCacheLookupsTotal counts plan cache lookups by result ("hit", "miss", "error")
var PlanCacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plan_cache_lookups_total",
		Help: "Total number of plan cache lookups, by result.",
	},
	[]string{"result"},
)

// ThrottleRejectionsTotal counts requests refused by the per-client throttle, by backend
var ThrottleRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "throttle_rejections_total",
		Help: "Total number of requests rejected by the request throttle, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// RecordValidation records the outcome of one validator call
func RecordValidation(check string, valid bool, warnings int) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	TenantValidationsTotal.WithLabelValues(check, outcome).Inc()
	if warnings > 0 {
		TenantValidationWarningsTotal.WithLabelValues(check).Add(float64(warnings))
	}
}

// RecordValidationError records a validator call that failed on infrastructure
func RecordValidationError(check string) {
	TenantValidationsTotal.WithLabelValues(check, "error").Inc()
}

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx is done
// or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
