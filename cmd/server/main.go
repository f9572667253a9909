// @title           NextSaaS Gateway API
// @version         0.1.0
// @description     Multi-tenant context validation for NextSaaS: organization membership, workspace and project access, API keys, quotas and plan gating.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                        Authorization
// @description                 "JWT or API key. For JWT: 'Bearer {token}'. For API key: 'Bearer nsk_{key}'"
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and pprof are served on dedicated side ports, not through the Gin router. Configure them with NEXTSAAS_TELEMETRY_METRICS_PROMETHEUS_PORT (default 9090, path /metrics) and NEXTSAAS_TELEMETRY_PROFILING_ENABLED / NEXTSAAS_TELEMETRY_PROFILING_PORT (default 6060).

// Package main is the entry point for the NextSaaS gateway binary.
// It dispatches three subcommands (serve, migrate, version) via a simple switch on
// os.Args so the binary's full CLI surface is readable in one place. The serve command
// applies pending migrations on startup unless database.migrate_on_start is false.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the internal profiling port, never on the Gin listener
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextsaas/nextsaas/internal/api"
	"github.com/nextsaas/nextsaas/internal/auth"
	"github.com/nextsaas/nextsaas/internal/config"
	"github.com/nextsaas/nextsaas/internal/db"
	"github.com/nextsaas/nextsaas/internal/db/repositories"
	"github.com/nextsaas/nextsaas/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("NextSaaS gateway v%s\n", api.Version)
		return nil
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails outside dev mode when NEXTSAAS_JWT_SECRET is unset or too short
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.StartDBStatsCollector(ctx, database, 30*time.Second)

	if cfg.Database.MigrateOnStart {
		if err := db.RunMigrations(database, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if version, dirty, err := db.GetMigrationVersion(database); err != nil {
			slog.Warn("failed to get migration version", "error", err)
		} else {
			slog.Info("database schema ready", "version", version, "dirty", dirty)
		}
	}

	// Role defaults live in code; copy them into role_permissions so SQL resolution
	// sees the same grants
	rbacRepo := repositories.NewRBACRepository(db.NewSQLX(database))
	if n, err := rbacRepo.SyncRolePermissions(ctx); err != nil {
		return fmt.Errorf("failed to sync role permissions: %w", err)
	} else if n > 0 {
		slog.Info("synced role permissions", "inserted", n)
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	// Metrics and pprof get their own listeners so neither is reachable through the
	// public API ingress path
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		startSideServer("metrics", fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort), mux, 10*time.Second)
	}
	if cfg.Telemetry.Profiling.Enabled {
		// net/http/pprof registers its handlers on http.DefaultServeMux at init time
		startSideServer("pprof", fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port), http.DefaultServeMux, 30*time.Second) // #nosec G108
	}

	watching, err := config.Watch(configPath, func(next *config.Config) {
		telemetry.SetLogLevel(next.Logging.Level)
	})
	if err != nil {
		slog.Warn("config file watch disabled", "error", err)
	} else if watching {
		slog.Info("watching config file for log level changes")
	}

	router, bgServices, err := api.NewRouter(cfg, database, rdb)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"plan_cache", cfg.Plans.CacheBackend,
			"rate_limiting", cfg.Security.RateLimiting.Enabled,
			"tls", cfg.Security.TLS.Enabled,
		)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		bgServices.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs and rate limiter goroutines
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func startSideServer(name, addr string, handler http.Handler, timeout time.Duration) {
	go func() {
		slog.Info("starting side server", "name", name, "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("side server error", "name", name, "error", err)
		}
	}()
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
