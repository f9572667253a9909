// Package config loads and validates the gateway configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the NEXTSAAS_ prefix (e.g. NEXTSAAS_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a config.yaml in
// local development and with pure environment variables in containers.
//
// The JWT signing secret is not part of this struct. It is read from
// NEXTSAAS_JWT_SECRET by the auth package so it never lands in a config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override
const EnvPrefix = "NEXTSAAS"

// Plan cache and throttle backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tenancy   TenancyConfig   `mapstructure:"tenancy"`
	Plans     PlansConfig     `mapstructure:"plans"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
	// MigrateOnStart applies pending migrations before serving
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

// RedisConfig holds the shared Redis connection used by the plan cache and the
// distributed throttle. An empty Addr means Redis is not configured.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled reports whether a Redis address is configured
func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys APIKeyConfig `mapstructure:"api_keys"`
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	// Prefix marks bearer tokens as API keys; keys look like "<prefix>_<random>"
	Prefix string `mapstructure:"prefix"`
}

// TenancyConfig tunes the context validator
type TenancyConfig struct {
	// ParallelLookups runs the membership and billing lookups concurrently
	ParallelLookups bool `mapstructure:"parallel_lookups"`
	// APIKeyTouchTimeout bounds the background last_used_at update
	APIKeyTouchTimeout time.Duration `mapstructure:"api_key_touch_timeout"`
	// QuotaResetInterval is how often expired daily and monthly quotas are zeroed.
	// Zero disables the reset job.
	QuotaResetInterval time.Duration `mapstructure:"quota_reset_interval"`
}

// PlansConfig configures the plan cache in front of the subscription tables
type PlansConfig struct {
	CacheBackend string        `mapstructure:"cache_backend"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheSize    int           `mapstructure:"cache_size"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds the per-client throttle configuration
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds pprof configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// LogDenials records requests refused by tenant validation
	LogDenials bool `mapstructure:"log_denials"`
	// LogAdminWrites records successful writes made by organization admins and owners
	LogAdminWrites bool          `mapstructure:"log_admin_writes"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",
		"server.shutdown_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",
		"database.migrate_on_start",

		// Redis
		"redis.addr",
		"redis.username",
		"redis.password",
		"redis.db",
		"redis.pool_size",

		// Auth
		"auth.api_keys.prefix",

		// Tenancy
		"tenancy.parallel_lookups",
		"tenancy.api_key_touch_timeout",
		"tenancy.quota_reset_interval",

		// Plans
		"plans.cache_backend",
		"plans.cache_ttl",
		"plans.cache_size",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.backend",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Audit
		"audit.enabled",
		"audit.log_denials",
		"audit.log_admin_writes",
		"audit.write_timeout",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// newViper builds a Viper instance with defaults, the config file location, and
// environment bindings. The file is not read yet.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/nextsaas")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// decode unmarshals and validates the current state of v
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in secrets
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load loads configuration from file and environment variables. A missing config
// file is not an error; defaults and the environment are used instead.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// Watch re-reads the config file whenever it is written and passes each new valid
// configuration to onChange. Invalid edits are logged and skipped. It returns false
// when there is no config file to watch.
//
// Only settings that can change safely at runtime should be applied by onChange; the
// server applies logging.level and keeps everything else until restart.
func Watch(configPath string, onChange func(*Config)) (bool, error) {
	v, err := newViper(configPath)
	if err != nil {
		return false, err
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		return false, fmt.Errorf("error reading config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			slog.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return true, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "nextsaas")
	v.SetDefault("database.user", "nextsaas")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.migrate_on_start", true)

	// Redis defaults
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// Auth defaults
	v.SetDefault("auth.api_keys.prefix", "nsk")

	// Tenancy defaults
	v.SetDefault("tenancy.parallel_lookups", true)
	v.SetDefault("tenancy.api_key_touch_timeout", "5s")
	v.SetDefault("tenancy.quota_reset_interval", "1h")

	// Plans defaults
	v.SetDefault("plans.cache_backend", BackendMemory)
	v.SetDefault("plans.cache_ttl", "5m")
	v.SetDefault("plans.cache_size", 1024)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", BackendMemory)
	v.SetDefault("security.rate_limiting.requests_per_minute", 600)
	v.SetDefault("security.rate_limiting.burst", 100)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "nextsaas-gateway")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_denials", true)
	v.SetDefault("audit.log_admin_writes", true)
	v.SetDefault("audit.write_timeout", "5s")
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if !validPort(c.Server.Port) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Auth.APIKeys.Prefix == "" || strings.Contains(c.Auth.APIKeys.Prefix, "_") {
		return fmt.Errorf("auth.api_keys.prefix must be non-empty and must not contain '_'")
	}

	if c.Tenancy.APIKeyTouchTimeout <= 0 {
		return fmt.Errorf("tenancy.api_key_touch_timeout must be positive")
	}
	if c.Tenancy.QuotaResetInterval < 0 {
		return fmt.Errorf("tenancy.quota_reset_interval must not be negative")
	}

	// Validate plan cache
	switch c.Plans.CacheBackend {
	case BackendMemory:
		if c.Plans.CacheSize <= 0 {
			return fmt.Errorf("plans.cache_size must be positive for the memory cache")
		}
	case BackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis.addr is required when plans.cache_backend is redis")
		}
	default:
		return fmt.Errorf("invalid plans.cache_backend: %s (must be memory or redis)", c.Plans.CacheBackend)
	}
	if c.Plans.CacheTTL <= 0 {
		return fmt.Errorf("plans.cache_ttl must be positive")
	}

	// Validate rate limiting
	if c.Security.RateLimiting.Enabled {
		switch c.Security.RateLimiting.Backend {
		case BackendMemory:
		case BackendRedis:
			if !c.Redis.Enabled() {
				return fmt.Errorf("redis.addr is required when security.rate_limiting.backend is redis")
			}
		default:
			return fmt.Errorf("invalid security.rate_limiting.backend: %s (must be memory or redis)", c.Security.RateLimiting.Backend)
		}
		if c.Security.RateLimiting.RequestsPerMinute <= 0 {
			return fmt.Errorf("security.rate_limiting.requests_per_minute must be positive")
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Telemetry.Metrics.Enabled && !validPort(c.Telemetry.Metrics.PrometheusPort) {
		return fmt.Errorf("invalid telemetry.metrics.prometheus_port: %d", c.Telemetry.Metrics.PrometheusPort)
	}
	if c.Telemetry.Profiling.Enabled && !validPort(c.Telemetry.Profiling.Port) {
		return fmt.Errorf("invalid telemetry.profiling.port: %d", c.Telemetry.Profiling.Port)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
