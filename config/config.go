// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CREDITMETER_"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Metering MeteringConfig `yaml:"metering"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Catalog  CatalogConfig  `yaml:"catalog"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	OpenAPI         bool          `yaml:"openapi"` // serves /swagger
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the usage ledger and catalog storage.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // "sqlite", "postgres" or "memory"
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig configures cross-replica catalog invalidation.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// MeteringConfig configures credit enforcement.
type MeteringConfig struct {
	Enforcement string        `yaml:"enforcement"` // "soft" or "strict"
	CatalogTTL  time.Duration `yaml:"catalog_ttl"`
	Timezone    string        `yaml:"timezone"` // month boundaries are computed here
}

// AuthConfig guards the /v1 API.
// The config file is env-expanded, which mangles '$' in a bcrypt hash, so set
// the hash with CREDITMETER_AUTH_SERVICE_KEY_HASH or a ${VAR} reference.
type AuthConfig struct {
	ServiceKeyHash string `yaml:"service_key_hash,omitempty"` // bcrypt hash of X-Service-Key
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// CatalogConfig points at YAML catalogs used for seeding.
// Empty paths use the built-in defaults.
type CatalogConfig struct {
	EventsFile string `yaml:"events_file,omitempty"`
	PlansFile  string `yaml:"plans_file,omitempty"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CREDITMETER_SERVER_HOST           - Server host (default: 0.0.0.0)
//	CREDITMETER_SERVER_PORT           - Server port (default: 8080)
//	CREDITMETER_SERVER_OPENAPI        - Serve Swagger UI at /swagger (default: false)
//	CREDITMETER_DATABASE_DRIVER       - sqlite, postgres or memory (default: sqlite)
//	CREDITMETER_DATABASE_DSN          - Database path or URL (default: creditmeter.db)
//	CREDITMETER_REDIS_ADDR            - Enables Redis invalidation when set
//	CREDITMETER_METERING_ENFORCEMENT  - soft or strict (default: soft)
//	CREDITMETER_METERING_CATALOG_TTL  - Catalog cache TTL (default: 5m)
//	CREDITMETER_METERING_TIMEZONE     - Month boundary timezone (default: UTC)
//	CREDITMETER_AUTH_SERVICE_KEY_HASH - bcrypt hash for X-Service-Key
//	CREDITMETER_LOG_LEVEL             - debug, info, warn, error (default: info)
//	CREDITMETER_LOG_FORMAT            - json or console (default: json)
//	CREDITMETER_METRICS_ENABLED       - Enable /metrics (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// HasEnvConfig returns true if a database is configured through the environment.
func HasEnvConfig() bool {
	return os.Getenv(EnvPrefix+"DATABASE_DSN") != "" || os.Getenv(EnvPrefix+"DATABASE_DRIVER") != ""
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// applyEnvOverrides applies CREDITMETER_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := env("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := env("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := env("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := env("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := env("SERVER_OPENAPI"); v != "" {
		cfg.Server.OpenAPI = parseBool(v)
	}

	// Database configuration
	if v := env("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := env("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := env("DATABASE_AUTO_MIGRATE"); v != "" {
		cfg.Database.AutoMigrate = parseBool(v)
	}

	// Redis configuration
	if v := env("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := env("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := env("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := env("REDIS_CHANNEL"); v != "" {
		cfg.Redis.Channel = v
	}
	if v := env("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}

	// Metering configuration
	if v := env("METERING_ENFORCEMENT"); v != "" {
		cfg.Metering.Enforcement = v
	}
	if v := env("METERING_CATALOG_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Metering.CatalogTTL = d
		}
	}
	if v := env("METERING_TIMEZONE"); v != "" {
		cfg.Metering.Timezone = v
	}

	// Auth configuration
	if v := env("AUTH_SERVICE_KEY_HASH"); v != "" {
		cfg.Auth.ServiceKeyHash = v
	}

	// Logging configuration
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := env("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := env("METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Catalog configuration
	if v := env("CATALOG_EVENTS_FILE"); v != "" {
		cfg.Catalog.EventsFile = v
	}
	if v := env("CATALOG_PLANS_FILE"); v != "" {
		cfg.Catalog.PlansFile = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == DriverSQLite {
		cfg.Database.DSN = "creditmeter.db"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	if cfg.Metering.Enforcement == "" {
		cfg.Metering.Enforcement = "soft"
	}
	if cfg.Metering.CatalogTTL == 0 {
		cfg.Metering.CatalogTTL = 5 * time.Minute
	}
	if cfg.Metering.Timezone == "" {
		cfg.Metering.Timezone = "UTC"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{DriverSQLite: true, DriverPostgres: true, DriverMemory: true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite', 'postgres' or 'memory', got %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == DriverPostgres && cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.driver is 'postgres'")
	}

	if cfg.Metering.Enforcement != "soft" && cfg.Metering.Enforcement != "strict" {
		return fmt.Errorf("metering.enforcement must be 'soft' or 'strict', got %q", cfg.Metering.Enforcement)
	}
	if cfg.Metering.CatalogTTL < 0 {
		return fmt.Errorf("metering.catalog_ttl must not be negative")
	}
	if _, err := time.LoadLocation(cfg.Metering.Timezone); err != nil {
		return fmt.Errorf("metering.timezone: %w", err)
	}

	if cfg.Auth.ServiceKeyHash != "" && !strings.HasPrefix(cfg.Auth.ServiceKeyHash, "$2") {
		return fmt.Errorf("auth.service_key_hash must be a bcrypt hash")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	return nil
}
