package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/dealdesk/pkg/observability"
	"github.com/platinummonkey/dealdesk/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Redis         RedisConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig holds the optional Redis connection used by the tenancy tree
// cache. An empty URL disables it.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// CacheConfig holds in-process cache tuning.
type CacheConfig struct {
	Enabled       bool
	ScopeCacheSize int
	ScopeCacheTTL  time.Duration
	TreeCacheTTL   time.Duration
}

// AuditConfig holds audit sink settings.
type AuditConfig struct {
	// FilePath, when set, adds a file sink alongside the database sink.
	FilePath      string
	RetentionDays int
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DEALDESK_HOST", "0.0.0.0"),
		Port:            getEnv("DEALDESK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DEALDESK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DEALDESK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DEALDESK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DEALDESK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DEALDESK_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.URL = getEnv("DEALDESK_POSTGRES_URL", "")
	if maxConns := getEnvInt("DEALDESK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("DEALDESK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("DEALDESK_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("DEALDESK_REDIS_URL", ""),
		Password: getEnv("DEALDESK_REDIS_PASSWORD", ""),
		DB:       getEnvInt("DEALDESK_REDIS_DB", 0),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:        getEnvBool("DEALDESK_CACHE_ENABLED", true),
		ScopeCacheSize: getEnvInt("DEALDESK_SCOPE_CACHE_SIZE", 4096),
		ScopeCacheTTL:  getEnvDuration("DEALDESK_SCOPE_CACHE_TTL", 30*time.Second),
		TreeCacheTTL:   getEnvDuration("DEALDESK_TREE_CACHE_TTL", 5*time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		FilePath:      getEnv("DEALDESK_AUDIT_FILE", ""),
		RetentionDays: getEnvInt("DEALDESK_AUDIT_RETENTION_DAYS", 90),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("DEALDESK_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("DEALDESK_METRICS_ENABLED", true),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("postgres URL is required (DEALDESK_POSTGRES_URL)")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention days must not be negative")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
