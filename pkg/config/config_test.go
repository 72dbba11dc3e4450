package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DEALDESK_POSTGRES_URL", "postgres://localhost/dealdesk_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 4096, cfg.Cache.ScopeCacheSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.ScopeCacheTTL)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Empty(t, cfg.Redis.URL)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DEALDESK_POSTGRES_URL", "postgres://db:5432/dealdesk")
	t.Setenv("DEALDESK_PORT", "8443")
	t.Setenv("DEALDESK_READ_TIMEOUT", "45s")
	t.Setenv("DEALDESK_CACHE_ENABLED", "false")
	t.Setenv("DEALDESK_SCOPE_CACHE_TTL", "2m")
	t.Setenv("DEALDESK_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("DEALDESK_REDIS_URL", "redis://cache:6379/1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8443", cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ScopeCacheTTL)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DEALDESK_POSTGRES_URL", "postgres://localhost/dealdesk_test")
	t.Setenv("DEALDESK_READ_TIMEOUT", "soon")
	t.Setenv("DEALDESK_SCOPE_CACHE_SIZE", "many")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 4096, cfg.Cache.ScopeCacheSize)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		t.Setenv("DEALDESK_POSTGRES_URL", "postgres://localhost/dealdesk_test")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	t.Run("missing postgres URL", func(t *testing.T) {
		cfg := base()
		cfg.Storage.URL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("health port collides with server port", func(t *testing.T) {
		cfg := base()
		cfg.Server.HealthPort = cfg.Server.Port
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative retention", func(t *testing.T) {
		cfg := base()
		cfg.Audit.RetentionDays = -1
		assert.Error(t, cfg.Validate())
	})
}
