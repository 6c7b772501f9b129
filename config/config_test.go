package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Environment: "development"}
	assert.True(t, cfg.IsDevelopment())

	cfg = &Config{Environment: "production"}
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())

	cfg = &Config{Environment: "staging"}
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadWithOptions(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("DB_HOST", "testhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "testuser")
	t.Setenv("DB_PASSWORD", "testpass")
	t.Setenv("DB_NAME", "test_outreach")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CORS_ORIGINS", "https://example.com, https://admin.example.com")
	t.Setenv("API_KEY", "k-123")

	cfg, err := LoadWithOptions(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"https://example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "k-123", cfg.Server.APIKey)
	assert.Equal(t, "testhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "testuser", cfg.Database.User)
	assert.Equal(t, "testpass", cfg.Database.Password)
	assert.Equal(t, "test_outreach", cfg.Database.DBName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadDeliveryDefaults(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{})
	require.NoError(t, err)

	d := cfg.Delivery
	assert.Equal(t, 200, d.MaxHourlyPerDomain)
	assert.Equal(t, 800, d.MaxDailyPerDomain)
	assert.Equal(t, 3, d.MaxAttempts)
	assert.Equal(t, 5, d.BackoffBaseMinutes)
	assert.Equal(t, 60, d.BackoffCapMinutes)
	assert.Equal(t, 500, d.DefaultMaxPerEnqueue)
	assert.Equal(t, 6, d.TargetBatchCount)
	assert.Equal(t, 50, d.MaxBatchSize)
	assert.Equal(t, 10*time.Minute, d.BatchSpacing)
	assert.Equal(t, 15*time.Minute, d.LeaseTimeout)
	assert.Equal(t, "postgres", d.DomainLimitBackend)
	assert.Equal(t, "console", cfg.Mail.Transport)
}

func TestLoadWithOptions_Validation(t *testing.T) {
	t.Run("redis backend without url", func(t *testing.T) {
		t.Setenv("DOMAIN_LIMIT_BACKEND", "redis")
		_, err := LoadWithOptions(LoadOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_URL is required")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("DOMAIN_LIMIT_BACKEND", "memcached")
		_, err := LoadWithOptions(LoadOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported DOMAIN_LIMIT_BACKEND")
	})

	t.Run("smtp without host", func(t *testing.T) {
		t.Setenv("MAIL_TRANSPORT", "smtp")
		_, err := LoadWithOptions(LoadOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SMTP_HOST is required")
	})

	t.Run("hourly above daily", func(t *testing.T) {
		t.Setenv("MAX_HOURLY", "900")
		_, err := LoadWithOptions(LoadOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed MAX_DAILY")
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("SERVER_PORT", "8181")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, VERSION, cfg.Version)
}
