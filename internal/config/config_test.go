package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TRUSTED_PROXIES", "SERVER_PORT", "ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_PASSWORD_HASH", "RETENTION_DAYS", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.Equal(t, 180, cfg.RetentionDays)
	assert.Equal(t, "", cfg.RedisURL)
	assert.False(t, cfg.AdminConfigured())
	assert.Nil(t, cfg.TrustedProxies)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("RETENTION_DAYS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 180, cfg.RetentionDays)
	assert.True(t, cfg.AdminConfigured())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.TrustedProxies)
}

func TestAdminConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"missing everything", Config{}, false},
		{"username only", Config{AdminUsername: "admin"}, false},
		{"plain password", Config{AdminUsername: "admin", AdminPassword: "x"}, true},
		{"hash only", Config{AdminUsername: "admin", AdminPasswordHash: "$2a$10$abc"}, true},
		{"password without username", Config{AdminPassword: "x"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.AdminConfigured())
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:start:10.0.0.1:42", CacheKey.RateLimitKey("start", "10.0.0.1", 42))
}
