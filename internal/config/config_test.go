package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", t.TempDir()+"/missing.env")
	for _, k := range []string{"MONGODB_URI", "REDIS_HOST", "JWT_SECRET", "ADMIN_EMAIL", "ADMIN_PASSWORD",
		"SERVER_ENVIRONMENT", "ALLOW_INSECURE_TOKEN", "RATE_LIMIT_USE_REDIS", "MEDIA_MAX_INLINE_BYTES"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig(t *testing.T) {
	isolate(t)
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "site_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, http://localhost:3000")
	t.Setenv("STORE_OP_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.MongoDB.Enabled())
	require.Equal(t, "site_test", cfg.MongoDB.Database)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, []string{"https://admin.example.com", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 3*time.Second, cfg.Server.StoreOpTimeout)
	require.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.MongoDB.Enabled())
	require.False(t, cfg.Redis.Enabled())
	require.False(t, cfg.Keycloak.Enabled())
	require.Equal(t, int64(800000), cfg.Media.MaxInlineBytes)
	require.Equal(t, "0.0.0.0:5001", cfg.Server.Addr())
	require.Equal(t, 5*time.Second, cfg.MongoDB.FeedPollInterval)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, time.Duration(0), cfg.Server.StoreOpTimeout)
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"production without secret": {"SERVER_ENVIRONMENT": "production"},
		"insecure in production":    {"SERVER_ENVIRONMENT": "production", "JWT_SECRET": "x", "ALLOW_INSECURE_TOKEN": "true"},
		"half an admin":             {"ADMIN_EMAIL": "a@example.com"},
		"zero media limit":          {"MEDIA_MAX_INLINE_BYTES": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_RedisLimiterNeedsRedis(t *testing.T) {
	isolate(t)
	t.Setenv("RATE_LIMIT_USE_REDIS", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.RateLimit.UseRedis)
}

func TestKeycloakIssuer(t *testing.T) {
	k := KeycloakConfig{URL: "https://sso.example.com/", Realm: "site", ClientID: "admin"}
	require.True(t, k.Enabled())
	require.Equal(t, "https://sso.example.com/realms/site", k.Issuer())
}
