package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/higai/site-admin/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	Environment    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	// StoreOpTimeout bounds each document store call; zero means none.
	StoreOpTimeout time.Duration
}

func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

func (s ServerConfig) Production() bool { return s.Environment == "production" }

// MongoDBConfig is optional: with no URI the service keeps content in memory.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	// FeedPollInterval is used when change streams are unavailable
	// (standalone server); zero disables polling.
	FeedPollInterval time.Duration
}

func (m MongoDBConfig) Enabled() bool { return m.URI != "" }

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	// AllowInsecure accepts unsigned tokens; local development only.
	AllowInsecure bool
}

func (k KeycloakConfig) Enabled() bool { return k.URL != "" && k.Realm != "" && k.ClientID != "" }

func (k KeycloakConfig) Issuer() string {
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AdminConfig is the bootstrap account ensured at startup.
type AdminConfig struct {
	Email    string
	Name     string
	Password string
}

type MediaConfig struct {
	MaxInlineBytes int64
	// ArchiveOriginals stores each upload in MinIO as well when it is configured.
	ArchiveOriginals bool
}

type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool
	RPS      float64
	Burst    int
	Window   time.Duration
	// LoginRPS and LoginBurst throttle /auth/login separately.
	LoginRPS   float64
	LoginBurst int
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (l LogConfig) FileOptions() logger.FileOptions {
	return logger.FileOptions{Path: l.File, MaxSizeMB: l.MaxSizeMB, MaxBackups: l.MaxBackups, MaxAgeDays: l.MaxAgeDays}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "0s")
	v.SetDefault("STORE_OP_TIMEOUT", "0s")
	v.SetDefault("MONGODB_DATABASE", "site")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_FEED_POLL_INTERVAL", "5s")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "site-admin")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("ADMIN_NAME", "Site Admin")
	v.SetDefault("MEDIA_MAX_INLINE_BYTES", 800000)
	v.SetDefault("MEDIA_ARCHIVE_ORIGINALS", true)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 2.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("RATE_LIMIT_LOGIN_RPS", 0.2)
	v.SetDefault("RATE_LIMIT_LOGIN_BURST", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
}

// LoadConfig loads configuration from environment variables and an optional
// .env file (ENV_FILE, default ".env").
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			Environment:    v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			StoreOpTimeout: v.GetDuration("STORE_OP_TIMEOUT"),
		},
		MongoDB: MongoDBConfig{
			URI:              v.GetString("MONGODB_URI"),
			Database:         v.GetString("MONGODB_DATABASE"),
			Timeout:          time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			FeedPollInterval: v.GetDuration("MONGODB_FEED_POLL_INTERVAL"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:           v.GetString("KEYCLOAK_URL"),
			Realm:         v.GetString("KEYCLOAK_REALM"),
			ClientID:      v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  v.GetString("KEYCLOAK_CLIENT_SECRET"),
			AllowInsecure: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			Issuer:          v.GetString("JWT_ISSUER"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		Admin: AdminConfig{
			Email:    v.GetString("ADMIN_EMAIL"),
			Name:     v.GetString("ADMIN_NAME"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		Media: MediaConfig{
			MaxInlineBytes:   v.GetInt64("MEDIA_MAX_INLINE_BYTES"),
			ArchiveOriginals: v.GetBool("MEDIA_ARCHIVE_ORIGINALS"),
		},
		RateLimit: RateLimitConfig{
			Enabled:    v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:   v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:        v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:      v.GetInt("RATE_LIMIT_BURST"),
			Window:     v.GetDuration("RATE_LIMIT_WINDOW"),
			LoginRPS:   v.GetFloat64("RATE_LIMIT_LOGIN_RPS"),
			LoginBurst: v.GetInt("RATE_LIMIT_LOGIN_BURST"),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		if c.Server.Production() {
			return errors.New("JWT_SECRET is required in production")
		}
		logger.Warnf("config: JWT_SECRET is not set; set a secure value in production")
	}
	if c.Keycloak.AllowInsecure && c.Server.Production() {
		return errors.New("ALLOW_INSECURE_TOKEN cannot be used in production")
	}
	if c.Media.MaxInlineBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_INLINE_BYTES must be positive, got %d", c.Media.MaxInlineBytes)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.RateLimit.UseRedis && !c.Redis.Enabled() {
		logger.Warnf("config: RATE_LIMIT_USE_REDIS set without REDIS_HOST; using in-process limiter")
		c.RateLimit.UseRedis = false
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
