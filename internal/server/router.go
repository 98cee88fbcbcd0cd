package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/higai/site-admin/handlers"
	"github.com/higai/site-admin/internal/admins"
	"github.com/higai/site-admin/internal/config"
	contenthandler "github.com/higai/site-admin/internal/content/handler"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/media"
	"github.com/higai/site-admin/internal/sessions"
	"github.com/higai/site-admin/internal/tokens"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/middleware"
)

// Check reports whether a dependency is usable; nil means ready.
type Check func(ctx context.Context) error

// Deps is everything the HTTP surface needs. Bootstrap fills it from config;
// tests build it by hand.
type Deps struct {
	Config   *config.Config
	Content  service.Service
	Encoder  *media.Encoder
	Linker   contenthandler.Linker
	Admins   *admins.Service
	Sessions *sessions.Service
	Issuer   *tokens.Issuer
	// Verifier guards /api/admin; usually Issuer chained with the OIDC verifier.
	Verifier middleware.Verifier
	SSO      *handlers.SSO
	Redis    *redis.Client
	Checks   map[string]Check
}

var startTime = time.Now()

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery(), cors(cfg.Server.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	r.GET("/ready", readiness(d.Checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	var publicGuard, loginGuard gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		redisClient := d.Redis
		if !cfg.RateLimit.UseRedis {
			redisClient = nil
		}
		publicGuard = middleware.RedisRateLimitMiddleware(redisClient, middleware.Limit{
			Scope: "public", RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst, Window: cfg.RateLimit.Window,
		})
		loginGuard = middleware.RedisRateLimitMiddleware(redisClient, middleware.Limit{
			Scope: "login", RPS: cfg.RateLimit.LoginRPS, Burst: cfg.RateLimit.LoginBurst, Window: cfg.RateLimit.Window,
		})
	}

	auth := handlers.NewAuthHandler(cfg.JWT, d.Admins, d.Sessions, d.Issuer, d.SSO)
	auth.Register(r.Group("/"), loginGuard)
	handlers.NewPublicHandler(d.Content).Register(r.Group("/"), publicGuard)

	admin := r.Group("/api/admin", middleware.AuthMiddleware(d.Verifier, middleware.WithLoginRedirect("/login"), middleware.WithQueryToken()))
	admin.GET("/me", auth.Me)
	var opts []contenthandler.Option
	if d.Linker != nil {
		opts = append(opts, contenthandler.WithLinker(d.Linker))
	}
	contenthandler.New(d.Content, d.Encoder, opts...).Register(admin)
	return r
}

// requestLogger logs one line per request through the application logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		switch {
		case status >= 500:
			logger.Errorf("%s %s -> %d (%s)", c.Request.Method, path, status, time.Since(start))
		case path == "/health" || path == "/metrics":
		default:
			logger.Debugf("%s %s -> %d (%s)", c.Request.Method, path, status, time.Since(start))
		}
	}
}

// cors allows the listed origins ("*" for any) and answers preflights.
func cors(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+contenthandler.ConfirmHeader)
			h.Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}

// readiness returns 200 only when every check passes.
func readiness(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{}
		ready := true
		for name, check := range checks {
			err := check(ctx)
			deps[name] = err == nil
			if err != nil {
				ready = false
				logger.Warnf("readiness: %s: %v", name, err)
			}
		}
		body := gin.H{"deps": deps, "uptime": time.Since(startTime).Round(time.Second).String()}
		if !ready {
			body["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	}
}
