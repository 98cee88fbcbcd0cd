package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/higai/site-admin/pkg/metrics"
)

// Limit configures one rate limiter. Scope names the guarded routes in
// metrics and in Redis keys ("public", "login", ...).
type Limit struct {
	Scope  string
	RPS    float64
	Burst  int
	Window time.Duration
}

// rateKey prefers the authenticated subject and falls back to the client IP.
func rateKey(c *gin.Context) string {
	if sub, ok := Subject(c); ok {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func reject(c *gin.Context, limiter, scope string, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	metrics.RateLimitRejected.WithLabelValues(limiter, scope).Inc()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
}

// RateLimitMiddleware enforces an in-process token bucket per key.
// Buckets are not shared between middleware instances.
func RateLimitMiddleware(l Limit) gin.HandlerFunc {
	var buckets sync.Map // key -> *rate.Limiter
	return func(c *gin.Context) {
		key := rateKey(c)
		v, ok := buckets.Load(key)
		if !ok {
			v, _ = buckets.LoadOrStore(key, rate.NewLimiter(rate.Limit(l.RPS), l.Burst))
		}
		if !v.(*rate.Limiter).Allow() {
			reject(c, "memory", l.Scope, time.Second)
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory", l.Scope).Inc()
		c.Next()
	}
}
