package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/metrics"
)

// RedisRateLimitMiddleware is a fixed-window limiter shared by every
// replica: it INCRs "rl:<scope>:<key>:<window>" and allows
// floor(RPS*window)+Burst requests per window. A nil client falls back to
// the in-process limiter.
func RedisRateLimitMiddleware(client *redis.Client, l Limit) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(l)
	}
	window := l.Window
	if window < time.Second {
		window = time.Second
	}
	secs := int64(window / time.Second)
	allowed := int64(l.RPS*float64(secs)) + int64(l.Burst)
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		bucket := time.Now().Unix() / secs
		key := fmt.Sprintf("rl:%s:%s:%d", l.Scope, rateKey(c), bucket)

		pipe := client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window+time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Errorf("rate limit: redis check for %s failed: %v", l.Scope, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Rate limit check failed"})
			return
		}
		if incr.Val() > allowed {
			reject(c, "redis", l.Scope, window)
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis", l.Scope).Inc()
		c.Next()
	}
}
