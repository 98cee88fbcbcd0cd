package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/higai/site-admin/pkg/metrics"
)

func hit(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory", "under"))
	r := gin.New()
	r.Use(RateLimitMiddleware(Limit{Scope: "under", RPS: 10, Burst: 2}))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory", "under")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(Limit{Scope: "exceeded", RPS: 2, Burst: 1}))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/limited"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory", "exceeded")))

	// one token back after 0.5s
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(r, "/limited"))
}

func TestRateLimitMiddleware_UsesSubjectWhenPresent(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if sub := c.Query("sub"); sub != "" {
			c.Set(ClaimsKey, map[string]interface{}{"sub": sub})
		}
		c.Next()
	})
	r.Use(RateLimitMiddleware(Limit{Scope: "subject", RPS: 0.5, Burst: 1}))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/u?sub=user-123"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/u?sub=user-123"))
	// same IP, different subject has its own bucket
	require.Equal(t, http.StatusOK, hit(r, "/u?sub=user-456"))
}

func TestRateLimitMiddleware_InstancesIndependent(t *testing.T) {
	r := gin.New()
	r.GET("/a", RateLimitMiddleware(Limit{Scope: "a", RPS: 0.1, Burst: 1}), func(c *gin.Context) { c.Status(200) })
	r.GET("/b", RateLimitMiddleware(Limit{Scope: "b", RPS: 0.1, Burst: 1}), func(c *gin.Context) { c.Status(200) })

	require.Equal(t, http.StatusOK, hit(r, "/a"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/a"))
	require.Equal(t, http.StatusOK, hit(r, "/b"))
}
