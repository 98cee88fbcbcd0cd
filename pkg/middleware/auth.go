package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/higai/site-admin/internal/sessions"
	"github.com/higai/site-admin/pkg/logger"
)

// ClaimsKey holds the verified claims map in the gin context.
const ClaimsKey = "claims"

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (ch Chain) Verify(ctx context.Context, raw string) (Token, error) {
	errs := make([]error, 0, len(ch))
	for _, v := range ch {
		if v == nil {
			continue
		}
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}

type authConfig struct {
	loginPath  string
	queryToken bool
}

type AuthOption func(*authConfig)

// WithLoginRedirect sends browsers (Accept: text/html) to path instead of a
// 401 body.
func WithLoginRedirect(path string) AuthOption {
	return func(c *authConfig) { c.loginPath = path }
}

// WithQueryToken also accepts ?access_token= on GET requests. EventSource
// clients cannot set an Authorization header.
func WithQueryToken() AuthOption {
	return func(c *authConfig) { c.queryToken = true }
}

// AuthMiddleware guards routes with a Bearer token checked by ver. Tokens
// revoked at logout are refused.
func AuthMiddleware(ver Verifier, opts ...AuthOption) gin.HandlerFunc {
	cfg := authConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	deny := func(c *gin.Context, msg string) {
		if cfg.loginPath != "" && strings.Contains(c.GetHeader("Accept"), "text/html") {
			c.Redirect(http.StatusFound, cfg.loginPath)
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
	}
	return func(c *gin.Context) {
		raw, msg := bearer(c, cfg.queryToken)
		if raw == "" {
			deny(c, msg)
			return
		}

		revoked, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), raw)
		if err != nil {
			logger.Errorf("auth: revocation lookup failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session check unavailable"})
			return
		}
		if revoked {
			deny(c, "token revoked")
			return
		}

		tok, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Debugf("auth: token rejected: %v", err)
			deny(c, "invalid token")
			return
		}
		var claims map[string]interface{}
		if err := tok.Claims(&claims); err != nil {
			deny(c, "failed to parse claims")
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func bearer(c *gin.Context, allowQuery bool) (string, string) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		if allowQuery && c.Request.Method == http.MethodGet {
			if t := c.Query("access_token"); t != "" {
				return t, ""
			}
		}
		return "", "missing Authorization header"
	}
	scheme, token, ok := strings.Cut(auth, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "invalid Authorization header"
	}
	return token, ""
}

// Claims returns the verified claims stored by AuthMiddleware.
func Claims(c *gin.Context) map[string]interface{} {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}

// Subject returns the "sub" claim of the authenticated caller.
func Subject(c *gin.Context) (string, bool) {
	sub, ok := Claims(c)["sub"].(string)
	return sub, ok && sub != ""
}
