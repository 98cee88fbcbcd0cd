package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/higai/site-admin/internal/sessions"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct{ good, sub string }

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.good {
		return &fakeToken{data: map[string]interface{}{"sub": f.sub, "email": "test@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

var good = &fakeVerifier{good: "goodtoken", sub: "user1"}

func serve(h gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	g := gin.New()
	g.GET("/", h, func(c *gin.Context) {
		sub, _ := Subject(c)
		c.JSON(http.StatusOK, gin.H{"sub": sub, "claims": Claims(c)})
	})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(AuthMiddleware(good), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	for _, h := range []string{"BadHeader", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", h)
		rw := serve(AuthMiddleware(good), req)
		require.Equal(t, http.StatusUnauthorized, rw.Code, h)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer goodtoken")
	rw := serve(AuthMiddleware(good), req)

	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])
	require.Contains(t, got, "claims")
}

func TestAuthMiddleware_Chain(t *testing.T) {
	other := &fakeVerifier{good: "sso-token", sub: "kc-1"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sso-token")
	rw := serve(AuthMiddleware(Chain{good, nil, other}), req)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "kc-1")

	_, err := Chain{}.Verify(context.Background(), "x")
	require.Error(t, err)
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	rw := serve(AuthMiddleware(good), httptest.NewRequest(http.MethodGet, "/?access_token=goodtoken", nil))
	require.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = serve(AuthMiddleware(good, WithQueryToken()), httptest.NewRequest(http.MethodGet, "/?access_token=goodtoken", nil))
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestAuthMiddleware_LoginRedirect(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rw := serve(AuthMiddleware(good, WithLoginRedirect("/login")), req)
	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, "/login", rw.Header().Get("Location"))

	rw = serve(AuthMiddleware(good, WithLoginRedirect("/login")), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	sessions.SetBlacklistClient(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	defer sessions.SetBlacklistClient(nil)

	require.NoError(t, sessions.BlacklistAccessToken(context.Background(), "goodtoken", 5*time.Second))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer goodtoken")
	rw := serve(AuthMiddleware(good), req)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Contains(t, rw.Body.String(), "revoked")
}
