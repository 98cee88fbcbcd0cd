package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/higai/site-admin/internal/admins"
	"github.com/higai/site-admin/internal/config"
	"github.com/higai/site-admin/internal/sessions"
	"github.com/higai/site-admin/internal/tokens"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/middleware"
)

// LoginRequest is the console sign-in form.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SSOLoginRequest carries an authorization code from the identity provider.
type SSOLoginRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirectUri" binding:"required,url"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LoginResponse is returned by every endpoint that issues tokens.
type LoginResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int           `json:"expiresIn"`
	Admin        *admins.Admin `json:"admin,omitempty"`
}

// SSO exchanges authorization codes with the identity provider and checks
// the returned ID token.
type SSO struct {
	OAuth    *oauth2.Config
	Verifier middleware.Verifier
}

// NewKeycloakSSO builds the code exchange for a Keycloak realm.
func NewKeycloakSSO(kc config.KeycloakConfig, ver middleware.Verifier) *SSO {
	base := kc.Issuer() + "/protocol/openid-connect"
	return &SSO{
		OAuth: &oauth2.Config{
			ClientID:     kc.ClientID,
			ClientSecret: kc.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: base + "/auth", TokenURL: base + "/token"},
			Scopes:       []string{"openid", "email", "profile"},
		},
		Verifier: ver,
	}
}

// exchange trades code for the provider's verified ID token claims.
func (s *SSO) exchange(ctx context.Context, code, redirectURI string) (map[string]interface{}, error) {
	conf := *s.OAuth
	conf.RedirectURL = redirectURI
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, errors.New("token response has no id_token")
	}
	idt, err := s.Verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthHandler holds dependencies
type AuthHandler struct {
	jwt         config.JWTConfig
	adminsSvc   *admins.Service
	sessionsSvc *sessions.Service
	issuer      *tokens.Issuer
	sso         *SSO
}

func NewAuthHandler(cfg config.JWTConfig, a *admins.Service, s *sessions.Service, iss *tokens.Issuer, sso *SSO) *AuthHandler {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &AuthHandler{jwt: cfg, adminsSvc: a, sessionsSvc: s, issuer: iss, sso: sso}
}

// Register routes under /auth. loginGuard (may be nil) throttles the
// credential endpoints.
func (h *AuthHandler) Register(rg *gin.RouterGroup, loginGuard gin.HandlerFunc) {
	a := rg.Group("/auth")
	login := []gin.HandlerFunc{h.Login}
	sso := []gin.HandlerFunc{h.LoginSSO}
	if loginGuard != nil {
		login = append([]gin.HandlerFunc{loginGuard}, login...)
		sso = append([]gin.HandlerFunc{loginGuard}, sso...)
	}
	a.POST("/login", login...)
	if h.sso != nil {
		a.POST("/login/sso", sso...)
	}
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

// Login signs in a local admin account.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.adminsSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, admins.ErrInvalidCredentials) {
		logger.Warnf("auth: failed sign-in for %q from %s", req.Email, c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Errorf("auth: admin lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in unavailable"})
		return
	}
	h.issue(c, a)
}

// LoginSSO completes the identity provider's authorization-code flow.
func (h *AuthHandler) LoginSSO(c *gin.Context) {
	var req SSOLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("auth: sso code length=%d redirect_uri=%s", len(req.Code), req.RedirectURI)
	claims, err := h.sso.exchange(c.Request.Context(), req.Code, req.RedirectURI)
	if err != nil {
		logger.Warnf("auth: sso exchange failed (redirect_uri=%q): %v", req.RedirectURI, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	a, err := h.adminsSvc.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil {
		logger.Errorf("auth: admin upsert: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in unavailable"})
		return
	}
	if a == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "id token lacks sub or email"})
		return
	}
	h.issue(c, a)
}

func (h *AuthHandler) issue(c *gin.Context, a *admins.Admin) {
	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), a.Sub, a.Email, c.Request.UserAgent(), h.jwt.RefreshTokenTTL)
	if err != nil {
		logger.Errorf("auth: failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	h.respond(c, a, rft)
}

func (h *AuthHandler) respond(c *gin.Context, a *admins.Admin, refresh string) {
	access, _, err := h.issuer.GenerateAccessToken(a, h.jwt.AccessTokenTTL)
	if err != nil {
		logger.Errorf("auth: sign access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(h.jwt.AccessTokenTTL.Seconds()),
		Admin:        a,
	})
}

// Refresh rotates the refresh token and returns a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	next, sess, err := h.sessionsSvc.Rotate(c.Request.Context(), req.RefreshToken, h.jwt.RefreshTokenTTL)
	if errors.Is(err, sessions.ErrInvalidRefresh) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Errorf("auth: refresh: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	a, err := h.adminsSvc.GetBySub(c.Request.Context(), sess.Sub)
	if err != nil || a == nil {
		logger.Errorf("auth: refresh for unknown admin %s: %v", sess.Sub, err)
		_ = h.sessionsSvc.DeleteRefresh(c.Request.Context(), next)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
		return
	}
	h.respond(c, a, next)
}

// Logout ends the refresh session and revokes the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if at := bearerToken(c); at != "" {
		if exp, err := tokens.ExpiresAt(at); err == nil {
			if err := sessions.BlacklistAccessToken(c.Request.Context(), at, time.Until(exp)); err != nil {
				logger.Errorf("auth: revoke access token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access token"})
				return
			}
		}
	}
	if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		logger.Errorf("auth: delete session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the signed-in admin. Mount it behind the auth middleware.
func (h *AuthHandler) Me(c *gin.Context) {
	sub, ok := middleware.Subject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	a, err := h.adminsSvc.GetBySub(c.Request.Context(), sub)
	if err == nil && a == nil {
		// identity-provider token seen for the first time
		a, err = h.adminsSvc.UpsertFromClaims(c.Request.Context(), middleware.Claims(c))
	}
	if err != nil {
		logger.Errorf("auth: me lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if a == nil {
		c.JSON(http.StatusOK, gin.H{"claims": middleware.Claims(c)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": a})
}

func bearerToken(c *gin.Context) string {
	scheme, tok, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
