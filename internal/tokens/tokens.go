package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/higai/site-admin/internal/admins"
	"github.com/higai/site-admin/pkg/middleware"
)

// Issuer signs and verifies console access tokens (HS256).
type Issuer struct {
	secret []byte
	issuer string
}

func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer}
}

// GenerateAccessToken creates a signed JWT access token for the admin.
func (i *Issuer) GenerateAccessToken(a *admins.Admin, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"iss":   i.issuer,
		"sub":   a.Sub,
		"name":  a.Name,
		"email": a.Email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	return s, exp, err
}

type claimsToken jwt.MapClaims

func (t claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verify implements middleware.Verifier for tokens this Issuer signed.
func (i *Issuer) Verify(_ context.Context, raw string) (middleware.Token, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return i.secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claimsToken(mc), nil
}

// ExpiresAt reads the exp claim of a token without checking its signature.
// Logout uses it to bound how long a revoked token is remembered.
func ExpiresAt(raw string) (time.Time, error) {
	var mc jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &mc); err != nil {
		return time.Time{}, err
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}
