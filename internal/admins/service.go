package admins

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// Service encapsulates admin account logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// Authenticate checks a local email/password sign-in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Admin, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil || a.AuthSource != AuthSourceLocal || !a.VerifyPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// EnsureAdmin creates the bootstrap account, or resets its password when the
// configured one no longer matches. It runs once at startup.
func (s *Service) EnsureAdmin(ctx context.Context, email, name, password string) (*Admin, error) {
	if normalizeEmail(email) == "" || password == "" {
		return nil, fmt.Errorf("admin email and password are required")
	}
	cur, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.AuthSource == AuthSourceLocal && cur.VerifyPassword(password) && (name == "" || cur.Name == name) {
		return cur, nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if name == "" && cur != nil {
		name = cur.Name
	}
	return s.repo.UpsertByEmail(ctx, &Admin{Email: email, Name: name, Password: hash, AuthSource: AuthSourceLocal})
}

// UpsertFromClaims records an admin signed in through the external identity
// provider.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*Admin, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" || email == "" {
		return nil, nil
	}
	return s.repo.UpsertByEmail(ctx, &Admin{Sub: sub, Email: email, Name: name, AuthSource: AuthSourceOIDC})
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*Admin, error) {
	return s.repo.GetBySub(ctx, sub)
}
