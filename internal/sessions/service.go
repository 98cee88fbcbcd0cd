package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/higai/site-admin/pkg/logger"
)

// ErrInvalidRefresh covers unknown, expired and already rotated refresh tokens.
var ErrInvalidRefresh = errors.New("invalid refresh token")

// Service issues and rotates refresh sessions.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service {
	return &Service{repo: r, now: func() time.Time { return time.Now().UTC() }}
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateSession stores a new session and returns its refresh token.
func (s *Service) CreateSession(ctx context.Context, sub, email, userAgent string, ttl time.Duration) (string, error) {
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	sess := &Session{
		RefreshHash: digest(token),
		Sub:         sub,
		Email:       email,
		UserAgent:   userAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateRefresh returns the live session for refresh.
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	if refresh == "" {
		return nil, ErrInvalidRefresh
	}
	h := digest(refresh)
	sess, err := s.repo.GetByHash(ctx, h)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrInvalidRefresh
	}
	if sess.Expired(s.now()) {
		_ = s.repo.DeleteByHash(ctx, h)
		return nil, ErrInvalidRefresh
	}
	return sess, nil
}

// Rotate consumes refresh and issues a replacement with a fresh ttl.
// A refresh token works once.
func (s *Service) Rotate(ctx context.Context, refresh string, ttl time.Duration) (string, *Session, error) {
	sess, err := s.ValidateRefresh(ctx, refresh)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.DeleteByHash(ctx, sess.RefreshHash); err != nil {
		return "", nil, err
	}
	next, err := s.CreateSession(ctx, sess.Sub, sess.Email, sess.UserAgent, ttl)
	if err != nil {
		return "", nil, err
	}
	logger.Debugf("sessions: rotated refresh token for %s", sess.Sub)
	return next, sess, nil
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByHash(ctx, digest(refresh))
}
