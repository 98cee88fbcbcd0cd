package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndValidateSession(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.CreateSession(ctx, "sub-1", "a@example.com", "cli", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, r)

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Equal(t, "sub-1", sess.Sub)
	require.Equal(t, "a@example.com", sess.Email)
	require.NotEqual(t, r, sess.RefreshHash)

	require.NoError(t, svc.DeleteRefresh(ctx, r))
	_, err = svc.ValidateRefresh(ctx, r)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = svc.ValidateRefresh(ctx, "")
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRotate_SingleUse(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	first, err := svc.CreateSession(ctx, "sub-1", "a@example.com", "", time.Hour)
	require.NoError(t, err)

	second, sess, err := svc.Rotate(ctx, first, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, "sub-1", sess.Sub)

	_, _, err = svc.Rotate(ctx, first, time.Hour)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = svc.ValidateRefresh(ctx, second)
	require.NoError(t, err)
}

func TestValidateRefresh_Expired(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "sub-1", "", "", time.Minute)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	_, err = svc.ValidateRefresh(ctx, r)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	got, err := repo.GetByHash(ctx, digest(r))
	require.NoError(t, err)
	require.Nil(t, got)
}
