package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRepository_CreateGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:")

	ctx := context.Background()
	s := &Session{
		RefreshHash: digest("r1"),
		Sub:         "sub-1",
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(5 * time.Second),
	}
	require.NoError(t, repo.Create(ctx, s))
	require.True(t, m.Exists("test:session:"+digest("r1")))

	got, err := repo.GetByHash(ctx, digest("r1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, s.Sub, got.Sub)

	require.NoError(t, repo.DeleteByHash(ctx, digest("r1")))
	got, err = repo.GetByHash(ctx, digest("r1"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	svc := NewService(NewRedisRepository(client, ""))

	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "sub-2", "", "", time.Second)
	require.NoError(t, err)

	_, err = svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)

	m.FastForward(2 * time.Second)

	_, err = svc.ValidateRefresh(ctx, r)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}
