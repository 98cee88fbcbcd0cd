package admins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureAdminAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	a, err := svc.EnsureAdmin(ctx, " Admin@Example.com ", "Site Admin", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", a.Email)
	require.NotEmpty(t, a.Sub)
	require.NotEqual(t, "s3cret-pass", a.Password)

	got, err := svc.Authenticate(ctx, "admin@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, a.Sub, got.Sub)

	_, err = svc.Authenticate(ctx, "admin@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureAdmin_RotatesPasswordKeepsSub(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	first, err := svc.EnsureAdmin(ctx, "a@example.com", "A", "one-password")
	require.NoError(t, err)

	again, err := svc.EnsureAdmin(ctx, "a@example.com", "A", "one-password")
	require.NoError(t, err)
	require.Equal(t, first.Password, again.Password)

	rotated, err := svc.EnsureAdmin(ctx, "a@example.com", "", "two-password")
	require.NoError(t, err)
	require.Equal(t, first.Sub, rotated.Sub)
	require.Equal(t, "A", rotated.Name)

	_, err = svc.Authenticate(ctx, "a@example.com", "one-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "a@example.com", "two-password")
	require.NoError(t, err)

	_, err = svc.EnsureAdmin(ctx, "", "", "x")
	require.Error(t, err)
}

func TestUpsertFromClaims(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	a, err := svc.UpsertFromClaims(ctx, map[string]interface{}{
		"sub":   "sub-123",
		"email": "x@example.com",
		"name":  "X User",
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, "sub-123", a.Sub)
	require.Equal(t, AuthSourceOIDC, a.AuthSource)
	require.False(t, a.CreatedAt.After(a.UpdatedAt))

	bySub, err := svc.GetBySub(ctx, "sub-123")
	require.NoError(t, err)
	require.Equal(t, "x@example.com", bySub.Email)

	// identity-provider accounts cannot use the password form
	_, err = svc.Authenticate(ctx, "x@example.com", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	none, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@e.com"})
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	a := &Admin{Password: hash}
	require.True(t, a.VerifyPassword("pw"))
	require.False(t, a.VerifyPassword("other"))
	require.False(t, (&Admin{}).VerifyPassword("pw"))
	require.False(t, (&Admin{Password: "not-a-hash"}).VerifyPassword("pw"))
}
