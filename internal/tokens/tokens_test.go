package tokens

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/higai/site-admin/internal/admins"
)

var seg = base64.RawURLEncoding

var admin = &admins.Admin{Sub: "user-123", Name: "Test User", Email: "test@example.com"}

func TestGenerateAccessToken_VerifyClaims(t *testing.T) {
	iss := NewIssuer("test-secret-32-bytes-should-be-long-enough", "site-admin")
	tokenStr, exp, err := iss.GenerateAccessToken(admin, 2*time.Minute)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(2*time.Minute), exp, 2*time.Second)

	tok, err := iss.Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, "test@example.com", claims["email"])

	got, err := ExpiresAt(tokenStr)
	require.NoError(t, err)
	require.Equal(t, exp.Unix(), got.Unix())
}

func TestVerify_Expired(t *testing.T) {
	iss := NewIssuer("another-secret-32-bytes-longgggg", "")
	tokenStr, _, err := iss.GenerateAccessToken(admin, -time.Minute)
	require.NoError(t, err)
	_, err = iss.Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_WrongSecretOrIssuer(t *testing.T) {
	tokenStr, _, err := NewIssuer("secret-one-32-bytes-xxxxxxxxxxxxxxxx", "a").GenerateAccessToken(admin, time.Minute)
	require.NoError(t, err)

	_, err = NewIssuer("different-secret-xxxxxxxxxxxxxxxx", "a").Verify(context.Background(), tokenStr)
	require.Error(t, err)
	_, err = NewIssuer("secret-one-32-bytes-xxxxxxxxxxxxxxxx", "b").Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := NewIssuer("x", "").Verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
	_, err = ExpiresAt("not.a.jwt")
	require.Error(t, err)
}

func TestVerify_AlgNoneRejected(t *testing.T) {
	headerEnc := seg.EncodeToString([]byte(`{"alg":"none"}`))
	payloadEnc := seg.EncodeToString([]byte(`{"sub":"u-none","exp":9999999999}`))
	_, err := NewIssuer("x", "").Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

func TestVerify_TamperedPayload(t *testing.T) {
	iss := NewIssuer("tamper-test-secret-32-bytes-xxxxxxx", "")
	tokenStr, _, err := iss.GenerateAccessToken(&admins.Admin{Sub: "user-t"}, 5*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payload, err := seg.DecodeString(parts[1])
	require.NoError(t, err)
	parts[1] = seg.EncodeToString([]byte(strings.Replace(string(payload), "user-t", "attacker", 1)))
	_, err = iss.Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}
