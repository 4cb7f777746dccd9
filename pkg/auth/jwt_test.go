package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/careconnect/realtime/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func sign(t *testing.T, claims jwt.RegisteredClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	id, err := v.Verify(sign(t, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(expiry),
	}, testSecret))

	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, expiry.Unix(), id.Expiry.Unix())
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)

	cases := map[string]string{
		"empty token":  "",
		"garbage":      "not.a.jwt",
		"wrong secret": sign(t, jwt.RegisteredClaims{Subject: "alice"}, "other-secret"),
		"expired": sign(t, jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}, testSecret),
		"missing subject": sign(t, jwt.RegisteredClaims{}, testSecret),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, auth.ErrTokenInvalid)
		})
	}
}

func TestPassthroughDirectory(t *testing.T) {
	dir := auth.PassthroughDirectory()

	rec, err := dir.ResolveUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.ID)

	_, err = dir.ResolveUser(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
