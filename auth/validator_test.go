package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewHMACValidator(t *testing.T) {
	_, err := NewHMACValidator("", "chat-gateway")
	assert.ErrorIs(t, err, ErrNoSecret)

	v, err := NewHMACValidator("secret", "")
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestHMACValidator_RoundTrip(t *testing.T) {
	v, err := NewHMACValidator("secret", "chat-gateway")
	require.NoError(t, err)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v.now = fixedClock(now)

	token, expires, err := v.Issue("alice", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	claims, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "chat-gateway", claims.Issuer)
	assert.Equal(t, expires.Unix(), claims.ExpiresAt)
	assert.Equal(t, now.Unix(), claims.IssuedAt)
}

func TestHMACValidator_Rejects(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err := NewHMACValidator("secret", "chat-gateway")
	require.NoError(t, err)
	v.now = fixedClock(now)

	sign := func(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "chat-gateway",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	t.Run("expired", func(t *testing.T) {
		c := valid
		c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		_, err := v.ValidateToken(context.Background(), sign(t, jwt.SigningMethodHS256, []byte("secret"), c))
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := valid
		c.Issuer = "someone-else"
		_, err := v.ValidateToken(context.Background(), sign(t, jwt.SigningMethodHS256, []byte("secret"), c))
		assert.ErrorIs(t, err, ErrInvalidIssuer)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.ValidateToken(context.Background(), sign(t, jwt.SigningMethodHS256, []byte("other"), valid))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := v.ValidateToken(context.Background(), sign(t, jwt.SigningMethodHS512, []byte("secret"), valid))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := valid
		c.ExpiresAt = nil
		_, err := v.ValidateToken(context.Background(), sign(t, jwt.SigningMethodHS256, []byte("secret"), c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := valid
		c.Subject = ""
		_, err := v.ValidateToken(context.Background(), sign(t, jwt.SigningMethodHS256, []byte("secret"), c))
		assert.ErrorIs(t, err, ErrMissingSubject)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.ValidateToken(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestHMACValidator_IssueRequiresSubject(t *testing.T) {
	v, err := NewHMACValidator("secret", "")
	require.NoError(t, err)
	_, _, err = v.Issue("", time.Minute)
	assert.ErrorIs(t, err, ErrMissingSubject)
}
