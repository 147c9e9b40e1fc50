package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()

	l := NewTokenLookup("")
	u, err := l.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u, "no token means no user")

	l.SetToken(sign(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(time.Hour).Unix()}))
	u, err = l.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u-1", u.ID)

	tok, err := l.Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestCurrentUser_MissingClaim(t *testing.T) {
	l := NewTokenLookup(sign(t, jwt.MapClaims{"sub": "someone"}))
	u, err := l.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCurrentUser_Expired(t *testing.T) {
	l := NewTokenLookup(sign(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}))
	_, err := l.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCurrentUser_Garbage(t *testing.T) {
	l := NewTokenLookup("not-a-jwt")
	_, err := l.CurrentUser(context.Background())
	assert.Error(t, err)
}
