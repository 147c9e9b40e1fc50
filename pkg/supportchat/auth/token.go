// Package auth resolves the current user from the bearer token the client
// already holds.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tourbook-chat/pkg/supportchat"
)

var ErrTokenExpired = errors.New("token expired")

// TokenLookup reads the user id claim of a JWT issued by the platform. The
// signature is verified by the backend; the client only needs the claims.
type TokenLookup struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenLookup(token string) *TokenLookup {
	return &TokenLookup{token: token, now: time.Now}
}

// SetToken replaces the token, e.g. after sign in or sign out.
func (t *TokenLookup) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// Token implements api.TokenSource.
func (t *TokenLookup) Token(context.Context) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token, nil
}

// CurrentUser returns nil when no usable token is held.
func (t *TokenLookup) CurrentUser(context.Context) (*supportchat.User, error) {
	t.mu.RLock()
	token := t.token
	t.mu.RUnlock()
	if token == "" {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(t.now()) {
		return nil, ErrTokenExpired
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, nil
	}
	return &supportchat.User{ID: userID}, nil
}
