// Package auth handles bearer token storage, attachment, and expiry checks.
// Token acquisition is out of scope: the application supplies tokens and an
// optional refresh hook.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryLeeway treats tokens about to expire as already expired, so a request
// does not leave with a token that dies in flight.
const expiryLeeway = 10 * time.Second

// RefreshFunc exchanges the current credentials for a fresh token. The
// transport invokes it at most once per 401.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenStore holds the current bearer token and its expiry.
type TokenStore struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{now: time.Now}
}

// Set stores a token. A zero expiresAt falls back to the token's own JWT exp
// claim when one is present; a token with neither never expires client-side
// (the server remains the authority via 401).
func (s *TokenStore) Set(token string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		if exp, ok := expiryFromJWT(token); ok {
			expiresAt = exp
		}
	}

	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// Token returns the stored token, reporting ok=false when no token is stored
// or the stored one is expired (with leeway).
func (s *TokenStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	if !s.expiresAt.IsZero() && s.now().Add(expiryLeeway).After(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

// Clear drops the stored credentials.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// expiryFromJWT extracts the exp claim without verifying the signature; the
// client only needs the timestamp, verification is the server's job.
func expiryFromJWT(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
