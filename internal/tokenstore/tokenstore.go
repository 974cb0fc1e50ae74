// Package tokenstore persists the session auth token, the push token and the
// device identifier in local storage.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"vn.io.arda/storefront-notifier/internal/domain"
)

var (
	ErrNoToken      = errors.New("no token stored")
	ErrTokenExpired = errors.New("token expired")
)

const (
	authTokenKey = "auth_token"
	deviceIDKey  = "device_id"
	pushTokenKey = "push_token:"
)

// Store reads and writes tokens through a domain.KV.
// The auth token and device id are device-wide; the push token is scoped by user.
type Store struct {
	kv     domain.KV
	userID string
	now    func() time.Time
}

// New creates a Store scoped to userID. An empty userID selects the anonymous bucket.
func New(kv domain.KV, userID string) *Store {
	if userID == "" {
		userID = domain.AnonymousUser
	}
	return &Store{kv: kv, userID: userID, now: time.Now}
}

// WithUser returns a copy of s scoped to userID.
func (s *Store) WithUser(userID string) *Store {
	c := New(s.kv, userID)
	c.now = s.now
	return c
}

// UserID returns the scope of the store.
func (s *Store) UserID() string { return s.userID }

// SaveAuthToken persists the session token.
func (s *Store) SaveAuthToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	return s.kv.Set(ctx, authTokenKey, token)
}

// AuthToken returns the stored session token. An expired JWT is removed and
// ErrTokenExpired returned. Opaque tokens never expire locally.
func (s *Store) AuthToken(ctx context.Context) (string, error) {
	var token string
	if err := s.kv.Get(ctx, authTokenKey, &token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("load auth token: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	if Expired(token, s.now()) {
		if err := s.kv.Delete(ctx, authTokenKey); err != nil {
			return "", fmt.Errorf("clear expired token: %w", err)
		}
		return "", ErrTokenExpired
	}
	return token, nil
}

// ClearAuthToken removes the session token (sign-out).
func (s *Store) ClearAuthToken(ctx context.Context) error {
	return s.kv.Delete(ctx, authTokenKey)
}

// SavePushToken persists the push messaging token for the current user.
func (s *Store) SavePushToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, pushTokenKey+s.userID, token)
}

// PushToken returns the push token for the current user or ErrNoToken.
func (s *Store) PushToken(ctx context.Context) (string, error) {
	var token string
	if err := s.kv.Get(ctx, pushTokenKey+s.userID, &token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("load push token: %w", err)
	}
	return token, nil
}

// DeletePushToken clears the push token for the current user.
func (s *Store) DeletePushToken(ctx context.Context) error {
	return s.kv.Delete(ctx, pushTokenKey+s.userID)
}

// DeviceID returns the persisted device identifier, generating it on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.kv.Get(ctx, deviceIDKey, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("load device id: %w", err)
	}
	id = uuid.NewString()
	if err := s.kv.Set(ctx, deviceIDKey, id); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return id, nil
}

// RetainedKeyPrefixes lists the key prefixes a storage purge must keep: the
// device-wide keys and the per-user push tokens. They are written once and
// still needed long after.
func RetainedKeyPrefixes() []string { return []string{authTokenKey, deviceIDKey, pushTokenKey} }

// Expired reports whether a JWT's exp claim is before now.
// Tokens that are not JWTs or carry no exp claim are treated as unexpired.
func Expired(token string, now time.Time) bool {
	claims, ok := parseClaims(token)
	if !ok {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// Subject returns the JWT sub claim, or "" for opaque tokens.
func Subject(token string) string {
	claims, ok := parseClaims(token)
	if !ok {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// parseClaims decodes claims without verifying the signature; the backend verifies it.
func parseClaims(token string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}
