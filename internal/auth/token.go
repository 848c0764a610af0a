// Package auth reads the identity carried by the backend's bearer token.
// The client never holds the signing key, so signatures are not checked here;
// the backend verifies them on every request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoUser  = errors.New("token carries no user id")
	ErrExpired = errors.New("token expired")
)

// Claims is the token payload. The backend puts the user id in "id"; "user_id"
// and the registered subject are accepted as fallbacks.
type Claims struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what the daemon needs from a token.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Inspect decodes a token without verifying its signature.
func Inspect(token string) (Identity, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	id := Identity{UserID: firstNonEmpty(claims.ID, claims.UserID, claims.Subject)}
	if id.UserID == "" {
		return Identity{}, ErrNoUser
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Validate is Inspect plus an expiry check at now.
func Validate(token string, now time.Time) (Identity, error) {
	id, err := Inspect(token)
	if err != nil {
		return Identity{}, err
	}
	if id.Expired(now) {
		return id, fmt.Errorf("%w at %s", ErrExpired, id.ExpiresAt.Format(time.RFC3339))
	}
	return id, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
