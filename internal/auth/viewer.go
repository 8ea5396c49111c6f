// Package auth resolves the signed-in viewer from the backend access token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoViewer       = errors.New("no viewer identity configured")
	ErrTokenExpired   = errors.New("access token has expired")
	ErrMissingSubject = errors.New("access token has no subject claim")
)

// Viewer is the identity every like, comment and notification is written as.
type Viewer struct {
	ID        string
	Email     string
	ExpiresAt time.Time
}

// ParseAccessToken reads the viewer from a backend-issued access token.
// The signature is checked by the backend on every call the token is sent with,
// so the daemon only decodes the claims.
func ParseAccessToken(token string, now time.Time) (*Viewer, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrMissingSubject
	}

	v := &Viewer{ID: sub}
	if email, ok := claims["email"].(string); ok {
		v.Email = email
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("read exp claim: %w", err)
	}
	if exp != nil {
		v.ExpiresAt = exp.Time
		if !now.Before(exp.Time) {
			return nil, ErrTokenExpired
		}
	}
	return v, nil
}

// ResolveViewer prefers the access token and falls back to an explicit viewer ID.
func ResolveViewer(accessToken, viewerID string, now time.Time) (*Viewer, error) {
	if accessToken != "" {
		return ParseAccessToken(accessToken, now)
	}
	if viewerID != "" {
		return &Viewer{ID: viewerID}, nil
	}
	return nil, ErrNoViewer
}
