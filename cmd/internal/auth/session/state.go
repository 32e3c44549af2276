package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	authapi "frontdesk/cmd/internal/auth/api"
)

// Status is the Session lifecycle state.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusRestoring       Status = "restoring"
	StatusAuthenticated   Status = "authenticated"
	StatusRefreshing      Status = "refreshing"
)

// HasToken reports whether a Session in status s holds an access token.
func (s Status) HasToken() bool {
	return s == StatusAuthenticated || s == StatusRefreshing
}

// Snapshot is a token-free, point-in-time view of the Session.
type Snapshot struct {
	Status Status           `json:"status"`
	User   *authapi.Profile `json:"user,omitempty"`

	// AccessFingerprint identifies the current access token in logs without revealing it.
	AccessFingerprint string `json:"access_fingerprint,omitempty"`

	// AccessExpiresAt is read from the exp claim when the access token is a JWT. Zero otherwise.
	AccessExpiresAt time.Time `json:"access_expires_at,omitzero"`

	HasRefreshToken bool `json:"has_refresh_token"`
}

// Event is published to watchers whenever the status or the user changes.
type Event struct {
	Status Status
	User   *authapi.Profile
	// Reason names the transition (login, logout, restore, refresh, refresh_failed, update_user).
	Reason string
	// Generation advances when the Session is replaced or destroyed; a refresh keeps it.
	Generation uint64
}

// tokenExpiry returns the exp claim of a JWT access token without verifying its signature.
// The value is only used for display.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func cloneProfile(p *authapi.Profile) *authapi.Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
