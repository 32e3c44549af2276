package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/security/sealer"
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher struct {
	api     API
	timeout time.Duration
	log     *slog.Logger
}

// NewRefresher constructs a Refresher. timeout <= 0 means no per-call deadline.
func NewRefresher(api API, timeout time.Duration, log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Refresher{api: api, timeout: timeout, log: log}
}

// Refresh returns the rotated credentials. Every failure is classified; the caller treats any
// failure as terminal for the Session.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (authapi.Credentials, error) {
	if refreshToken == "" {
		return authapi.Credentials{}, ErrNoRefreshToken
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	creds, err := r.api.RefreshToken(ctx, refreshToken)
	if err != nil {
		kind := Classify(err, false)
		r.log.Warn("session.refresh.fail", "refresh", sealer.Fingerprint(refreshToken), "class", kind.Error(), "err", err)
		return authapi.Credentials{}, fmt.Errorf("%w: %w", kind, err)
	}
	return creds, nil
}
