package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/security/sealer"
)

// API is the subset of the backend auth endpoints the session layer calls.
// *authapi.Client implements it.
type API interface {
	Login(ctx context.Context, username, password string) (authapi.Credentials, error)
	VerifyToken(ctx context.Context, accessToken string) (authapi.Profile, error)
	RefreshToken(ctx context.Context, refreshToken string) (authapi.Credentials, error)
	GetProfile(ctx context.Context, accessToken string) (authapi.Profile, error)
}

// Verification is the outcome of a verify call.
type Verification struct {
	Valid bool
	// User is the server-declared profile. It is nil when validity was assumed.
	User *authapi.Profile
	// Indeterminate is set when the call failed for a reason other than 401 and the token was
	// assumed valid. Cause carries that failure.
	Indeterminate bool
	Cause         error
}

// Verifier checks access tokens against the backend.
//
// Only a 401 makes a token invalid. Network errors, timeouts, 5xx and unreadable responses leave
// the token assumed valid, so a backend outage does not log the desk out.
type Verifier struct {
	api     API
	timeout time.Duration
	log     *slog.Logger
}

// NewVerifier constructs a Verifier. timeout <= 0 means no per-call deadline.
func NewVerifier(api API, timeout time.Duration, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Verifier{api: api, timeout: timeout, log: log}
}

// Verify reports whether accessToken is valid.
func (v *Verifier) Verify(ctx context.Context, accessToken string) Verification {
	if accessToken == "" {
		return Verification{}
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	p, err := v.api.VerifyToken(ctx, accessToken)
	switch {
	case err == nil:
		return Verification{Valid: true, User: &p}
	case authapi.IsStatus(err, http.StatusUnauthorized):
		v.log.Info("session.verify.invalid", "token", sealer.Fingerprint(accessToken))
		return Verification{}
	default:
		v.log.Warn("session.verify.indeterminate",
			"token", sealer.Fingerprint(accessToken),
			"class", Classify(err, false).Error(),
			"err", err,
		)
		return Verification{Valid: true, Indeterminate: true, Cause: err}
	}
}
