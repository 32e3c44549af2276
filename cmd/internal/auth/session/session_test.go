package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	authapi "frontdesk/cmd/internal/auth/api"
)

func TestMergeProfile(t *testing.T) {
	t.Parallel()

	server := authapi.Profile{ID: "1", Role: "admin", FullName: "Server Name", Email: "s@hotel.test", Token: "x"}

	tests := []struct {
		name   string
		cached *authapi.Profile
		want   authapi.Profile
	}{
		{"no cache", nil, authapi.Profile{ID: "1", Role: "admin", FullName: "Server Name", Email: "s@hotel.test"}},
		{"local name wins", &authapi.Profile{FullName: "Local Name"}, authapi.Profile{ID: "1", Role: "admin", FullName: "Local Name", Email: "s@hotel.test"}},
		{"server role wins", &authapi.Profile{ID: "1", Role: "reception", Phone: "555"}, authapi.Profile{ID: "1", Role: "admin", FullName: "Server Name", Email: "s@hotel.test", Phone: "555"}},
		{"blank local ignored", &authapi.Profile{FullName: "  "}, authapi.Profile{ID: "1", Role: "admin", FullName: "Server Name", Email: "s@hotel.test"}},
		{"other user ignored", &authapi.Profile{ID: "2", FullName: "Someone Else"}, authapi.Profile{ID: "1", Role: "admin", FullName: "Server Name", Email: "s@hotel.test"}},
	}

	for _, tt := range tests {
		if got := MergeProfile(server, tt.cached); got != tt.want {
			t.Fatalf("%s: MergeProfile()=%+v want=%+v", tt.name, got, tt.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		login bool
		want  error
	}{
		{"nil", nil, false, nil},
		{"login 401", &authapi.StatusError{StatusCode: 401}, true, ErrInvalidCredentials},
		{"call 401", &authapi.StatusError{StatusCode: 401}, false, ErrUnauthorized},
		{"502", fmt.Errorf("authapi.Login: %w", &authapi.StatusError{StatusCode: 502}), true, ErrServerError},
		{"404", &authapi.StatusError{StatusCode: 404}, true, ErrRequestFailed},
		{"deadline", &url.Error{Op: "Post", URL: "x", Err: context.DeadlineExceeded}, true, ErrTimeout},
		{"net timeout", timeoutErr{}, true, ErrTimeout},
		{"refused", &url.Error{Op: "Post", URL: "x", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, true, ErrNetworkUnreachable},
		{"dns", &net.DNSError{Err: "no such host", Name: "hotel.invalid"}, true, ErrNetworkUnreachable},
		{"malformed", fmt.Errorf("x: %w", authapi.ErrMalformedResponse), true, ErrMalformedResponse},
		{"rejected", fmt.Errorf("x: %w", authapi.ErrRejected), true, ErrRequestFailed},
		{"already classified", fmt.Errorf("%w: cause", ErrTimeout), false, ErrTimeout},
	}

	for _, tt := range tests {
		if got := Classify(tt.err, tt.login); got != tt.want {
			t.Fatalf("%s: Classify(%v)=%v want=%v", tt.name, tt.err, got, tt.want)
		}
	}
}

func TestLoginError(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := error(&LoginError{Kind: ErrNetworkUnreachable, Err: cause})
	if !errors.Is(err, ErrNetworkUnreachable) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	if got := err.Error(); got != "login: network unreachable: dial tcp: refused" {
		t.Fatalf("Error()=%q", got)
	}
	for _, kind := range []error{ErrInvalidCredentials, ErrServerError, ErrNetworkUnreachable, ErrTimeout, ErrUnauthorized, ErrMalformedResponse, ErrRequestFailed} {
		if UserMessage(kind) == "" {
			t.Fatalf("UserMessage(%v) empty", kind)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FRONTDESK_API_BASE_URL", "https://desk.hotel.test/")
	t.Setenv("FRONTDESK_ROUTE_VERIFY", "/auth/verify")
	t.Setenv("FRONTDESK_LOGIN_TIMEOUT", "5s")
	t.Setenv("FRONTDESK_REFRESH_TIMEOUT", "30s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "https://desk.hotel.test" {
		t.Fatalf("base url mismatch: %q", cfg.APIBaseURL)
	}
	if cfg.Routes.Verify != "/auth/verify" || cfg.Routes.Login != authapi.DefaultRoutes().Login {
		t.Fatalf("routes mismatch: %+v", cfg.Routes)
	}
	if cfg.LoginTimeout != 5*time.Second || cfg.RefreshTimeout != 30*time.Second || cfg.VerifyTimeout != 0 {
		t.Fatalf("timeouts mismatch: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct{ key, val string }{
		{"FRONTDESK_API_BASE_URL", "desk.hotel.test"},
		{"FRONTDESK_ROUTE_LOGIN", "login.php"},
		{"FRONTDESK_LOGIN_TIMEOUT", "0s"},
		{"FRONTDESK_VERIFY_TIMEOUT", "-1s"},
		{"FRONTDESK_REFRESH_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := LoadConfigFromEnv(); err != ErrConfig {
				t.Fatalf("expected ErrConfig for %s=%q, got %v", tt.key, tt.val, err)
			}
		})
	}
}
