package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"

	authapi "frontdesk/cmd/internal/auth/api"
)

var (
	// ErrInvalidCredentials is returned when the login endpoint rejects the username/password (401).
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrServerError is returned when the backend answers with a 5xx status.
	ErrServerError = errors.New("server error")

	// ErrNetworkUnreachable is returned when the backend cannot be reached at all.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrUnauthorized is returned when a non-login call is answered with 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedResponse is returned when the backend response cannot be understood.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRequestFailed is the generic class for failures that fit no other class.
	ErrRequestFailed = errors.New("request failed")

	// ErrNoRefreshToken is returned by refresh when the Session holds no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrNotAuthenticated is returned by operations that require an authenticated Session,
	// and by a refresh whose Session was logged out while it was in flight.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Classify maps a transport or API error onto the session error taxonomy.
// login selects how a 401 is read: invalid credentials on the login call, unauthorized elsewhere.
func Classify(err error, login bool) error {
	if err == nil {
		return nil
	}

	for _, kind := range []error{
		ErrInvalidCredentials, ErrServerError, ErrNetworkUnreachable, ErrTimeout,
		ErrUnauthorized, ErrMalformedResponse, ErrRequestFailed, ErrNoRefreshToken,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}

	switch code := authapi.StatusCode(err); {
	case code == http.StatusUnauthorized:
		if login {
			return ErrInvalidCredentials
		}
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	case code > 0:
		return ErrRequestFailed
	}

	if errors.Is(err, authapi.ErrMalformedResponse) {
		return ErrMalformedResponse
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr), errors.Is(err, syscall.ECONNREFUSED):
		return ErrNetworkUnreachable
	case errors.As(err, &urlErr) && !errors.Is(err, context.Canceled):
		return ErrNetworkUnreachable
	}

	return ErrRequestFailed
}

// LoginError is a classified login failure.
type LoginError struct {
	// Kind is one of the taxonomy sentinels (ErrInvalidCredentials, ErrTimeout, ...).
	Kind error
	// Err is the underlying cause.
	Err error
}

func (e *LoginError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("login: %v", e.Kind)
	}
	return fmt.Sprintf("login: %v: %v", e.Kind, e.Err)
}

func (e *LoginError) Unwrap() []error { return []error{e.Kind, e.Err} }

// UserMessage returns the message shown to the person at the desk.
func (e *LoginError) UserMessage() string {
	return UserMessage(e.Kind)
}

// UserMessage returns a displayable message for a taxonomy sentinel.
func UserMessage(kind error) string {
	switch {
	case errors.Is(kind, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(kind, ErrServerError):
		return "The server encountered an error. Please try again later."
	case errors.Is(kind, ErrNetworkUnreachable):
		return "Unable to reach the server. Check your network connection."
	case errors.Is(kind, ErrTimeout):
		return "The server took too long to respond. Please try again."
	case errors.Is(kind, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(kind, ErrMalformedResponse):
		return "The server sent an unexpected response."
	default:
		return "Login failed. Please try again."
	}
}
