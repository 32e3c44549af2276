package session

import (
	"os"
	"strings"
	"time"

	authapi "frontdesk/cmd/internal/auth/api"
)

// Config defines the runtime configuration of the client session subsystem.
type Config struct {
	// APIBaseURL is the hotel backend base URL that the auth routes are resolved against.
	APIBaseURL string

	// Routes are the auth endpoint paths.
	Routes authapi.Routes

	// LoginTimeout bounds the login call and the profile fetch that follows it.
	LoginTimeout time.Duration

	// VerifyTimeout and RefreshTimeout bound verify and refresh calls. Zero leaves the
	// HTTP client's own timeout in charge.
	VerifyTimeout  time.Duration
	RefreshTimeout time.Duration
}

// DefaultConfig returns the configuration of a local development backend.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:   "http://localhost/hotel",
		Routes:       authapi.DefaultRoutes(),
		LoginTimeout: 10 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - FRONTDESK_API_BASE_URL
//   - FRONTDESK_ROUTE_LOGIN, FRONTDESK_ROUTE_VERIFY, FRONTDESK_ROUTE_REFRESH, FRONTDESK_ROUTE_PROFILE
//   - FRONTDESK_LOGIN_TIMEOUT
//   - FRONTDESK_VERIFY_TIMEOUT
//   - FRONTDESK_REFRESH_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FRONTDESK_API_BASE_URL")); v != "" {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return Config{}, ErrConfig
		}
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}

	for env, dst := range map[string]*string{
		"FRONTDESK_ROUTE_LOGIN":   &cfg.Routes.Login,
		"FRONTDESK_ROUTE_VERIFY":  &cfg.Routes.Verify,
		"FRONTDESK_ROUTE_REFRESH": &cfg.Routes.Refresh,
		"FRONTDESK_ROUTE_PROFILE": &cfg.Routes.Profile,
	} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		if !strings.HasPrefix(v, "/") {
			return Config{}, ErrConfig
		}
		*dst = v
	}

	if v := os.Getenv("FRONTDESK_LOGIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.LoginTimeout = d
	}

	if v := os.Getenv("FRONTDESK_VERIFY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.VerifyTimeout = d
	}

	if v := os.Getenv("FRONTDESK_REFRESH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTimeout = d
	}

	return cfg, nil
}
