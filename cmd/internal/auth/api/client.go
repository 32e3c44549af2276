package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Routes are the endpoint paths relative to the base URL. They are deployment-specific.
type Routes struct {
	Login   string
	Verify  string
	Refresh string
	Profile string
}

// DefaultRoutes returns the paths used by the stock hotel backend.
func DefaultRoutes() Routes {
	return Routes{
		Login:   "/api/auth/login.php",
		Verify:  "/api/auth/verify_token.php",
		Refresh: "/api/auth/refresh_token.php",
		Profile: "/api/auth/get_profile.php",
	}
}

// Client is the auth endpoints client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	routes     Routes
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. It must not be a client that itself retries on 401.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRoutes overrides the endpoint paths. Empty fields keep their default.
func WithRoutes(r Routes) Option {
	return func(c *Client) {
		if r.Login != "" {
			c.routes.Login = r.Login
		}
		if r.Verify != "" {
			c.routes.Verify = r.Verify
		}
		if r.Refresh != "" {
			c.routes.Refresh = r.Refresh
		}
		if r.Profile != "" {
			c.routes.Profile = r.Profile
		}
	}
}

// WithLogger sets the logger used for request-level debug events.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates an auth API client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		routes:  DefaultRoutes(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges username/password for an access + refresh token pair.
// Bad credentials surface as a *StatusError with code 401.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	var env envelope
	if err := c.doRequest(ctx, http.MethodPost, c.routes.Login, "", loginRequest{Username: username, Password: password}, &env); err != nil {
		return Credentials{}, fmt.Errorf("authapi.Login: %w", err)
	}
	creds, err := credentialsFrom(env)
	if err != nil {
		return Credentials{}, fmt.Errorf("authapi.Login: %w", err)
	}
	return creds, nil
}

// VerifyToken asks the backend whether accessToken is still valid.
// An expired or revoked token surfaces as a *StatusError with code 401.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) (Profile, error) {
	var env envelope
	if err := c.doRequest(ctx, http.MethodGet, c.routes.Verify, accessToken, nil, &env); err != nil {
		return Profile{}, fmt.Errorf("authapi.VerifyToken: %w", err)
	}
	if !env.Success {
		return Profile{}, fmt.Errorf("authapi.VerifyToken: %w: %s", ErrRejected, env.reason())
	}
	if env.User == nil {
		return Profile{}, fmt.Errorf("authapi.VerifyToken: %w: missing user", ErrMalformedResponse)
	}
	return *env.User, nil
}

// RefreshToken rotates the token pair using refreshToken.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (Credentials, error) {
	var env envelope
	if err := c.doRequest(ctx, http.MethodPost, c.routes.Refresh, "", refreshRequest{RefreshToken: refreshToken}, &env); err != nil {
		return Credentials{}, fmt.Errorf("authapi.RefreshToken: %w", err)
	}
	if env.Success && env.RefreshToken == "" {
		// Some deployments rotate only the access token.
		env.RefreshToken = refreshToken
	}
	creds, err := credentialsFrom(env)
	if err != nil {
		return Credentials{}, fmt.Errorf("authapi.RefreshToken: %w", err)
	}
	return creds, nil
}

// GetProfile fetches the canonical profile for the holder of accessToken.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (Profile, error) {
	var env envelope
	if err := c.doRequest(ctx, http.MethodGet, c.routes.Profile, accessToken, nil, &env); err != nil {
		return Profile{}, fmt.Errorf("authapi.GetProfile: %w", err)
	}
	if !env.Success {
		return Profile{}, fmt.Errorf("authapi.GetProfile: %w: %s", ErrRejected, env.reason())
	}
	if env.User == nil {
		return Profile{}, fmt.Errorf("authapi.GetProfile: %w: missing user", ErrMalformedResponse)
	}
	return *env.User, nil
}

func credentialsFrom(env envelope) (Credentials, error) {
	if !env.Success {
		return Credentials{}, fmt.Errorf("%w: %s", ErrRejected, env.reason())
	}
	if env.Token == "" || env.RefreshToken == "" {
		return Credentials{}, fmt.Errorf("%w: missing token pair", ErrMalformedResponse)
	}
	return Credentials{
		AccessToken:  env.Token,
		RefreshToken: env.RefreshToken,
		User:         env.User,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, bearer string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("authapi.request.fail", "method", method, "path", path, "request_id", reqID, "err", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	c.log.Debug("authapi.request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return &StatusError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out != nil {
		return decodeJSON(resp.Body, out)
	}
	return nil
}
