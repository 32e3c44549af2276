// Package authtest provides an in-process fake of the hotel auth backend for tests.
//
// The fake issues HS256 JWT access tokens and opaque refresh tokens, rotates the pair on
// refresh, counts calls per endpoint, and can inject faults (status codes, malformed bodies,
// delays, a blocking gate on refresh).
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	authapi "frontdesk/cmd/internal/auth/api"
)

// ResourcePath is a protected endpoint that returns 200 for a live access token and 401 otherwise.
const ResourcePath = "/api/resource.php"

// Endpoint identifies one of the fake's routes.
type Endpoint string

const (
	EndpointLogin    Endpoint = "login"
	EndpointVerify   Endpoint = "verify"
	EndpointRefresh  Endpoint = "refresh"
	EndpointProfile  Endpoint = "profile"
	EndpointResource Endpoint = "resource"
)

// Fault overrides the normal behavior of an endpoint.
// Status > 0 short-circuits with that status and Body. Delay is applied before anything else.
type Fault struct {
	Status int
	Body   string
	Delay  time.Duration
}

type account struct {
	password string
	profile  authapi.Profile
}

// Server is the fake backend.
type Server struct {
	srv    *httptest.Server
	routes authapi.Routes
	key    []byte

	// AccessTTL is the lifetime written into the exp claim of minted access tokens.
	AccessTTL time.Duration

	mu       sync.Mutex
	accounts map[string]*account
	access   map[string]string // access token -> username
	refresh  map[string]string // refresh token -> username
	faults   map[Endpoint]Fault
	calls    map[Endpoint]int
	gate     chan struct{}
	entered  chan struct{}
	omitRT   bool
}

// New starts a fake backend and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		routes:    authapi.DefaultRoutes(),
		key:       []byte("authtest-signing-key"),
		AccessTTL: 15 * time.Minute,
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		faults:    make(map[Endpoint]Fault),
		calls:     make(map[Endpoint]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.routes.Login, s.wrap(EndpointLogin, s.handleLogin))
	mux.HandleFunc(s.routes.Verify, s.wrap(EndpointVerify, s.handleVerify))
	mux.HandleFunc(s.routes.Refresh, s.wrap(EndpointRefresh, s.handleRefresh))
	mux.HandleFunc(s.routes.Profile, s.wrap(EndpointProfile, s.handleProfile))
	mux.HandleFunc(ResourcePath, s.wrap(EndpointResource, s.handleResource))

	s.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.ReleaseRefresh()
		s.srv.Close()
	})
	return s
}

// URL is the base URL to hand to authapi.New.
func (s *Server) URL() string { return s.srv.URL }

// Client returns an HTTP client wired to the fake.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// AddUser registers an account.
func (s *Server) AddUser(username, password string, p authapi.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Username == "" {
		p.Username = username
	}
	s.accounts[username] = &account{password: password, profile: p}
}

// SetProfile replaces the server-side profile of username.
func (s *Server) SetProfile(username string, p authapi.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.profile = p
	}
}

// Issue mints a token pair for username without going through login.
func (s *Server) Issue(username string) authapi.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username)
}

// Expire invalidates an access token; its refresh token stays usable.
func (s *Server) Expire(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, accessToken)
}

// ExpireAll invalidates every access token.
func (s *Server) ExpireAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates a refresh token.
func (s *Server) RevokeRefresh(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, refreshToken)
}

// OmitRefreshTokenOnRefresh makes refresh responses carry only the access token.
func (s *Server) OmitRefreshTokenOnRefresh(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitRT = v
}

// SetFault installs f for endpoint. A zero Fault clears it.
func (s *Server) SetFault(e Endpoint, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == (Fault{}) {
		delete(s.faults, e)
		return
	}
	s.faults[e] = f
}

// Calls returns how many requests endpoint e has received.
func (s *Server) Calls(e Endpoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[e]
}

// BlockRefresh makes refresh requests wait until ReleaseRefresh. The returned channel receives
// once per refresh request that reaches the gate.
func (s *Server) BlockRefresh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan struct{}, 64)
	return s.entered
}

// ReleaseRefresh opens the gate installed by BlockRefresh.
func (s *Server) ReleaseRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// ParseAccess validates a minted access token and returns its subject.
func (s *Server) ParseAccess(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Server) issueLocked(username string) authapi.Credentials {
	a := s.accounts[username]
	var p authapi.Profile
	if a != nil {
		p = a.profile
	}

	now := time.Now()
	claims := struct {
		Role string `json:"role,omitempty"`
		jwt.RegisteredClaims
	}{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		panic(err)
	}
	refresh := uuid.NewString()

	s.access[access] = username
	s.refresh[refresh] = username

	return authapi.Credentials{AccessToken: access, RefreshToken: refresh, User: &p}
}

type response struct {
	Success      bool             `json:"success"`
	Token        string           `json:"token,omitempty"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	User         *authapi.Profile `json:"user,omitempty"`
	Error        string           `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) wrap(e Endpoint, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[e]++
		f := s.faults[e]
		s.mu.Unlock()

		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.Status > 0 {
			w.WriteHeader(f.Status)
			_, _ = w.Write([]byte(f.Body))
			return
		}
		next(w, r)
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func (s *Server) userForAccess(r *http.Request) (string, bool) {
	tok := bearer(r)
	if tok == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.access[tok]
	return u, ok
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request"})
		return
	}

	s.mu.Lock()
	a, ok := s.accounts[req.Username]
	if !ok || a.password != req.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, response{Error: "Invalid credentials"})
		return
	}
	creds := s.issueLocked(req.Username)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, response{Success: true, Token: creds.AccessToken, RefreshToken: creds.RefreshToken, User: creds.User})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	username, ok := s.userForAccess(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{Error: "Invalid token"})
		return
	}
	s.mu.Lock()
	p := s.accounts[username].profile
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, response{Success: true, User: &p})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.handleVerify(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request"})
		return
	}

	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	username, ok := s.refresh[req.RefreshToken]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, response{Error: "Invalid refresh token"})
		return
	}
	delete(s.refresh, req.RefreshToken)
	creds := s.issueLocked(username)
	omit := s.omitRT
	if omit {
		// Keep the presented refresh token valid since the client will reuse it.
		delete(s.refresh, creds.RefreshToken)
		s.refresh[req.RefreshToken] = username
		creds.RefreshToken = ""
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, response{Success: true, Token: creds.AccessToken, RefreshToken: creds.RefreshToken, User: creds.User})
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	username, ok := s.userForAccess(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{Error: "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": username})
}
