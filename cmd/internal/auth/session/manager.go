package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/internal/auth/credstore"
	"frontdesk/cmd/security/sealer"
)

const refreshFlight = "refresh"

// Manager owns the single Session of a client process.
//
// All state transitions take mu. Writes to the credential store happen under mu before the
// in-memory fields change, so a reader never sees a token that is not yet persisted. Tokens are
// written in one Put per transition; a failed Put leaves the previous Session in place.
type Manager struct {
	cfg       Config
	api       API
	store     credstore.Store
	verifier  *Verifier
	refresher *Refresher
	base      http.RoundTripper
	log       *slog.Logger
	metrics   *Metrics

	sf             singleflight.Group
	refreshWaiters atomic.Int64

	mu      sync.RWMutex
	status  Status
	access  string
	refresh string
	user    *authapi.Profile
	// gen advances whenever the Session is replaced or destroyed. A refresh that started under
	// an older generation discards its result.
	gen uint64

	watchMu  sync.Mutex
	watchers map[uint64]chan Event
	watchSeq uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics attaches collectors created by NewMetrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithBaseTransport sets the RoundTripper that Transport wraps. Defaults to http.DefaultTransport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		if rt != nil {
			m.base = rt
		}
	}
}

// NewManager constructs a Manager in the unauthenticated state.
//
// api must not route through the Manager's own Transport: refresh calls have to reach the
// backend directly.
func NewManager(cfg Config, api API, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		api:      api,
		store:    store,
		base:     http.DefaultTransport,
		log:      slog.New(slog.DiscardHandler),
		status:   StatusUnauthenticated,
		watchers: make(map[uint64]chan Event),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.verifier = NewVerifier(api, cfg.VerifyTimeout, m.log)
	m.refresher = NewRefresher(api, cfg.RefreshTimeout, m.log)
	m.metrics.setStatus(m.status)
	return m
}

// Status returns the current Session status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// User returns a copy of the current profile, or nil.
func (m *Manager) User() *authapi.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneProfile(m.user)
}

// AccessToken returns the current access token. It is empty unless the Session is
// authenticated or refreshing.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// Snapshot returns a token-free view of the Session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:          m.status,
		User:            cloneProfile(m.user),
		HasRefreshToken: m.refresh != "",
	}
	if m.access != "" {
		s.AccessFingerprint = sealer.Fingerprint(m.access)
		s.AccessExpiresAt = tokenExpiry(m.access)
	}
	return s
}

// Watch subscribes to Session events. The current state is delivered first. Slow watchers lose
// the oldest pending events, never the newest. Call the returned func to unsubscribe.
func (m *Manager) Watch() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	m.mu.RLock()
	m.watchMu.Lock()
	id := m.watchSeq
	m.watchSeq++
	m.watchers[id] = ch
	ch <- Event{Status: m.status, User: cloneProfile(m.user), Reason: "watch", Generation: m.gen}
	m.watchMu.Unlock()
	m.mu.RUnlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.watchMu.Lock()
			defer m.watchMu.Unlock()
			delete(m.watchers, id)
			close(ch)
		})
	}
}

func (m *Manager) publishLocked(reason string) {
	ev := Event{Status: m.status, User: cloneProfile(m.user), Reason: reason, Generation: m.gen}
	m.metrics.setStatus(m.status)

	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Login authenticates with username/password and returns the merged profile.
//
// The call is bounded by Config.LoginTimeout. Failures are returned as *LoginError and leave the
// Session unchanged.
func (m *Manager) Login(ctx context.Context, username, password string) (authapi.Profile, error) {
	if m.cfg.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.LoginTimeout)
		defer cancel()
	}
	username = strings.TrimSpace(username)

	creds, err := m.api.Login(ctx, username, password)
	if err != nil {
		kind := Classify(err, true)
		m.metrics.login(resultLabel(kind))
		m.log.Warn("session.login.fail", "username", username, "class", kind.Error(), "err", err)
		return authapi.Profile{}, &LoginError{Kind: kind, Err: err}
	}

	cached := m.loadCachedUser(ctx)
	server := creds.User
	if p, err := m.api.GetProfile(ctx, creds.AccessToken); err == nil {
		server = &p
	} else {
		m.log.Warn("session.profile.fail", "class", Classify(err, false).Error(), "err", err)
	}
	user := mergeUser(server, cached)

	m.mu.Lock()
	err = m.commitLocked(ctx, creds.AccessToken, creds.RefreshToken, user, true, "login")
	m.mu.Unlock()
	if err != nil {
		m.metrics.login("persist_failed")
		return authapi.Profile{}, &LoginError{Kind: ErrRequestFailed, Err: err}
	}

	m.metrics.login("ok")
	m.log.Info("session.login.ok", "username", username, "token", sealer.Fingerprint(creds.AccessToken))
	if user == nil {
		return authapi.Profile{}, nil
	}
	return *user, nil
}

// Logout destroys the Session and clears every persisted credential. It is valid in any state.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.clearLocked(ctx, "logout"); err != nil {
		return fmt.Errorf("session.Logout: %w", err)
	}
	return nil
}

// RestoreSession rebuilds the Session from the credential store. It runs once at startup.
//
// With a persisted access token it verifies the token, falling back to refresh when the backend
// reports it invalid. A failed refresh destroys the Session and clears the store. Without a
// persisted token only the cached profile is loaded and the Session stays unauthenticated.
func (m *Manager) RestoreSession(ctx context.Context) (Snapshot, error) {
	access, ok, err := m.store.Get(ctx, credstore.KeyAccessToken)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("session.RestoreSession: %w", err)
	}
	cached := m.loadCachedUser(ctx)

	if !ok || access == "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.status == StatusUnauthenticated && cached != nil {
			m.user = cached
			m.publishLocked("restore_cached")
		}
		m.log.Info("session.restore.none", "cached_user", cached != nil)
		return m.snapshotLocked(), nil
	}

	refresh, _, err := m.store.Get(ctx, credstore.KeyRefreshToken)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("session.RestoreSession: %w", err)
	}

	m.mu.Lock()
	if m.status != StatusUnauthenticated {
		defer m.mu.Unlock()
		return m.snapshotLocked(), nil
	}
	m.status = StatusRestoring
	m.user = cached
	gen := m.gen
	m.publishLocked("restore")
	m.mu.Unlock()

	if v := m.verifier.Verify(ctx, access); v.Valid {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen || m.status != StatusRestoring {
			return m.snapshotLocked(), ErrNotAuthenticated
		}
		if err := m.commitLocked(ctx, access, refresh, mergeUser(v.User, cached), true, "restore"); err != nil {
			m.status = StatusUnauthenticated
			m.publishLocked("restore_failed")
			return m.snapshotLocked(), fmt.Errorf("session.RestoreSession: %w", err)
		}
		m.log.Info("session.restore.ok", "token", sealer.Fingerprint(access), "assumed", v.Indeterminate)
		return m.snapshotLocked(), nil
	}

	creds, rerr := m.refresher.Refresh(ctx, refresh)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.status != StatusRestoring {
		m.metrics.refresh("stale")
		return m.snapshotLocked(), ErrNotAuthenticated
	}
	if rerr != nil {
		m.metrics.refresh("fail")
		_ = m.clearLocked(ctx, "restore_failed")
		return m.snapshotLocked(), fmt.Errorf("session.RestoreSession: %w", rerr)
	}
	m.metrics.refresh("ok")
	if err := m.commitLocked(ctx, creds.AccessToken, creds.RefreshToken, mergeUser(creds.User, cached), true, "restore"); err != nil {
		_ = m.clearLocked(ctx, "restore_failed")
		return m.snapshotLocked(), fmt.Errorf("session.RestoreSession: %w", err)
	}
	m.log.Info("session.restore.refreshed", "token", sealer.Fingerprint(creds.AccessToken))
	return m.snapshotLocked(), nil
}

// RefreshAccessToken rotates the token pair and returns the new access token.
//
// Concurrent callers share one network call. Any failure destroys the Session. A refresh that
// was in flight when the Session was logged out or replaced returns ErrNotAuthenticated and
// leaves the new Session untouched. ctx only bounds the caller's wait; the shared call keeps
// running for the other waiters.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	m.refreshWaiters.Add(1)
	defer m.refreshWaiters.Add(-1)

	ch := m.sf.DoChan(refreshFlight, func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.status.HasToken() {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if m.refresh == "" {
		defer m.mu.Unlock()
		_ = m.clearLocked(ctx, "refresh_failed")
		return "", ErrNoRefreshToken
	}
	gen, rt := m.gen, m.refresh
	m.status = StatusRefreshing
	m.publishLocked("refresh_start")
	m.mu.Unlock()

	creds, err := m.refresher.Refresh(ctx, rt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		m.metrics.refresh("stale")
		m.log.Info("session.refresh.discarded", "refresh", sealer.Fingerprint(rt))
		return "", ErrNotAuthenticated
	}
	if err != nil {
		m.metrics.refresh("fail")
		_ = m.clearLocked(ctx, "refresh_failed")
		return "", err
	}
	if err := m.commitLocked(ctx, creds.AccessToken, creds.RefreshToken, mergeUser(creds.User, m.user), false, "refresh"); err != nil {
		m.metrics.refresh("persist_failed")
		_ = m.clearLocked(ctx, "refresh_failed")
		return "", err
	}
	m.metrics.refresh("ok")
	m.log.Info("session.refresh.ok", "token", sealer.Fingerprint(creds.AccessToken))
	return creds.AccessToken, nil
}

// UpdateUser replaces the profile locally. When the Session holds a token the profile is
// persisted, and a non-empty p.Token becomes the new access token.
func (m *Manager) UpdateUser(ctx context.Context, p authapi.Profile) error {
	token := p.Token
	p.Token = ""

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.HasToken() {
		enc, err := encodeProfile(&p)
		if err != nil {
			return fmt.Errorf("session.UpdateUser: %w", err)
		}
		values := map[credstore.Key]string{credstore.KeyUser: enc}
		if token != "" {
			values[credstore.KeyAccessToken] = token
		}
		if err := m.store.Put(ctx, values); err != nil {
			return fmt.Errorf("session.UpdateUser: %w", err)
		}
		if token != "" {
			m.access = token
		}
	}
	m.user = &p
	m.publishLocked("update_user")
	return nil
}

// logoutUnauthorized destroys the Session after a retried request was rejected again.
func (m *Manager) logoutUnauthorized(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusUnauthenticated {
		return
	}
	if err := m.clearLocked(ctx, "unauthorized"); err != nil {
		m.log.Warn("session.clear.fail", "err", err)
	}
}

// commitLocked persists and installs a token pair. newSession advances the generation.
func (m *Manager) commitLocked(ctx context.Context, access, refresh string, user *authapi.Profile, newSession bool, reason string) error {
	values := map[credstore.Key]string{
		credstore.KeyAccessToken:  access,
		credstore.KeyRefreshToken: refresh,
	}
	if user != nil {
		enc, err := encodeProfile(user)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
		values[credstore.KeyUser] = enc
	}
	if err := m.store.Put(ctx, values); err != nil {
		m.log.Error("session.persist.fail", "op", reason, "err", err)
		return fmt.Errorf("persist credentials: %w", err)
	}

	if newSession {
		m.gen++
	}
	m.access, m.refresh = access, refresh
	m.user = cloneProfile(user)
	m.status = StatusAuthenticated
	m.publishLocked(reason)
	return nil
}

// clearLocked destroys the Session. The in-memory state is reset even when the store fails.
func (m *Manager) clearLocked(ctx context.Context, reason string) error {
	m.gen++
	m.sf.Forget(refreshFlight)
	m.access, m.refresh, m.user = "", "", nil
	m.status = StatusUnauthenticated
	m.metrics.logout(reason)
	m.publishLocked(reason)
	m.log.Info("session.logout", "reason", reason)
	return credstore.Clear(context.WithoutCancel(ctx), m.store)
}

func (m *Manager) loadCachedUser(ctx context.Context) *authapi.Profile {
	raw, ok, err := m.store.Get(ctx, credstore.KeyUser)
	if err != nil {
		m.log.Warn("session.cache.read_fail", "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	p, err := decodeProfile(raw)
	if err != nil {
		m.log.Warn("session.cache.decode_fail", "err", err)
		return nil
	}
	return p
}

func mergeUser(server, cached *authapi.Profile) *authapi.Profile {
	if server == nil {
		return cloneProfile(cached)
	}
	p := MergeProfile(*server, cached)
	return &p
}

func resultLabel(kind error) string {
	return strings.ReplaceAll(kind.Error(), " ", "_")
}
