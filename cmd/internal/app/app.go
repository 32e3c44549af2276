// Package app wires the front-desk agent: config, logging, the credential store, the Session,
// the realtime channel, the notification sink and the local admin API.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/internal/auth/credstore"
	"frontdesk/cmd/internal/auth/session"
	"frontdesk/cmd/internal/notification"
	"frontdesk/cmd/internal/realtime"
	"frontdesk/cmd/internal/tui"
)

// App owns the agent's service objects. Construct with New, release with Close.
type App struct {
	cfg Config
	log Logger
	reg *prometheus.Registry

	store  credstore.Store
	dbPool *pgxpool.Pool

	Session  *session.Manager
	Sink     *notification.Sink
	Realtime *realtime.Channel
}

// Option configures New.
type Option func(*options)

type options struct {
	transport realtime.Transport
	store     credstore.Store
}

// WithRealtimeTransport replaces the websocket transport.
func WithRealtimeTransport(t realtime.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithCredentialStore bypasses the configured backend.
func WithCredentialStore(s credstore.Store) Option {
	return func(o *options) { o.store = s }
}

// New constructs a fully wired App from config. Nothing runs until Serve.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, pool := o.store, (*pgxpool.Pool)(nil)
	if st == nil {
		var err error
		if st, pool, err = openCredentialStore(ctx, cfg, log); err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api := authapi.New(cfg.Session.APIBaseURL,
		authapi.WithRoutes(cfg.Session.Routes),
		authapi.WithLogger(log),
	)
	mgr := session.NewManager(cfg.Session, api, st,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
	)

	sink := notification.NewSink(cfg.NotificationCap,
		notification.WithLogger(log),
		notification.WithAlerters(alerters(cfg, log)...),
	)

	transport := o.transport
	if transport == nil {
		transport = &realtime.WSTransport{}
	}
	ch := realtime.NewChannel(cfg.Realtime, transport, mgr, sink,
		realtime.WithLogger(log),
		realtime.WithMetrics(realtime.NewMetrics(reg)),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		reg:      reg,
		store:    st,
		dbPool:   pool,
		Session:  mgr,
		Sink:     sink,
		Realtime: ch,
	}, nil
}

func alerters(cfg Config, log *slog.Logger) []notification.Alerter {
	var out []notification.Alerter
	if cfg.NotifyBell {
		out = append(out, notification.NewBellAlerter(os.Stderr))
	}
	if cfg.NotifyDesktop {
		d, err := notification.NewDesktopAlerter()
		if err != nil {
			log.Warn("notification.desktop.unavailable", "err", err)
		} else {
			out = append(out, d)
		}
	}
	return out
}

// Serve restores the Session, keeps the realtime channel in step with it and serves the admin
// API until ctx is done. When fg is non-nil it runs alongside and Serve returns with it.
func (a *App) Serve(ctx context.Context, fg func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := a.Realtime.Run(ctx); err != nil {
			a.log.Error("realtime.run.fail", "err", err)
		}
	})
	wg.Go(func() { a.followSession(ctx) })
	wg.Go(func() {
		snap, err := a.Session.RestoreSession(ctx)
		if err != nil {
			a.log.Warn("session.restore.fail", "err", err)
			return
		}
		a.log.Info("session.restored", "status", snap.Status)
	})

	errCh := make(chan error, 2)
	var srv *http.Server
	if a.cfg.AdminAddr != "" {
		srv = a.adminServer()
		go func() {
			a.log.Info("admin.start", "addr", a.cfg.AdminAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin api: %w", err)
			}
		}()
	}

	fgDone := make(chan error, 1)
	if fg != nil {
		go func() { fgDone <- fg(ctx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("agent.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("agent.fail", "err", runErr)
	case runErr = <-fgDone:
		a.log.Info("agent.stop", "reason", "foreground_done")
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("admin.shutdown.fail", "err", err)
		}
		shutdownCancel()
	}

	cancel()
	wg.Wait()
	a.log.Info("agent.stopped")
	return runErr
}

// sessionIdentity is what the realtime connection was opened for.
type sessionIdentity struct {
	generation uint64
	userID     string
	role       string
}

func identityOf(ev session.Event) sessionIdentity {
	id := sessionIdentity{generation: ev.Generation}
	if ev.User != nil {
		id.userID, id.role = string(ev.User.ID), ev.User.Role
	}
	return id
}

// followSession connects the realtime channel while the Session holds a token and tears it
// down on logout. A new Session or a role change replaces the connection.
func (a *App) followSession(ctx context.Context) {
	events, stop := a.Session.Watch()
	defer stop()

	var (
		bound   bool
		current sessionIdentity
	)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch {
			case ev.Status.HasToken():
				next := identityOf(ev)
				if bound && next != current {
					a.log.Info("realtime.resync", "reason", ev.Reason, "user_id", next.userID, "role", next.role)
					a.Realtime.Resync()
				} else {
					a.Realtime.Connect()
				}
				bound, current = true, next
			case ev.Status == session.StatusUnauthenticated:
				bound = false
				a.Realtime.Disconnect()
			}
		}
	}
}

func (a *App) adminServer() *http.Server {
	return &http.Server{
		Addr:              a.cfg.AdminAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
}

// Handler is the admin API.
func (a *App) Handler() http.Handler {
	return adminHandler(adminDeps{
		log:      a.log,
		cfg:      a.cfg,
		session:  a.Session,
		sink:     a.Sink,
		realtime: a.Realtime,
		gatherer: a.reg,
		pool:     a.dbPool,
	})
}

// Status is the header line of the notification screen.
func (a *App) Status() tui.Status {
	st := tui.Status{
		Session:  string(a.Session.Status()),
		Realtime: string(a.Realtime.State()),
	}
	if u := a.Session.User(); u != nil {
		st.User = cmp.Or(u.FullName, u.Username, string(u.ID))
		st.Role = u.Role
	}
	return st
}

// Close releases the credential store and the database pool, waiting for pending alerts.
func (a *App) Close() {
	a.Sink.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Error("credstore.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
