// Package realtimetest runs an in-process hotel push server for tests.
//
// It speaks the same JSON frames as the production server: it answers subscribe,
// unsubscribe and ping, and lets the test push notification and booking frames to the
// connections subscribed to a channel.
package realtimetest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	v1 "frontdesk/contracts/realtime/v1"
)

const (
	sendQueueSize = 64
	writeTimeout  = 2 * time.Second
)

// Server is a fake push server bound to a loopback address.
type Server struct {
	t   testing.TB
	srv *httptest.Server

	mu       sync.Mutex
	conns    map[*peer]struct{}
	received []v1.Message
	tokens   []string
	silent   bool
	token    string

	frameLimit int
	frameSpan  time.Duration

	connected chan struct{}
}

type peer struct {
	conn   *websocket.Conn
	send   chan []byte
	subs   map[string]struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithRequiredToken rejects handshakes whose bearer token is not token.
func WithRequiredToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithRateLimit closes, with StatusPolicyViolation, connections that send more than frames
// frames per span.
func WithRateLimit(frames int, span time.Duration) Option {
	return func(s *Server) {
		s.frameLimit = frames
		s.frameSpan = span
	}
}

// New starts a Server and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		t:         t,
		conns:     make(map[*peer]struct{}),
		connected: make(chan struct{}, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close drops every connection and stops the listener.
func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

// SetSilent stops (or resumes) answering pings.
func (s *Server) SetSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Connected signals once per accepted connection.
func (s *Server) Connected() <-chan struct{} { return s.connected }

// Received returns a copy of every frame the server read, in order.
func (s *Server) Received() []v1.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]v1.Message, len(s.received))
	copy(out, s.received)
	return out
}

// Tokens returns the bearer tokens presented by each handshake.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// Subscribers returns the number of connections subscribed to channel.
func (s *Server) Subscribers(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range s.conns {
		if _, ok := p.subs[channel]; ok {
			n++
		}
	}
	return n
}

// Push sends m to every connection subscribed to m.Channel and returns the delivery count.
func (s *Server) Push(m v1.Message) int {
	b, err := json.Marshal(m)
	if err != nil {
		s.t.Fatalf("realtimetest: marshal: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range s.conns {
		if _, ok := p.subs[m.Channel]; !ok {
			continue
		}
		if p.enqueue(b) {
			n++
		}
	}
	return n
}

// PushRaw sends data unmodified to every connection.
func (s *Server) PushRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.conns {
		p.enqueue(data)
	}
}

// Notify pushes a notification frame to channel.
func (s *Server) Notify(channel string, data v1.NotificationData) int {
	raw, err := json.Marshal(data)
	if err != nil {
		s.t.Fatalf("realtimetest: marshal: %v", err)
	}
	return s.Push(v1.Message{
		Type:      v1.TypeNotification,
		Channel:   channel,
		Data:      raw,
		Timestamp: v1.Timestamp{Time: time.Now().UTC()},
	})
}

// DropAll closes every connection with StatusGoingAway.
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.shutdown(websocket.StatusGoingAway, "server restart")
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if s.token != "" && token != s.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.t.Logf("realtimetest: accept: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	p := &peer{
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		subs:   make(map[string]struct{}),
		cancel: cancel,
	}

	s.mu.Lock()
	s.conns[p] = struct{}{}
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, p)
		s.mu.Unlock()
		p.shutdown(websocket.StatusNormalClosure, "bye")
	}()

	select {
	case s.connected <- struct{}{}:
	default:
	}

	go p.writeLoop(ctx)

	budget := newFrameBudget(s.frameLimit, s.frameSpan)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !budget.spend(time.Now()) {
			p.shutdown(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		m, err := v1.Decode(data)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, m)
		silent := s.silent
		var reply *v1.Message
		switch m.Type {
		case v1.TypeSubscribe:
			p.subs[m.Channel] = struct{}{}
			reply = &v1.Message{Type: v1.TypeSubscribed, Channel: m.Channel}
		case v1.TypeUnsubscribe:
			delete(p.subs, m.Channel)
			reply = &v1.Message{Type: v1.TypeUnsubscribed, Channel: m.Channel}
		case v1.TypePing:
			if !silent {
				reply = &v1.Message{Type: v1.TypePong}
			}
		}
		s.mu.Unlock()

		if reply != nil {
			b, _ := json.Marshal(reply)
			p.enqueue(b)
		}
	}
}

func (p *peer) enqueue(b []byte) bool {
	select {
	case p.send <- b:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := p.conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					p.shutdown(websocket.StatusAbnormalClosure, "write failed")
				}
				return
			}
		}
	}
}

func (p *peer) shutdown(code websocket.StatusCode, reason string) {
	p.once.Do(func() {
		_ = p.conn.Close(code, reason)
		p.cancel()
	})
}
