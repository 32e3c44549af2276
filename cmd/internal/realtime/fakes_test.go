package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/internal/auth/session"
	v1 "frontdesk/contracts/realtime/v1"
)

// manualClock fires timers only on Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	slices.SortFunc(due, func(a, b *manualTimer) int { return a.at.Compare(b.at) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the remaining delay of every live timer, sorted.
func (c *manualClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at.Sub(c.now))
		}
	}
	slices.Sort(out)
	return out
}

type fakeConn struct {
	in     chan []byte
	writes chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	err    error
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	select {
	case c.writes <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(reason string) error {
	c.end(fmt.Errorf("%w: local close", ErrClosed), reason)
	return nil
}

func (c *fakeConn) end(err error, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.reason = reason
		c.mu.Unlock()
		close(c.closed)
	})
}

// PeerClose simulates the server closing the socket.
func (c *fakeConn) PeerClose() { c.end(fmt.Errorf("%w: status 1000", ErrClosed), "") }

// Fail simulates a transport error.
func (c *fakeConn) Fail(err error) { c.end(err, "") }

func (c *fakeConn) Push(t *testing.T, frame any) {
	t.Helper()
	b, ok := frame.([]byte)
	if !ok {
		var err error
		if b, err = json.Marshal(frame); err != nil {
			t.Fatalf("marshal frame: %v", err)
		}
	}
	c.in <- b
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// NextFrame returns the next frame the channel wrote.
func (c *fakeConn) NextFrame(t *testing.T) v1.Message {
	t.Helper()
	select {
	case b := <-c.writes:
		var m v1.Message
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("written frame %q: %v", b, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame written")
		return v1.Message{}
	}
}

type fakeTransport struct {
	mu     sync.Mutex
	dials  int
	tokens []string
	fail   error
	conns  chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 8)}
}

func (tr *fakeTransport) Dial(_ context.Context, _ string, token string) (Conn, error) {
	tr.mu.Lock()
	tr.dials++
	tr.tokens = append(tr.tokens, token)
	err := tr.fail
	tr.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	tr.conns <- c
	return c, nil
}

func (tr *fakeTransport) Dials() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.dials
}

func (tr *fakeTransport) SetFail(err error) {
	tr.mu.Lock()
	tr.fail = err
	tr.mu.Unlock()
}

func (tr *fakeTransport) Next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-tr.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no dial")
		return nil
	}
}

type fakeSession struct {
	mu     sync.Mutex
	status session.Status
	token  string
	user   *authapi.Profile
}

func newFakeSession(role string) *fakeSession {
	return &fakeSession{
		status: session.StatusAuthenticated,
		token:  "access-1",
		user:   &authapi.Profile{ID: "7", Role: role},
	}
}

func (s *fakeSession) Status() session.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) User() *authapi.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SwitchUser replaces the Session as if another user logged in.
func (s *fakeSession) SwitchUser(id, role, token string) {
	s.mu.Lock()
	s.status = session.StatusAuthenticated
	s.token = token
	s.user = &authapi.Profile{ID: authapi.UserID(id), Role: role}
	s.mu.Unlock()
}

func (s *fakeSession) LogOut() {
	s.mu.Lock()
	s.status = session.StatusUnauthenticated
	s.token = ""
	s.user = nil
	s.mu.Unlock()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
