package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/internal/auth/session"
	"frontdesk/cmd/internal/notification"
	v1 "frontdesk/contracts/realtime/v1"
)

// ErrRunning is returned by a second call to Run.
var ErrRunning = errors.New("realtime: channel already running")

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// EventKind classifies socket events.
type EventKind uint8

const (
	EventOpened EventKind = iota + 1
	EventMessage
	EventClosed
	EventErrored
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is a socket callback. Seq identifies the connection attempt it belongs to; events of
// an attempt that is no longer current are ignored.
type Event struct {
	Kind EventKind
	Seq  uint64
	Conn Conn
	Data []byte
	Err  error
}

// SessionView is what the channel reads from the Session. *session.Manager implements it.
type SessionView interface {
	Status() session.Status
	AccessToken() string
	User() *authapi.Profile
}

// Sink receives dispatched notifications. *notification.Sink implements it.
type Sink interface {
	Add(n notification.Notification) notification.Notification
}

// View is a read-only snapshot of the channel for UIs and the admin API.
type View struct {
	State            State     `json:"state"`
	URL              string    `json:"url"`
	ConnID           string    `json:"conn_id,omitempty"`
	Subscriptions    []string  `json:"subscriptions"`
	Acknowledged     []string  `json:"acknowledged"`
	ConnectedAt      time.Time `json:"connected_at,omitzero"`
	LastMessageAt    time.Time `json:"last_message_at,omitzero"`
	ReconnectPending bool      `json:"reconnect_pending"`
}

type timerKind uint8

const (
	timerHeartbeat timerKind = iota + 1
	timerPong
	timerReconnect
)

type timerFired struct {
	kind  timerKind
	token uint64
}

type cmdConnect struct{}

type cmdResync struct{}

type cmdDisconnect struct {
	reason string
	done   chan struct{}
}

type cmdSubscription struct {
	channel   string
	subscribe bool
	done      chan bool
}

// Channel is the realtime push connection of one Session.
type Channel struct {
	cfg       Config
	transport Transport
	session   SessionView
	sink      Sink
	clock     Clock
	log       *slog.Logger
	metrics   *Metrics

	inbox   chan any
	stopped chan struct{}
	running atomic.Bool

	// Owned by the loop goroutine.
	runCtx        context.Context
	want          bool
	state         State
	seq           uint64
	conn          Conn
	connID        string
	out           chan []byte
	subs          map[string]struct{}
	acked         map[string]struct{}
	timerSeq      uint64
	heartbeat     pendingTimer
	pong          pendingTimer
	reconnect     pendingTimer
	awaitingPong  bool
	connectedAt   time.Time
	lastMessageAt time.Time

	viewMu sync.RWMutex
	view   View
}

type pendingTimer struct {
	t     Timer
	token uint64
}

func (p *pendingTimer) stop() {
	if p.t != nil {
		p.t.Stop()
	}
	*p = pendingTimer{}
}

func (p *pendingTimer) active() bool { return p.t != nil }

// Option configures a Channel.
type Option func(*Channel)

// WithClock injects the timer source.
func WithClock(clock Clock) Option {
	return func(c *Channel) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches collectors created by NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// NewChannel constructs a disconnected Channel. Run must be running for commands to take effect.
func NewChannel(cfg Config, transport Transport, sess SessionView, sink Sink, opts ...Option) *Channel {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}

	c := &Channel{
		cfg:       cfg,
		transport: transport,
		session:   sess,
		sink:      sink,
		clock:     systemClock{},
		log:       slog.New(slog.DiscardHandler),
		inbox:     make(chan any, inboxSize),
		stopped:   make(chan struct{}),
		state:     StateDisconnected,
		subs:      make(map[string]struct{}),
		acked:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.publishView()
	return c
}

// Run drives the event loop until ctx is done, then closes any open connection.
func (c *Channel) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	c.runCtx = ctx
	defer close(c.stopped)
	defer func() {
		c.want = false
		c.teardown("shutdown")
		c.publishView()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-c.inbox:
			c.step(in)
			c.publishView()
		}
	}
}

// Connect asks the channel to stay connected while the Session is authenticated.
func (c *Channel) Connect() {
	c.post(cmdConnect{})
}

// Resync replaces the connection with a fresh one for the current Session. Subscriptions are
// rebuilt from the current role. It connects when the channel is idle.
func (c *Channel) Resync() {
	c.post(cmdResync{})
}

// Disconnect closes the connection, clears the subscriptions and cancels any pending
// reconnect. It returns once the loop has applied it.
func (c *Channel) Disconnect() {
	done := make(chan struct{})
	if !c.post(cmdDisconnect{reason: "disconnect", done: done}) {
		return
	}
	select {
	case <-done:
	case <-c.stopped:
	}
}

// Subscribe sends a subscribe frame and adds channel to the local set. It is a no-op returning
// false when not connected. The local set is not reconciled with server acknowledgments.
func (c *Channel) Subscribe(channel string) bool {
	return c.subscription(channel, true)
}

// Unsubscribe is the inverse of Subscribe.
func (c *Channel) Unsubscribe(channel string) bool {
	return c.subscription(channel, false)
}

func (c *Channel) subscription(channel string, subscribe bool) bool {
	done := make(chan bool, 1)
	if !c.post(cmdSubscription{channel: channel, subscribe: subscribe, done: done}) {
		return false
	}
	select {
	case ok := <-done:
		return ok
	case <-c.stopped:
		return false
	}
}

// View returns the current snapshot.
func (c *Channel) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	v := c.view
	v.Subscriptions = slices.Clone(v.Subscriptions)
	v.Acknowledged = slices.Clone(v.Acknowledged)
	return v
}

// State returns the connection state.
func (c *Channel) State() State { return c.View().State }

// Subscriptions returns the local (optimistic) subscription set, sorted.
func (c *Channel) Subscriptions() []string { return c.View().Subscriptions }

// Acknowledged returns the channels the server confirmed, sorted.
func (c *Channel) Acknowledged() []string { return c.View().Acknowledged }

func (c *Channel) post(in any) bool {
	select {
	case c.inbox <- in:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Channel) step(in any) {
	switch v := in.(type) {
	case Event:
		c.handleEvent(v)
	case cmdConnect:
		c.want = true
		c.dial("connect")
	case cmdResync:
		c.want = true
		c.teardown("resync")
		c.dial("resync")
	case cmdDisconnect:
		c.want = false
		c.teardown(v.reason)
		close(v.done)
	case cmdSubscription:
		v.done <- c.setSubscription(v.channel, v.subscribe)
	case timerFired:
		c.handleTimer(v)
	}
}

func (c *Channel) handleEvent(ev Event) {
	if ev.Seq != c.seq {
		if ev.Kind == EventOpened && ev.Conn != nil {
			closeAsync(ev.Conn, "stale")
		}
		return
	}

	switch ev.Kind {
	case EventOpened:
		c.onOpened(ev.Conn)
	case EventMessage:
		c.onMessage(ev.Data)
	case EventClosed, EventErrored:
		c.lose(ev.Kind, ev.Err)
	}
}

func (c *Channel) dial(trigger string) {
	if c.state != StateDisconnected {
		return
	}
	if !c.session.Status().HasToken() {
		c.log.Debug("realtime.connect.skipped", "trigger", trigger, "reason", "not authenticated")
		return
	}

	c.seq++
	seq := c.seq
	c.state = StateConnecting
	c.connID = newConnID(c.clock.Now())
	c.metrics.state(c.state)
	c.log.Info("realtime.connecting", "conn_id", c.connID, "url", c.cfg.URL, "trigger", trigger)

	ctx, token, url, timeout := c.runCtx, c.session.AccessToken(), c.cfg.URL, c.cfg.DialTimeout
	go func() {
		dctx, cancel := context.WithTimeout(ctx, timeout)
		conn, err := c.transport.Dial(dctx, url, token)
		cancel()
		if err != nil {
			c.post(Event{Kind: EventErrored, Seq: seq, Err: err})
			return
		}
		if !c.post(Event{Kind: EventOpened, Seq: seq, Conn: conn}) {
			closeAsync(conn, "shutdown")
			return
		}
		c.readLoop(ctx, seq, conn)
	}()
}

func (c *Channel) readLoop(ctx context.Context, seq uint64, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			kind := EventErrored
			if errors.Is(err, ErrClosed) {
				kind = EventClosed
			}
			c.post(Event{Kind: kind, Seq: seq, Err: err})
			return
		}
		if !c.post(Event{Kind: EventMessage, Seq: seq, Data: data}) {
			return
		}
	}
}

func (c *Channel) writeLoop(conn Conn, out <-chan []byte) {
	for data := range out {
		ctx, cancel := context.WithTimeout(c.runCtx, c.cfg.WriteTimeout)
		err := conn.Write(ctx, data)
		cancel()
		if err != nil {
			c.log.Info("realtime.write.fail", "err", err)
			_ = conn.Close("write failed")
			return
		}
	}
}

func (c *Channel) onOpened(conn Conn) {
	if !c.want || !c.session.Status().HasToken() {
		c.seq++
		c.state = StateDisconnected
		c.metrics.state(c.state)
		closeAsync(conn, "not authenticated")
		return
	}

	c.state = StateConnected
	c.conn = conn
	c.connectedAt = c.clock.Now()
	c.out = make(chan []byte, sendQueueSize)
	go c.writeLoop(conn, c.out)

	role := ""
	if u := c.session.User(); u != nil {
		role = u.Role
	}
	c.subs = make(map[string]struct{})
	c.acked = make(map[string]struct{})
	channels := v1.ChannelsForRole(role)
	for _, ch := range channels {
		c.subs[ch] = struct{}{}
		c.send(v1.Subscribe(ch))
	}
	c.armHeartbeat()

	c.metrics.connected()
	c.metrics.state(c.state)
	c.log.Info("realtime.connected", "conn_id", c.connID, "role", role, "channels", channels)
}

func (c *Channel) onMessage(data []byte) {
	c.lastMessageAt = c.clock.Now()
	m, err := v1.Decode(data)
	if err != nil {
		c.metrics.malformedFrame()
		c.log.Warn("realtime.frame.malformed", "conn_id", c.connID, "bytes", len(data), "err", err)
		return
	}
	c.dispatch(m)
}

// lose handles the end of the current connection and schedules the reconnect.
func (c *Channel) lose(kind EventKind, err error) {
	if c.state == StateDisconnected {
		return
	}
	if c.conn != nil {
		closeAsync(c.conn, "lost")
	}
	c.dropConn()
	c.seq++
	c.state = StateDisconnected

	c.metrics.disconnected(kind.String())
	c.metrics.state(c.state)
	c.log.Info("realtime.closed", "conn_id", c.connID, "kind", kind.String(), "err", err)

	if c.want {
		c.scheduleReconnect()
	}
}

// teardown closes the connection without scheduling a reconnect.
func (c *Channel) teardown(reason string) {
	c.reconnect.stop()
	if c.conn != nil {
		closeAsync(c.conn, reason)
		c.log.Info("realtime.teardown", "conn_id", c.connID, "reason", reason)
	}
	c.dropConn()
	c.seq++
	if c.state != StateDisconnected {
		c.state = StateDisconnected
		c.metrics.disconnected(reason)
		c.metrics.state(c.state)
	}
}

func (c *Channel) dropConn() {
	c.heartbeat.stop()
	c.pong.stop()
	c.awaitingPong = false
	if c.out != nil {
		close(c.out)
		c.out = nil
	}
	c.conn = nil
	c.subs = make(map[string]struct{})
	c.acked = make(map[string]struct{})
	c.connectedAt = time.Time{}
}

func (c *Channel) scheduleReconnect() {
	if c.reconnect.active() {
		return
	}
	c.reconnect = c.arm(c.cfg.ReconnectDelay, timerReconnect)
	c.metrics.reconnect("scheduled")
	c.log.Info("realtime.reconnect.scheduled", "delay", c.cfg.ReconnectDelay.String())
}

func (c *Channel) armHeartbeat() {
	c.heartbeat.stop()
	c.heartbeat = c.arm(c.cfg.HeartbeatInterval, timerHeartbeat)
}

func (c *Channel) arm(d time.Duration, kind timerKind) pendingTimer {
	c.timerSeq++
	token := c.timerSeq
	t := c.clock.AfterFunc(d, func() {
		c.post(timerFired{kind: kind, token: token})
	})
	return pendingTimer{t: t, token: token}
}

func (c *Channel) handleTimer(tf timerFired) {
	switch tf.kind {
	case timerReconnect:
		if tf.token != c.reconnect.token {
			return
		}
		c.reconnect = pendingTimer{}
		if !c.want {
			return
		}
		// The timer was armed under an authentication state that may no longer hold.
		if !c.session.Status().HasToken() {
			c.metrics.reconnect("skipped")
			c.log.Info("realtime.reconnect.skipped", "reason", "not authenticated")
			return
		}
		c.metrics.reconnect("attempted")
		c.dial("reconnect")

	case timerHeartbeat:
		if tf.token != c.heartbeat.token || c.state != StateConnected {
			return
		}
		c.send(v1.Ping())
		c.metrics.ping()
		if c.cfg.PongTimeout > 0 && !c.awaitingPong {
			c.awaitingPong = true
			c.pong = c.arm(c.cfg.PongTimeout, timerPong)
		}
		c.armHeartbeat()

	case timerPong:
		if tf.token != c.pong.token || !c.awaitingPong || c.state != StateConnected {
			return
		}
		c.metrics.pongTimeout()
		c.log.Warn("realtime.pong.timeout", "conn_id", c.connID, "timeout", c.cfg.PongTimeout.String())
		c.lose(EventErrored, errors.New("pong timeout"))
	}
}

func (c *Channel) setSubscription(channel string, subscribe bool) bool {
	channel = strings.TrimSpace(channel)
	if channel == "" || c.state != StateConnected {
		return false
	}
	if subscribe {
		c.send(v1.Subscribe(channel))
		c.subs[channel] = struct{}{}
	} else {
		c.send(v1.Unsubscribe(channel))
		delete(c.subs, channel)
		delete(c.acked, channel)
	}
	return true
}

func (c *Channel) send(m v1.Message) {
	if c.out == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		c.log.Error("realtime.encode.fail", "type", m.Type, "err", err)
		return
	}
	select {
	case c.out <- b:
	default:
		c.metrics.dropped()
		c.log.Warn("realtime.send.dropped", "conn_id", c.connID, "type", m.Type)
	}
}

func (c *Channel) publishView() {
	v := View{
		State:            c.state,
		URL:              c.cfg.URL,
		Subscriptions:    sortedKeys(c.subs),
		Acknowledged:     sortedKeys(c.acked),
		ConnectedAt:      c.connectedAt,
		LastMessageAt:    c.lastMessageAt,
		ReconnectPending: c.reconnect.active(),
	}
	if c.state != StateDisconnected {
		v.ConnID = c.connID
	}
	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func closeAsync(conn Conn, reason string) {
	go func() { _ = conn.Close(reason) }()
}
