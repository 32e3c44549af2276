package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"frontdesk/cmd/identity/ids"
)

// DefaultCapacity is the number of notifications kept before the oldest is evicted.
const DefaultCapacity = 50

const alertTimeout = 5 * time.Second

// Notification is a single pushed event.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message"`
	Priority  string          `json:"priority,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Read      bool            `json:"read"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Sink is the bounded notification list. It is safe for concurrent use.
type Sink struct {
	capacity int
	now      func() time.Time
	log      *slog.Logger
	alerters []Alerter

	mu    sync.RWMutex
	items []Notification // newest first

	subMu sync.Mutex
	subs  map[uint64]chan struct{}
	seq   uint64

	alerts sync.WaitGroup
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAlerters registers alerters invoked for every added notification.
func WithAlerters(a ...Alerter) Option {
	return func(s *Sink) {
		for _, al := range a {
			if al != nil {
				s.alerters = append(s.alerters, al)
			}
		}
	}
}

// WithClock overrides the time source used for missing timestamps and IDs.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSink returns an empty Sink. capacity <= 0 uses DefaultCapacity.
func NewSink(capacity int, opts ...Option) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Sink{
		capacity: capacity,
		now:      time.Now,
		log:      slog.New(slog.DiscardHandler),
		subs:     make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Capacity returns the maximum number of kept notifications.
func (s *Sink) Capacity() int { return s.capacity }

// Add stores n at the front and evicts the oldest entries beyond capacity. A missing ID or
// timestamp is filled in; Read is always reset. The stored value is returned.
func (s *Sink) Add(n Notification) Notification {
	now := s.now()
	if n.Timestamp.IsZero() {
		n.Timestamp = now
	}
	if n.ID == "" {
		id, err := ids.New(now)
		if err != nil {
			// Entropy exhaustion; fall back to a timestamp-only id.
			id = now.UTC().Format("20060102T150405.000000000")
			s.log.Warn("notification.id.fail", "err", err)
		}
		n.ID = id
	}
	n.Read = false

	s.mu.Lock()
	items := make([]Notification, 0, min(len(s.items)+1, s.capacity))
	items = append(items, n)
	for _, it := range s.items {
		if len(items) == s.capacity {
			break
		}
		items = append(items, it)
	}
	s.items = items
	s.mu.Unlock()

	s.log.Debug("notification.added", "id", n.ID, "type", n.Type, "channel", n.Channel)
	s.changed()
	s.alert(n)
	return n
}

// List returns a copy of all notifications, newest first.
func (s *Sink) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the notification with id.
func (s *Sink) Get(id string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return Notification{}, false
}

// Len returns the number of stored notifications.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// MarkRead marks one notification read. It reports whether id was found.
func (s *Sink) MarkRead(id string) bool {
	s.mu.Lock()
	found, changed := false, false
	for i := range s.items {
		if s.items[i].ID == id {
			found = true
			changed = !s.items[i].Read
			s.items[i].Read = true
			break
		}
	}
	s.mu.Unlock()

	if changed {
		s.changed()
	}
	return found
}

// MarkAllRead marks every notification read and returns how many changed.
func (s *Sink) MarkAllRead() int {
	s.mu.Lock()
	n := 0
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.changed()
	}
	return n
}

// UnreadCount returns the number of unread notifications.
func (s *Sink) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Clear removes every notification.
func (s *Sink) Clear() {
	s.mu.Lock()
	had := len(s.items) > 0
	s.items = nil
	s.mu.Unlock()

	if had {
		s.changed()
	}
}

// Changes returns a channel that receives after every mutation. Bursts coalesce into one
// receive. Call the returned func to unsubscribe.
func (s *Sink) Changes() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.seq
	s.seq++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Wait blocks until every in-flight alert has finished.
func (s *Sink) Wait() { s.alerts.Wait() }

func (s *Sink) changed() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Sink) alert(n Notification) {
	for _, a := range s.alerters {
		s.alerts.Add(1)
		go func() {
			defer s.alerts.Done()
			ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
			defer cancel()
			if err := a.Alert(ctx, n); err != nil {
				s.log.Debug("notification.alert.fail", "alerter", a.Name(), "id", n.ID, "err", err)
			}
		}()
	}
}
