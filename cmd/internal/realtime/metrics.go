package realtime

import (
	"github.com/prometheus/client_golang/prometheus"

	v1 "frontdesk/contracts/realtime/v1"
)

// Metrics are the realtime collectors exported on /metrics.
type Metrics struct {
	connState    *prometheus.GaugeVec
	connects     prometheus.Counter
	disconnects  *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
	frames       *prometheus.CounterVec
	malformed    prometheus.Counter
	pings        prometheus.Counter
	pongTimeouts prometheus.Counter
	sendDropped  prometheus.Counter
}

// NewMetrics registers the realtime collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontdesk", Subsystem: "realtime", Name: name, Help: help,
		})
	}
	m := &Metrics{
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "realtime",
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		connects: counter("connects_total", "Connections opened."),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "realtime",
			Name:      "disconnects_total",
			Help:      "Connections ended, by cause.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Reconnect timers by outcome.",
		}, []string{"result"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "realtime",
			Name:      "frames_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),
		malformed:    counter("malformed_frames_total", "Inbound frames dropped as malformed."),
		pings:        counter("pings_total", "Heartbeat pings sent."),
		pongTimeouts: counter("pong_timeouts_total", "Connections closed for a missing pong."),
		sendDropped:  counter("send_dropped_total", "Outbound frames dropped on a full queue."),
	}
	if reg != nil {
		reg.MustRegister(m.connState, m.connects, m.disconnects, m.reconnects, m.frames,
			m.malformed, m.pings, m.pongTimeouts, m.sendDropped)
	}
	return m
}

func (m *Metrics) state(s State) {
	if m == nil {
		return
	}
	for _, st := range []State{StateDisconnected, StateConnecting, StateConnected} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.connState.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) disconnected(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconnect(result string) {
	if m != nil {
		m.reconnects.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) frame(typ string) {
	if m == nil {
		return
	}
	switch typ {
	case v1.TypeNotification, v1.TypeSubscribed, v1.TypeUnsubscribed, v1.TypePong, v1.TypeBookingConfirmed:
	default:
		typ = "unknown"
	}
	m.frames.WithLabelValues(typ).Inc()
}

func (m *Metrics) malformedFrame() {
	if m != nil {
		m.malformed.Inc()
	}
}

func (m *Metrics) ping() {
	if m != nil {
		m.pings.Inc()
	}
}

func (m *Metrics) pongTimeout() {
	if m != nil {
		m.pongTimeouts.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.sendDropped.Inc()
	}
}
