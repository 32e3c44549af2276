package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the session counters exported on /metrics.
type Metrics struct {
	logins    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	retries   prometheus.Counter
	logouts   *prometheus.CounterVec
	status    *prometheus.GaugeVec
}

// NewMetrics registers the session collectors with reg. A nil reg yields unregistered
// collectors, which is what tests that do not scrape want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts by outcome class.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Network refresh calls by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "session",
			Name:      "unauthorized_retries_total",
			Help:      "Authenticated requests retried after a 401.",
		}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "session",
			Name:      "logouts_total",
			Help:      "Session teardowns by reason.",
		}, []string{"reason"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "session",
			Name:      "status",
			Help:      "1 for the current session status, 0 otherwise.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.refreshes, m.retries, m.logouts, m.status)
	}
	return m
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) retry() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) logout(reason string) {
	if m != nil {
		m.logouts.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) setStatus(s Status) {
	if m == nil {
		return
	}
	for _, st := range []Status{StatusUnauthenticated, StatusRestoring, StatusAuthenticated, StatusRefreshing} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.status.WithLabelValues(string(st)).Set(v)
	}
}
