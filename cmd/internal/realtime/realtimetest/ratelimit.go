package realtimetest

import "time"

const (
	defaultFrameBudget = 50
	defaultBudgetSpan  = 10 * time.Second
)

// frameBudget caps the frames one client connection may send per span. It is only touched by
// the connection's read loop.
type frameBudget struct {
	limit int
	span  time.Duration
	start time.Time
	used  int
}

func newFrameBudget(limit int, span time.Duration) *frameBudget {
	if limit <= 0 {
		limit = defaultFrameBudget
	}
	if span <= 0 {
		span = defaultBudgetSpan
	}
	return &frameBudget{limit: limit, span: span}
}

// spend records a frame read at now and reports whether it fits the budget.
func (b *frameBudget) spend(now time.Time) bool {
	if b.start.IsZero() || now.Sub(b.start) >= b.span {
		b.start, b.used = now, 0
	}
	b.used++
	return b.used <= b.limit
}
