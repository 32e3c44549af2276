package realtimetest

import (
	"testing"
	"time"
)

func TestFrameBudget(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name   string
		limit  int
		span   time.Duration
		frames []time.Duration // offsets from t0
		want   []bool
	}{
		{name: "within limit", limit: 3, span: time.Second, frames: []time.Duration{0, 1, 2}, want: []bool{true, true, true}},
		{name: "over limit", limit: 2, span: time.Second, frames: []time.Duration{0, 1, 2}, want: []bool{true, true, false}},
		{name: "span resets", limit: 1, span: time.Second, frames: []time.Duration{0, 500 * time.Millisecond, time.Second}, want: []bool{true, false, true}},
		{name: "defaults", limit: 0, span: 0, frames: []time.Duration{0, time.Millisecond}, want: []bool{true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFrameBudget(tt.limit, tt.span)
			for i, off := range tt.frames {
				if got := b.spend(t0.Add(off)); got != tt.want[i] {
					t.Fatalf("spend(frame %d at %v)=%v want=%v", i, off, got, tt.want[i])
				}
			}
		})
	}
}
