package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var jsonOut bytes.Buffer
	NewLogger(&jsonOut, "info", "json").Info("session.login.ok", "username", "rosa")
	var rec map[string]any
	if err := json.Unmarshal(jsonOut.Bytes(), &rec); err != nil {
		t.Fatalf("json output %q: %v", jsonOut.String(), err)
	}
	if rec["msg"] != "session.login.ok" || rec["username"] != "rosa" {
		t.Fatalf("json record=%v", rec)
	}

	var prettyOut bytes.Buffer
	log := NewLogger(&prettyOut, "warn", "pretty")
	log.Info("dropped")
	log.Warn("realtime.pong.timeout")
	out := prettyOut.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "realtime.pong.timeout") {
		t.Fatalf("pretty output=%q", out)
	}
	if stripANSI(out) != out {
		t.Fatalf("pretty output to a buffer must be uncolored: %q", out)
	}
}
