package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/internal/auth/session"
	"frontdesk/cmd/internal/notification"
	"frontdesk/cmd/internal/realtime"
)

// logLine is the subset of a JSON log record the admin middleware tests read.
type logLine struct {
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`
	Class  string `json:"status_class"`
	Result string `json:"result"`
	Origin string `json:"origin"`
}

// recordingAdmin builds the admin handler with cfg and a JSON logger writing into the returned buffer.
func recordingAdmin(t *testing.T, cfg Config, status session.Status) (http.Handler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := adminHandler(adminDeps{
		log:     slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		cfg:     cfg,
		session: fakeSnapshot{snap: session.Snapshot{Status: status, User: &authapi.Profile{ID: "3", Role: "reception"}}},
		sink:    notification.NewSink(10),
		realtime: fakeView{view: realtime.View{
			State: realtime.StateDisconnected,
		}},
	})
	return h, &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var out []logLine
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var l logLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		out = append(out, l)
	}
	return out
}

func TestAdmin_RequestLogLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method, path string
		status       session.Status
		wantCode     int
		wantLevel    string
		wantResult   string
		wantClass    string
	}{
		{method: http.MethodGet, path: "/healthz", status: session.StatusUnauthenticated, wantCode: 200, wantLevel: "INFO", wantResult: "success", wantClass: "2xx"},
		{method: http.MethodGet, path: "/notifications", status: session.StatusAuthenticated, wantCode: 200, wantLevel: "INFO", wantResult: "success", wantClass: "2xx"},
		{method: http.MethodPost, path: "/notifications/missing/read", status: session.StatusAuthenticated, wantCode: 404, wantLevel: "WARN", wantResult: "client_error", wantClass: "4xx"},
		{method: http.MethodDelete, path: "/session", status: session.StatusAuthenticated, wantCode: 405, wantLevel: "WARN", wantResult: "client_error", wantClass: "4xx"},
		{method: http.MethodGet, path: "/readyz", status: session.StatusUnauthenticated, wantCode: 503, wantLevel: "ERROR", wantResult: "server_error", wantClass: "5xx"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			h, buf := recordingAdmin(t, Config{}, tt.status)
			rr := do(t, h, tt.method, tt.path)
			if rr.Code != tt.wantCode {
				t.Fatalf("%s %s status=%d want=%d", tt.method, tt.path, rr.Code, tt.wantCode)
			}

			lines := logLines(t, buf)
			if len(lines) != 1 || lines[0].Msg != "http.request" {
				t.Fatalf("log lines=%+v want one http.request", lines)
			}
			l := lines[0]
			if l.Level != tt.wantLevel || l.Result != tt.wantResult || l.Class != tt.wantClass {
				t.Fatalf("log level=%s result=%s class=%s want=%s/%s/%s",
					l.Level, l.Result, l.Class, tt.wantLevel, tt.wantResult, tt.wantClass)
			}
			if l.Method != tt.method || l.Path != tt.path || l.Status != tt.wantCode {
				t.Fatalf("log method=%s path=%s status=%d", l.Method, l.Path, l.Status)
			}
		})
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	for status, want := range map[int]string{99: "unknown", 204: "2xx", 301: "3xx", 429: "4xx", 599: "5xx", 600: "unknown"} {
		if got := statusClass(status); got != want {
			t.Fatalf("statusClass(%d)=%q want=%q", status, got, want)
		}
	}
}

func TestAdmin_CORS(t *testing.T) {
	t.Parallel()

	cfg := Config{
		CORSAllowedOrigins:   []string{"http://localhost:*", "https://desk.hotel.example"},
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,
	}

	tests := []struct {
		name        string
		method      string
		path        string
		origin      string
		preflight   bool
		wantCode    int
		wantAllowed string
	}{
		{name: "no origin", method: http.MethodGet, path: "/session", wantCode: 200},
		{name: "exact origin", method: http.MethodGet, path: "/notifications", origin: "https://desk.hotel.example", wantCode: 200, wantAllowed: "https://desk.hotel.example"},
		{name: "any localhost port", method: http.MethodGet, path: "/realtime", origin: "http://localhost:5173", wantCode: 200, wantAllowed: "http://localhost:5173"},
		{name: "preflight mark read", method: http.MethodOptions, path: "/notifications/read", origin: "https://desk.hotel.example", preflight: true, wantCode: 204, wantAllowed: "https://desk.hotel.example"},
		{name: "non numeric port", method: http.MethodGet, path: "/session", origin: "http://localhost:abc", wantCode: 403},
		{name: "foreign origin", method: http.MethodPost, path: "/notifications/read", origin: "https://evil.example", wantCode: 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, buf := recordingAdmin(t, cfg, session.StatusAuthenticated)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("%s %s origin=%q status=%d want=%d", tt.method, tt.path, tt.origin, rr.Code, tt.wantCode)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Fatalf("Access-Control-Allow-Origin=%q want=%q", got, tt.wantAllowed)
			}
			if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Fatalf("security headers missing on %s: %q", tt.name, got)
			}

			switch {
			case tt.preflight:
				if got := rr.Header().Get("Access-Control-Max-Age"); got != "600" {
					t.Fatalf("Access-Control-Max-Age=%q want=600", got)
				}
				if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
					t.Fatalf("Access-Control-Allow-Methods=%q want POST", got)
				}
			case tt.wantCode == http.StatusForbidden:
				lines := logLines(t, buf)
				if len(lines) != 1 || lines[0].Msg != "http.cors.reject" || lines[0].Origin != tt.origin {
					t.Fatalf("log lines=%+v want one http.cors.reject", lines)
				}
			case tt.wantAllowed != "":
				if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
					t.Fatalf("Access-Control-Allow-Credentials=%q want=true", got)
				}
			}
		})
	}
}
