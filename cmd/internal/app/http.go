package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frontdesk/cmd/internal/auth/session"
	"frontdesk/cmd/internal/notification"
	"frontdesk/cmd/internal/realtime"
)

// adminDeps are what the local admin API reads from.
type adminDeps struct {
	log      *slog.Logger
	cfg      Config
	session  interface{ Snapshot() session.Snapshot }
	sink     *notification.Sink
	realtime interface{ View() realtime.View }
	gatherer prometheus.Gatherer
	pool     *pgxpool.Pool
}

type notificationsResponse struct {
	Notifications []notification.Notification `json:"notifications"`
	Unread        int                         `json:"unread"`
	Capacity      int                         `json:"capacity"`
}

type markedResponse struct {
	Marked int `json:"marked"`
}

func registerHTTP(mux *http.ServeMux, d adminDeps) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// Ready means a staff member is signed in; the notification feed is empty otherwise.
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if st := d.session.Snapshot().Status; !st.HasToken() {
			http.Error(w, "session "+string(st), http.StatusServiceUnavailable)
			return
		}
		if d.pool != nil {
			if err := PingDB(r.Context(), d.pool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				d.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d.session.Snapshot())
	})

	mux.HandleFunc("GET /notifications", func(w http.ResponseWriter, r *http.Request) {
		list := d.sink.List()
		if r.URL.Query().Get("unread") == "1" {
			unread := list[:0:0]
			for _, n := range list {
				if !n.Read {
					unread = append(unread, n)
				}
			}
			list = unread
		}
		writeJSON(w, http.StatusOK, notificationsResponse{
			Notifications: list,
			Unread:        d.sink.UnreadCount(),
			Capacity:      d.sink.Capacity(),
		})
	})

	mux.HandleFunc("POST /notifications/read", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, markedResponse{Marked: d.sink.MarkAllRead()})
	})

	mux.HandleFunc("POST /notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := d.sink.Get(id); !ok {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		marked := 0
		if d.sink.MarkRead(id) {
			marked = 1
		}
		writeJSON(w, http.StatusOK, markedResponse{Marked: marked})
	})

	mux.HandleFunc("GET /realtime", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d.realtime.View())
	})

	if d.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
}

// adminHandler is the full admin API with its middleware chain.
func adminHandler(d adminDeps) http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, d)
	return WithSecurityHeaders(WithCORS(WithRequestLogging(mux, d.log), d.cfg, d.log))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
