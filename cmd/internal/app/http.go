package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roomlog/cmd/internal/feed"
	"roomlog/cmd/internal/session"
)

// roomSummary is one entry of GET /rooms.
type roomSummary struct {
	RoomID        string    `json:"room_id"`
	Messages      int       `json:"messages"`
	Subscribers   int       `json:"subscribers"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	LastAt        time.Time `json:"last_at,omitzero"`
	Preview       string    `json:"preview,omitempty"`
}

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	hub *session.Hub,
	gw *feed.Gateway,
	reg *prometheus.Registry,
) {
	dbEnabled := dbPool != nil

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]roomSummary, 0)
		for _, id := range hub.Rooms() {
			room, ok := hub.Room(id)
			if !ok {
				continue
			}
			s := roomSummary{
				RoomID:      id.String(),
				Messages:    room.Len(),
				Subscribers: room.Subscribers(),
			}
			if last, preview, ok := room.Preview(); ok {
				s.LastMessageID = last.ID.String()
				s.LastAt = last.ID.Time().UTC()
				s.Preview = preview
			}
			out = append(out, s)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Info("rooms.encode.fail", "err", err)
		}
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.Handle("/feed", gw)
}
