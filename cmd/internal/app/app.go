// Package app wires the roomlog server runtime: config, logging, storage, HTTP routes and
// the render feed.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/feed"
	"roomlog/cmd/internal/session"
)

// App is the roomlog server runtime: it owns the HTTP server, the room hub and the feed gateway.
type App struct {
	cfg Config
	log Logger

	store  session.Store
	dbPool *pgxpool.Pool

	reg *prometheus.Registry
	hub *session.Hub
	gw  *feed.Gateway

	// rooms preloaded at startup (demo rooms in memory mode)
	rooms []ids.ID
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, dbPool, rooms, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	hub := session.NewHub(log, st, session.WithMetrics(session.NewMetrics(reg)))
	if err := hub.Preload(ctx, rooms); err != nil {
		closeStore(st, dbPool)
		return nil, fmt.Errorf("preload rooms: %w", err)
	}

	gw := feed.NewGateway(log, hub, cfg.Feed, feed.WithMetrics(feed.NewMetrics(reg)))

	return &App{
		cfg:    cfg,
		log:    log,
		store:  st,
		dbPool: dbPool,
		reg:    reg,
		hub:    hub,
		gw:     gw,
		rooms:  rooms,
	}, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.hub, a.gw, a.reg)

	return WithSecurityHeaders(WithCORS(WithRequestLogging(mux, a.log), a.cfg, a.log))
}

// Rooms returns the rooms opened at startup.
func (a *App) Rooms() []ids.ID { return a.rooms }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbPool != nil,
		"rooms", len(a.rooms),
		"feed_url", wsBaseURL(base)+"/feed",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		closeStore(a.store, a.dbPool)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.Close()
	a.log.Info("server.stopped")
	return nil
}

// Close releases the store and the database pool.
func (a *App) Close() {
	closeStore(a.store, a.dbPool)
}

func closeStore(st session.Store, pool *pgxpool.Pool) {
	if st != nil {
		_ = st.Close()
	}
	// app owns the pool; PostgresStore.Close is a no-op
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and an in-memory store seeded with
// demo rooms. It returns the rooms to preload.
func newStore(ctx context.Context, cfg Config, log Logger) (session.Store, *pgxpool.Pool, []ids.ID, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		st := session.NewMemoryStore()
		rooms, err := seedDemoRooms(ctx, st, cfg, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, nil, rooms, nil
	}

	st, pool, err := openPostgresStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return st, pool, nil, nil
}

func seedDemoRooms(ctx context.Context, st session.Store, cfg Config, log Logger) ([]ids.ID, error) {
	now := time.Now().UTC()
	gen := ids.NewGenerator()

	author, err := ids.NewID(ids.TableAccount, now)
	if err != nil {
		return nil, err
	}

	rooms := make([]ids.ID, 0, cfg.DemoRooms)
	for range cfg.DemoRooms {
		room, err := ids.NewID(ids.TableRoom, now)
		if err != nil {
			return nil, err
		}
		start := now.Add(-time.Duration(cfg.DemoMessages) * time.Minute)
		if err := session.SeedStore(ctx, st, gen, room, author, cfg.DemoMessages, start, time.Minute); err != nil {
			return nil, err
		}
		log.Info("demo.room.seeded", "room_id", room.String(), "messages", cfg.DemoMessages)
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// runtimeBaseURL turns a listen address into a URL clients on this host can reach.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) form.
func wsBaseURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "ws://" + strings.TrimPrefix(base, "//")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}
