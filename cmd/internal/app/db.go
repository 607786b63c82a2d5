package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roomlog/cmd/internal/session"
)

const (
	dbApplicationName = "roomlog"
	dbOpenPingTimeout = 3 * time.Second
)

// poolConfig parses DatabaseURL and applies the room store pool limits.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	pcfg.MinConns = max(cfg.DBMinConns, 0)
	if pcfg.MinConns > pcfg.MaxConns {
		return nil, fmt.Errorf("db pool: min conns %d exceeds max conns %d", pcfg.MinConns, pcfg.MaxConns)
	}

	// shows up in pg_stat_activity next to the room_messages queries
	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = dbApplicationName
	}
	return pcfg, nil
}

// openPostgresStore connects the pool and prepares the room_messages schema.
// The returned pool is owned by the caller; on error nothing is left open.
func openPostgresStore(ctx context.Context, cfg Config, log Logger) (*session.PostgresStore, *pgxpool.Pool, error) {
	pcfg, err := poolConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("db pool: %w", err)
	}

	st, err := func() (*session.PostgresStore, error) {
		if err := PingDB(ctx, pool, dbOpenPingTimeout); err != nil {
			return nil, fmt.Errorf("db ping: %w", err)
		}
		st, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return st, nil
	}()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("db.pool.open",
		"schema", cfg.DBSchema,
		"max_conns", pcfg.MaxConns,
		"min_conns", pcfg.MinConns,
	)
	return st, pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
