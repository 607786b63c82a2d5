package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Serve is the CLI entrypoint used by cmd/roomlog.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Serve(ctx context.Context, cfg Config) error {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("server.init.fail", "err", err)
		return err
	}

	return a.Run(ctx)
}
