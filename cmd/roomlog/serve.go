package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"roomlog/cmd/internal/app"
)

// ServeFlags override the environment configuration.
type ServeFlags struct {
	cfg app.Config
	// invalid ROOMLOG_* settings, reported when the server is started
	envErr error
}

func NewServeFlags() *ServeFlags {
	cfg, err := app.LoadConfig()
	return &ServeFlags{cfg: cfg, envErr: err}
}

func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.cfg.HTTPAddr, "addr", f.cfg.HTTPAddr, "listen address (ROOMLOG_HTTP_ADDR)")
	fs.StringVar(&f.cfg.LogLevel, "log-level", f.cfg.LogLevel, "log level: debug, info, warn, error (ROOMLOG_LOG_LEVEL)")
	fs.StringVar(&f.cfg.LogFormat, "log-format", f.cfg.LogFormat, "log format: json or pretty (ROOMLOG_LOG_FORMAT)")
	fs.StringVar(&f.cfg.DatabaseURL, "database-url", f.cfg.DatabaseURL, "postgres URL; in-memory demo store when empty (ROOMLOG_DATABASE_URL)")
	fs.StringVar(&f.cfg.DBSchema, "db-schema", f.cfg.DBSchema, "postgres schema for the message table (ROOMLOG_DB_SCHEMA)")
	fs.IntVar(&f.cfg.DemoRooms, "demo-rooms", f.cfg.DemoRooms, "rooms seeded in memory mode (ROOMLOG_DEMO_ROOMS)")
	fs.IntVar(&f.cfg.DemoMessages, "demo-messages", f.cfg.DemoMessages, "messages per seeded room (ROOMLOG_DEMO_MESSAGES)")
	fs.StringSliceVar(&f.cfg.Feed.AllowedOrigins, "feed-origins", f.cfg.Feed.AllowedOrigins, "origins allowed to open the feed (ROOMLOG_FEED_ALLOWED_ORIGINS)")
}

func init() {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the render feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.envErr != nil {
				return fmt.Errorf("invalid environment: %w", f.envErr)
			}
			return app.Serve(cmd.Context(), f.cfg)
		},
	}

	f.BindFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)

	// bare "roomlog" serves too
	f.BindFlags(rootCmd.Flags())
	rootCmd.RunE = cmd.RunE
}
