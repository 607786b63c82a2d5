package app

import (
	"time"

	"roomlog/cmd/internal/feed"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string

	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Rooms seeded into the in-memory store when no database is configured.
	DemoRooms    int
	DemoMessages int

	Feed feed.Config
}

// LoadConfig loads Config from ROOMLOG_* environment variables with defaults.
// Every setting that is present but invalid is reported in the returned error.
func LoadConfig() (Config, error) {
	return loadConfig(newEnvReader(nil))
}

func loadConfig(env *envReader) (Config, error) {
	cfg := Config{
		HTTPAddr: env.String("HTTP_ADDR", "0.0.0.0:8080"),

		LogLevel:  env.OneOf("LOG_LEVEL", "info", "debug", "info", "warn", "warning", "error"),
		LogFormat: env.OneOf("LOG_FORMAT", "json", "json", "pretty"),

		ReadHeaderTimeout: env.Duration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       env.Duration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      env.Duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       env.Duration("HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: env.Int("HTTP_MAX_HEADER_BYTES", 1<<20, 1),

		DatabaseURL: env.String("DATABASE_URL", ""),
		DBSchema:    env.String("DB_SCHEMA", "roomlog"),
		DBMaxConns:  env.Int32("DB_MAX_CONNS", 10),
		DBMinConns:  env.Int32("DB_MIN_CONNS", 0),

		ReadinessRequireDB: env.Bool("READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   env.CSV("CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: env.Bool("CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    env.Int("CORS_MAX_AGE", 600, 0),

		DemoRooms:    env.Int("DEMO_ROOMS", 2, 0),
		DemoMessages: env.Int("DEMO_MESSAGES", 52, 0),

		Feed: loadFeedConfig(env),
	}
	return cfg, env.Err()
}

func loadFeedConfig(env *envReader) feed.Config {
	d := feed.DefaultConfig()
	return feed.Config{
		// NOTE: this disables the websocket library's origin verification. Dev only.
		DevInsecure: env.Bool("FEED_DEV_INSECURE", false),

		OriginRequired: env.Bool("FEED_ORIGIN_REQUIRED", d.OriginRequired),
		AllowedOrigins: env.CSV("FEED_ALLOWED_ORIGINS", d.AllowedOrigins),

		WriteTimeout:    env.Duration("FEED_WRITE_TIMEOUT", d.WriteTimeout),
		ReadIdleTimeout: env.Duration("FEED_READ_IDLE_TIMEOUT", d.ReadIdleTimeout),
		SendQueueSize:   env.Int("FEED_SEND_QUEUE", d.SendQueueSize, 1),

		HeartbeatEvery:   env.Duration("FEED_HEARTBEAT_INTERVAL", d.HeartbeatEvery),
		HeartbeatTimeout: env.Duration("FEED_HEARTBEAT_TIMEOUT", d.HeartbeatTimeout),

		RateEvents: env.Int("FEED_RATE_EVENTS", d.RateEvents, 1),
		RateWrites: env.Int("FEED_RATE_WRITES", d.RateWrites, 1),
		RateWindow: env.Duration("FEED_RATE_WINDOW", d.RateWindow),
	}
}
