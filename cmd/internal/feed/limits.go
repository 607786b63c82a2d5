package feed

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Consecutive failed pings before the connection is dropped.
	maxPingFailures = 3

	closeGrace = 1 * time.Second
)

// Defaults used by DefaultConfig.
const (
	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute

	defaultHeartbeatInterval = 25 * time.Second
	defaultHeartbeatTimeout  = 5 * time.Second

	// Per-session rate limits: envelopes per window, message writes among them.
	defaultRateEvents = 120
	defaultRateWrites = 30
	defaultRateWindow = 10 * time.Second

	// Origin is required by default and only localhost is allowed (secure-by-default for dev).
	defaultOriginRequired = true
)

var defaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
