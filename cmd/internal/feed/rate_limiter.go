package feed

import (
	"sync"
	"time"

	v1 "roomlog/shared/contracts/feed/v1"
)

// RateLimiter budgets the envelopes one feed session may send inside a sliding window.
// Every envelope counts against the session budget; message writes (send, edit, delete)
// also count against a smaller write budget so a renderer that floods a room is cut off
// long before one that only pages history.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	all    slidingCount
	writes slidingCount
}

// slidingCount holds the timestamps of accepted events still inside the window, oldest first.
type slidingCount struct {
	limit int
	at    []time.Time
}

func (c *slidingCount) expire(cut time.Time) {
	i := 0
	for i < len(c.at) && !c.at[i].After(cut) {
		i++
	}
	c.at = c.at[i:]
}

func (c *slidingCount) full() bool { return len(c.at) >= c.limit }

// NewRateLimiter allows events envelopes, writes of them message writes, per window.
// Non-positive inputs fall back to the feed defaults; writes never exceed events.
func NewRateLimiter(events, writes int, window time.Duration) *RateLimiter {
	if events <= 0 {
		events = defaultRateEvents
	}
	if writes <= 0 {
		writes = defaultRateWrites
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		window: window,
		all:    slidingCount{limit: events},
		writes: slidingCount{limit: min(writes, events)},
	}
}

// isWrite reports whether envelopes of type typ change room content.
func isWrite(typ string) bool {
	switch typ {
	case v1.TypeMessageSend, v1.TypeMessageEdit, v1.TypeMessageDelete:
		return true
	default:
		return false
	}
}

// Allow reports whether an envelope of type typ received at now is within budget, and
// records it when it is. A rejected envelope consumes nothing.
func (r *RateLimiter) Allow(typ string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	r.all.expire(cut)
	r.writes.expire(cut)

	write := isWrite(typ)
	if r.all.full() || (write && r.writes.full()) {
		return false
	}
	r.all.at = append(r.all.at, now)
	if write {
		r.writes.at = append(r.writes.at, now)
	}
	return true
}
