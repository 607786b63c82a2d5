package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MessageID is the ordering and lookup key of a message.
// The first 48 bits carry the creation time in milliseconds, so the natural
// byte order is creation order.
type MessageID ulid.ULID

// ParseMessageID parses the canonical 26-char representation.
func ParseMessageID(s string) (MessageID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return MessageID{}, fmt.Errorf("ids: parse message id %q: %w", s, err)
	}
	return MessageID(id), nil
}

// MessageIDAt builds an id from a millisecond timestamp and caller supplied entropy bytes.
// Intended for fixtures and replays where ids must be reproducible.
func MessageIDAt(ts time.Time, entropy [10]byte) MessageID {
	var id ulid.ULID
	_ = id.SetTime(ulid.Timestamp(ts))
	_ = id.SetEntropy(entropy[:])
	return MessageID(id)
}

// Compare returns -1, 0 or +1 comparing id with other.
func (id MessageID) Compare(other MessageID) int {
	return ulid.ULID(id).Compare(ulid.ULID(other))
}

// Before reports whether id sorts strictly before other.
func (id MessageID) Before(other MessageID) bool { return id.Compare(other) < 0 }

// Millis returns the embedded creation timestamp in Unix milliseconds.
func (id MessageID) Millis() uint64 { return ulid.ULID(id).Time() }

// Time returns the embedded creation timestamp.
func (id MessageID) Time() time.Time { return ulid.Time(id.Millis()) }

// IsZero reports whether id is the zero value (never produced by a Generator).
func (id MessageID) IsZero() bool { return id == MessageID{} }

func (id MessageID) String() string { return ulid.ULID(id).String() }

// ULID exposes the underlying ULID value.
func (id MessageID) ULID() ulid.ULID { return ulid.ULID(id) }

// MarshalText implements encoding.TextMarshaler.
func (id MessageID) MarshalText() ([]byte, error) {
	return ulid.ULID(id).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *MessageID) UnmarshalText(b []byte) error {
	var u ulid.ULID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = MessageID(u)
	return nil
}

// Generator hands out strictly increasing message ids.
// Ids minted within the same millisecond are ordered by monotonic entropy.
// Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator constructs a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next mints the id for a message created at now (zero means time.Now).
func (g *Generator) Next(now time.Time) (MessageID, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	if err != nil {
		return MessageID{}, fmt.Errorf("ids: mint message id: %w", err)
	}
	return MessageID(id), nil
}
