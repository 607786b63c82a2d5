package ids

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Table tags which kind of record an ID points at.
type Table uint8

const (
	TableAccount Table = iota + 1
	TableRoom
	TableMsg
	TableComment
	TableReaction
)

var tableNames = map[Table]string{
	TableAccount:  "account",
	TableRoom:     "room",
	TableMsg:      "msg",
	TableComment:  "msg_comment",
	TableReaction: "reaction",
}

func (t Table) String() string {
	if n, ok := tableNames[t]; ok {
		return n
	}
	return fmt.Sprintf("table(%d)", uint8(t))
}

// ParseTable maps a wire name back to its Table.
func ParseTable(s string) (Table, error) {
	for t, n := range tableNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("ids: unknown table %q", s)
}

// ID is a table-tagged ULID, rendered as "table:ulid" (e.g. "room:01J...").
// IDs are comparable and usable as map keys.
type ID struct {
	Table Table
	ULID  ulid.ULID
}

// NewID mints a fresh ID for table.
func NewID(t Table, now time.Time) (ID, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	u, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return ID{}, err
	}
	return ID{Table: t, ULID: u}, nil
}

// ParseID parses the "table:ulid" form.
func ParseID(s string) (ID, error) {
	table, raw, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ID{}, errors.New("ids: missing table separator")
	}
	t, err := ParseTable(table)
	if err != nil {
		return ID{}, err
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return ID{}, fmt.Errorf("ids: parse %q: %w", s, err)
	}
	return ID{Table: t, ULID: u}, nil
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id == ID{} }

func (id ID) String() string {
	return id.Table.String() + ":" + id.ULID.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
