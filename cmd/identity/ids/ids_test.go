package ids

import (
	"encoding/json"
	"testing"
	"time"
)

func TestGenerator_StrictlyIncreasingWithinMillisecond(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev, err := g.Next(now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	for i := 0; i < 100; i++ {
		id, err := g.Next(now)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !prev.Before(id) {
			t.Fatalf("id %s not after %s", id, prev)
		}
		if id.Millis() != prev.Millis() {
			t.Fatalf("millis changed: %d vs %d", id.Millis(), prev.Millis())
		}
		prev = id
	}
}

func TestMessageID_TimeRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 7_000_000, time.UTC)
	id := MessageIDAt(ts, [10]byte{1})

	if !id.Time().Equal(ts) {
		t.Fatalf("Time()=%v want=%v", id.Time(), ts)
	}

	parsed, err := ParseMessageID(id.String())
	if err != nil {
		t.Fatalf("ParseMessageID: %v", err)
	}
	if parsed != id {
		t.Fatalf("parsed=%s want=%s", parsed, id)
	}
	if id.IsZero() || !(MessageID{}).IsZero() {
		t.Fatalf("IsZero mismatch")
	}
}

func TestMessageID_OrdersByTimestampFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := MessageIDAt(base, [10]byte{0xff, 0xff})
	newer := MessageIDAt(base.Add(time.Millisecond), [10]byte{})

	if older.Compare(newer) != -1 || newer.Compare(older) != 1 || older.Compare(older) != 0 {
		t.Fatalf("unexpected ordering")
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	room, err := NewID(TableRoom, time.Time{})
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}

	cases := []struct {
		in      string
		wantErr bool
	}{
		{in: room.String()},
		{in: "room", wantErr: true},
		{in: "planet:" + room.ULID.String(), wantErr: true},
		{in: "room:not-a-ulid", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseID(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseID(%q): %v", tc.in, err)
		}
		if got != room {
			t.Fatalf("ParseID(%q)=%v want=%v", tc.in, got, room)
		}
	}
}

func TestID_JSON(t *testing.T) {
	t.Parallel()

	id, err := NewID(TableAccount, time.Time{})
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}

	b, err := json.Marshal(struct {
		Author ID `json:"author"`
	}{Author: id})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out struct {
		Author ID `json:"author"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Author != id {
		t.Fatalf("author=%v want=%v", out.Author, id)
	}
}
