package feed

import (
	"testing"
	"time"

	v1 "roomlog/shared/contracts/feed/v1"
)

func TestRateLimiter_SessionBudget(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, 3, time.Second)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		typ  string
		at   time.Duration
		want bool
	}{
		{v1.TypeHello, 0, true},
		{v1.TypeRoomOpen, 100 * time.Millisecond, true},
		{v1.TypeRoomLoadOlder, 200 * time.Millisecond, true},
		{v1.TypeRoomLoadOlder, 300 * time.Millisecond, false},
		// hello leaves the window
		{v1.TypeRoomFetchSince, 1001 * time.Millisecond, true},
		{v1.TypeRoomFetchSince, 1050 * time.Millisecond, false},
		{v1.TypeRoomClose, 1201 * time.Millisecond, true},
	}
	for i, s := range steps {
		if got := rl.Allow(s.typ, t0.Add(s.at)); got != s.want {
			t.Fatalf("step %d: Allow(%s, +%v)=%v want=%v", i, s.typ, s.at, got, s.want)
		}
	}
}

func TestRateLimiter_WriteBudget(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 2, time.Second)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		typ  string
		at   time.Duration
		want bool
	}{
		{v1.TypeMessageSend, 0, true},
		{v1.TypeMessageEdit, 10 * time.Millisecond, true},
		{v1.TypeMessageDelete, 20 * time.Millisecond, false},
		{v1.TypeMessageSend, 30 * time.Millisecond, false},
		// reads keep their own headroom while writes are exhausted
		{v1.TypeRoomLoadOlder, 40 * time.Millisecond, true},
		{v1.TypeRoomFetchSince, 50 * time.Millisecond, true},
		// the first send leaves the window
		{v1.TypeMessageSend, 1001 * time.Millisecond, true},
		{v1.TypeMessageSend, 1002 * time.Millisecond, false},
	}
	for i, s := range steps {
		if got := rl.Allow(s.typ, t0.Add(s.at)); got != s.want {
			t.Fatalf("step %d: Allow(%s, +%v)=%v want=%v", i, s.typ, s.at, got, s.want)
		}
	}
	// rejected writes consumed nothing: edit, two reads and the last accepted send remain
	if got := len(rl.all.at); got != 4 {
		t.Fatalf("session budget holds %d events want=4", got)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0, 0)
	if rl.all.limit != defaultRateEvents || rl.writes.limit != defaultRateWrites || rl.window != defaultRateWindow {
		t.Fatalf("NewRateLimiter(0,0,0)=(%d,%d,%v) want=(%d,%d,%v)",
			rl.all.limit, rl.writes.limit, rl.window, defaultRateEvents, defaultRateWrites, defaultRateWindow)
	}

	if rl := NewRateLimiter(5, 50, time.Second); rl.writes.limit != 5 {
		t.Fatalf("write budget=%d want capped at 5", rl.writes.limit)
	}
}

func TestIsWrite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typ  string
		want bool
	}{
		{typ: v1.TypeHello, want: false},
		{typ: v1.TypeRoomOpen, want: false},
		{typ: v1.TypeRoomClose, want: false},
		{typ: v1.TypeRoomLoadOlder, want: false},
		{typ: v1.TypeRoomFetchSince, want: false},
		{typ: v1.TypeMessageSend, want: true},
		{typ: v1.TypeMessageEdit, want: true},
		{typ: v1.TypeMessageDelete, want: true},
		{typ: "unknown", want: false},
	}
	for _, tc := range cases {
		if got := isWrite(tc.typ); got != tc.want {
			t.Fatalf("isWrite(%q)=%v want=%v", tc.typ, got, tc.want)
		}
	}
}
