package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunReplay_PagesThenAppends(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runReplay(context.Background(), &out, ReplayFlags{Messages: 52, Appends: 3, Pages: -1, JSON: true})
	if err != nil {
		t.Fatalf("runReplay: %v", err)
	}

	var steps []replayStep
	dec := json.NewDecoder(&out)
	for dec.More() {
		var s replayStep
		if err := dec.Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		steps = append(steps, s)
	}

	want := []struct {
		step     string
		kind     string
		messages int
		older    bool
	}{
		{"open", "snapshot", 20, true},
		{"older#1", "older", 12, true},
		{"older#2", "older", 20, false},
		// everything was revealed, so the first append hides the head again
		{"post#1", "reload", 20, true},
		{"post#2", "new", 1, true},
		{"post#3", "new", 1, true},
	}
	if len(steps) != len(want) {
		t.Fatalf("steps=%d want=%d (%+v)", len(steps), len(want), steps)
	}
	for i, w := range want {
		s := steps[i]
		if s.Step != w.step || s.Kind != w.kind || s.Messages != w.messages || s.HasOlder != w.older {
			t.Fatalf("step %d=%+v want=%+v", i, s, w)
		}
	}
	if got := steps[0].First; got != "Really important message no: 33" {
		t.Fatalf("open first=%q", got)
	}
	if got := steps[len(steps)-1].Total; got != 55 {
		t.Fatalf("final total=%d want=55", got)
	}
}

func TestRunReplay_Table(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := runReplay(context.Background(), &out, ReplayFlags{Messages: 5, Pages: 0}); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "STEP") || !strings.HasPrefix(lines[1], "open") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRunReplay_RejectsNegativeCounts(t *testing.T) {
	t.Parallel()

	if err := runReplay(context.Background(), &bytes.Buffer{}, ReplayFlags{Messages: -1}); err == nil {
		t.Fatalf("runReplay(-1) err=nil want error")
	}
}
