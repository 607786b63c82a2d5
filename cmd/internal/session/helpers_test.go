package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustID(t *testing.T, table ids.Table) ids.ID {
	t.Helper()
	id, err := ids.NewID(table, testEpoch)
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	return id
}

type seededRoom struct {
	hub    *Hub
	store  *MemoryStore
	room   ids.ID
	author ids.ID
	msgs   []history.Message
}

// newSeededHub returns a hub over a MemoryStore holding n messages (1ms apart) in one room.
func newSeededHub(t *testing.T, n int, opts ...HubOption) seededRoom {
	t.Helper()

	gen := ids.NewGenerator()
	room := mustID(t, ids.TableRoom)
	author := mustID(t, ids.TableAccount)

	msgs, err := Seed(gen, room, author, n, testEpoch, time.Millisecond)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	st := NewMemoryStore()
	for _, m := range msgs {
		if err := st.AppendMessage(context.Background(), m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	opts = append([]HubOption{WithGenerator(gen)}, opts...)
	return seededRoom{
		hub:    NewHub(discardLogger(), st, opts...),
		store:  st,
		room:   room,
		author: author,
		msgs:   msgs,
	}
}

// recorder collects the updates delivered to a subscriber.
type recorder struct {
	updates []Update
}

func (r *recorder) fn() Subscriber {
	return func(up Update) { r.updates = append(r.updates, up) }
}

func (r *recorder) last(t *testing.T) Update {
	t.Helper()
	if len(r.updates) == 0 {
		t.Fatalf("no update delivered")
	}
	return r.updates[len(r.updates)-1]
}
