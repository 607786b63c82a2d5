package history

import (
	"fmt"
	"testing"
	"time"

	"roomlog/cmd/identity/ids"
)

var fixtureEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testRoom(t *testing.T) ids.ID {
	t.Helper()
	room, err := ids.NewID(ids.TableRoom, fixtureEpoch)
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	return room
}

// sequentialMessages builds n messages one millisecond apart, texts "Really important message no: 1".."n".
func sequentialMessages(t *testing.T, room ids.ID, n int) []Message {
	t.Helper()

	gen := ids.NewGenerator()
	author, err := ids.NewID(ids.TableAccount, fixtureEpoch)
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}

	msgs := make([]Message, 0, n)
	for i := range n {
		at := fixtureEpoch.Add(time.Duration(i) * time.Millisecond)
		id, err := gen.Next(at)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		msgs = append(msgs, Message{
			ID:     id,
			RoomID: room,
			Author: author,
			Body: &Body{
				Text:    fmt.Sprintf("Really important message no: %d", i+1),
				Created: at,
				Sent:    at,
			},
		})
	}
	return msgs
}

func appended(t *testing.T, n int) (*ChunkedHistory, []Message) {
	t.Helper()
	room := testRoom(t)
	msgs := sequentialMessages(t, room, n)
	h := New(room)
	for _, m := range msgs {
		h.Append(m)
	}
	return h, msgs
}

func batchOf(msgs []Message) map[ids.MessageID]Message {
	out := make(map[ids.MessageID]Message, len(msgs))
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out
}

const time1ms = time.Millisecond
