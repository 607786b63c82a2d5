package session

import (
	"context"
	"fmt"
	"time"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// Seed builds n demo messages for room, the first created at start and each next one step later.
// Ids come from gen, so they are strictly increasing even when step is zero.
func Seed(gen *ids.Generator, room, author ids.ID, n int, start time.Time, step time.Duration) ([]history.Message, error) {
	if gen == nil || room.IsZero() || author.IsZero() || n < 0 {
		return nil, fmt.Errorf("seed: %w", ErrInvalidInput)
	}

	out := make([]history.Message, 0, n)
	for i := range n {
		at := start.Add(time.Duration(i) * step).UTC()
		id, err := gen.Next(at)
		if err != nil {
			return nil, err
		}
		out = append(out, history.Message{
			ID:     id,
			RoomID: room,
			Author: author,
			Body: &history.Body{
				Text:           fmt.Sprintf("Really important message no: %d", i+1),
				Created:        at,
				Sent:           at,
				DeliveredToAll: true,
			},
		})
	}
	return out, nil
}

// SeedStore writes n demo messages for room into st.
func SeedStore(ctx context.Context, st Store, gen *ids.Generator, room, author ids.ID, n int, start time.Time, step time.Duration) error {
	msgs, err := Seed(gen, room, author, n, start, step)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := st.AppendMessage(ctx, m); err != nil {
			return fmt.Errorf("seed room %s: %w", room, err)
		}
	}
	return nil
}
