package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// MemoryStore is a dev-only Store used when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[ids.ID]*memRoom
}

type memRoom struct {
	byID  map[ids.MessageID]history.Message
	order []ids.MessageID // append order, used to bound memory
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[ids.ID]*memRoom)}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// LoadRoom returns a copy of the room's messages. Unknown rooms are empty.
func (s *MemoryStore) LoadRoom(ctx context.Context, room ids.ID) (map[ids.MessageID]history.Message, error) {
	if room.IsZero() {
		return nil, fmt.Errorf("load room: %w", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[room]
	if r == nil {
		return map[ids.MessageID]history.Message{}, nil
	}
	out := make(map[ids.MessageID]history.Message, len(r.byID))
	for id, m := range r.byID {
		out[id] = m
	}
	return out, nil
}

// AppendMessage stores m. Appending an id twice keeps the first record.
func (s *MemoryStore) AppendMessage(ctx context.Context, m history.Message) error {
	if m.RoomID.IsZero() || m.ID.IsZero() {
		return fmt.Errorf("append message: %w", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[m.RoomID]
	if r == nil {
		r = &memRoom{byID: make(map[ids.MessageID]history.Message)}
		s.rooms[m.RoomID] = r
	}
	if _, ok := r.byID[m.ID]; ok {
		return nil
	}
	r.byID[m.ID] = m
	r.order = append(r.order, m.ID)

	// Bound memory to avoid unbounded growth in dev.
	if len(r.order) > memMaxMessagesPerRoom {
		drop := len(r.order) - memMaxMessagesPerRoom
		for _, id := range r.order[:drop] {
			delete(r.byID, id)
		}
		r.order = slices.Clone(r.order[drop:])
	}
	return nil
}

// UpdateMessage replaces the record stored under m.ID.
func (s *MemoryStore) UpdateMessage(ctx context.Context, m history.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[m.RoomID]
	if r == nil {
		return fmt.Errorf("update message %s: %w", m.ID, ErrUnknownMessage)
	}
	if _, ok := r.byID[m.ID]; !ok {
		return fmt.Errorf("update message %s: %w", m.ID, ErrUnknownMessage)
	}
	r.byID[m.ID] = m
	return nil
}

// DeleteMessage removes the message stored under id.
func (s *MemoryStore) DeleteMessage(ctx context.Context, room ids.ID, id ids.MessageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[room]
	if r == nil {
		return fmt.Errorf("delete message %s: %w", id, ErrUnknownMessage)
	}
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("delete message %s: %w", id, ErrUnknownMessage)
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(o ids.MessageID) bool { return o == id })
	return nil
}
