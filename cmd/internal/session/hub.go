package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// Hub owns the open rooms and is the single write path into them.
// Persistence lives behind Store; rooms are loaded lazily on first use.
type Hub struct {
	log     *slog.Logger
	store   Store
	gen     *ids.Generator
	metrics *Metrics
	now     func() time.Time

	loads singleflight.Group

	mu    sync.RWMutex
	rooms map[ids.ID]*Room
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics records hub activity into m.
func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithGenerator sets the message id generator (default: a fresh ids.Generator).
func WithGenerator(g *ids.Generator) HubOption {
	return func(h *Hub) {
		if g != nil {
			h.gen = g
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub constructs a Hub backed by store.
func NewHub(log *slog.Logger, store Store, opts ...HubOption) *Hub {
	h := &Hub{
		log:   log,
		store: store,
		gen:   ids.NewGenerator(),
		now:   func() time.Time { return time.Now().UTC() },
		rooms: make(map[ids.ID]*Room),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Room returns an already open room.
func (h *Hub) Room(id ids.ID) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[id]
	return r, ok
}

// Rooms returns the ids of the open rooms, sorted.
func (h *Hub) Rooms() []ids.ID {
	h.mu.RLock()
	out := make([]ids.ID, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b ids.ID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// Open returns the room, loading its history from the store on first use.
// Concurrent opens of the same room share one load.
func (h *Hub) Open(ctx context.Context, id ids.ID) (*Room, error) {
	if id.IsZero() || id.Table != ids.TableRoom {
		return nil, fmt.Errorf("open room %q: %w", id.String(), ErrInvalidInput)
	}
	if r, ok := h.Room(id); ok {
		return r, nil
	}

	v, err, _ := h.loads.Do(id.String(), func() (any, error) {
		if r, ok := h.Room(id); ok {
			return r, nil
		}

		start := time.Now()
		batch, err := h.store.LoadRoom(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("open room %s: %w", id, err)
		}
		r := newRoom(h.log, h.metrics, id, batch)

		h.mu.Lock()
		h.rooms[id] = r
		n := len(h.rooms)
		h.mu.Unlock()

		h.metrics.OpenRooms(n)
		h.log.Info("room.open",
			"room_id", id.String(),
			"messages", len(batch),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

// Preload opens rooms concurrently and stops at the first failure.
func (h *Hub) Preload(ctx context.Context, rooms []ids.ID) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadParallelism)

	for _, id := range rooms {
		g.Go(func() error {
			_, err := h.Open(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// Close drops a room from memory. Its subscribers stop receiving updates.
func (h *Hub) Close(id ids.ID) {
	h.mu.Lock()
	_, ok := h.rooms[id]
	delete(h.rooms, id)
	n := len(h.rooms)
	h.mu.Unlock()

	if ok {
		h.metrics.OpenRooms(n)
		h.log.Info("room.close", "room_id", id.String())
	}
}

// Dispatch persists ev, applies it to the room and fans the resulting update out.
func (h *Hub) Dispatch(ctx context.Context, ev Event) (Update, error) {
	r, err := h.Open(ctx, ev.Room)
	if err != nil {
		return Update{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return h.commit(ctx, r, ev)
}

// Post creates a message in room and dispatches it. The id is minted under the room's
// write lock so ids reach the history in order.
func (h *Hub) Post(ctx context.Context, room, author ids.ID, text string, created time.Time) (history.Message, Update, error) {
	text, err := validText(text)
	if err != nil {
		return history.Message{}, Update{}, err
	}
	if author.IsZero() {
		return history.Message{}, Update{}, fmt.Errorf("post: missing author: %w", ErrInvalidInput)
	}

	r, err := h.Open(ctx, room)
	if err != nil {
		return history.Message{}, Update{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := h.now()
	if created.IsZero() || created.After(now) {
		created = now
	}
	id, err := h.gen.Next(now)
	if err != nil {
		return history.Message{}, Update{}, err
	}

	m := history.Message{
		ID:     id,
		RoomID: room,
		Author: author,
		Body:   &history.Body{Text: text, Created: created, Sent: now},
	}
	up, err := h.commit(ctx, r, Event{Kind: EventNew, Room: room, Messages: []history.Message{m}})
	if err != nil {
		return history.Message{}, Update{}, err
	}
	return m, up, nil
}

// Edit replaces the text of a stored message.
func (h *Hub) Edit(ctx context.Context, room ids.ID, id ids.MessageID, text string) (history.Message, Update, error) {
	text, err := validText(text)
	if err != nil {
		return history.Message{}, Update{}, err
	}

	r, err := h.Open(ctx, room)
	if err != nil {
		return history.Message{}, Update{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur, ok := r.Find(id)
	if !ok {
		return history.Message{}, Update{}, fmt.Errorf("edit %s: %w", id, ErrUnknownMessage)
	}
	m := cur.Edited(text)

	up, err := h.commit(ctx, r, Event{Kind: EventUpdated, Room: room, Messages: []history.Message{m}})
	if err != nil {
		return history.Message{}, Update{}, err
	}
	return m, up, nil
}

// Delete removes a stored message.
func (h *Hub) Delete(ctx context.Context, room ids.ID, id ids.MessageID) (Update, error) {
	return h.Dispatch(ctx, Event{Kind: EventDeleted, Room: room, MessageID: id})
}

// commit runs with r.writeMu held. Only what check accepted reaches the store, so a
// redelivered or already deleted message is never written back.
func (h *Hub) commit(ctx context.Context, r *Room, ev Event) (Update, error) {
	if ev.Room != r.id {
		return Update{}, fmt.Errorf("commit %s: room mismatch: %w", ev.Kind, ErrInvalidInput)
	}
	ev, err := r.check(ev)
	if err != nil {
		return Update{}, err
	}
	if (ev.Kind == EventNew || ev.Kind == EventNewMany) && len(ev.Messages) == 0 {
		return Update{Kind: UpdateNone, Room: r.id}, nil
	}

	if err := h.persist(ctx, ev); err != nil {
		h.log.Warn("room.event.persist_failed",
			"room_id", ev.Room.String(),
			"kind", ev.Kind.String(),
			"err", err,
		)
		return Update{}, err
	}

	ups, err := r.apply(ev)
	if err != nil {
		return Update{}, err
	}

	h.metrics.Event(ev.Kind)
	r.fanout(ups)
	return ups[ownView], nil
}

func (h *Hub) persist(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventNew, EventNewMany:
		for _, m := range ev.Messages {
			if m.RoomID != ev.Room {
				return fmt.Errorf("persist %s: message room mismatch: %w", ev.Kind, ErrInvalidInput)
			}
			if err := h.store.AppendMessage(ctx, m); err != nil {
				return err
			}
		}
		return nil
	case EventUpdated:
		if len(ev.Messages) != 1 {
			return fmt.Errorf("persist %s: %w", ev.Kind, ErrInvalidInput)
		}
		return h.store.UpdateMessage(ctx, ev.Messages[0])
	case EventDeleted:
		return h.store.DeleteMessage(ctx, ev.Room, ev.MessageID)
	default:
		return fmt.Errorf("persist event kind %d: %w", ev.Kind, ErrInvalidInput)
	}
}

func validText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty text: %w", ErrInvalidInput)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("invalid utf-8: %w", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxMessageChars {
		return "", fmt.Errorf("text too long: %w", ErrInvalidInput)
	}
	return text, nil
}

// IsClientError reports whether err was caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnknownMessage) || errors.Is(err, ErrOutOfOrder)
}
