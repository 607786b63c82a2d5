package session

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// ownView is the key of the room's own view, used by callers that are not a subscriber.
const ownView = ""

// Room is the per-room controller: it owns the room's ChunkedHistory and, per reader,
// the display markers and DisplayWindow derived from it. Updates are fanned out to
// subscribers, each computed against that subscriber's view.
//
// Concurrency guarantees:
//   - All state access is serialized by a per-room mutex (rooms are independent).
//   - Writes are additionally serialized by Hub so persistence and application happen
//     in the same order.
//   - Subscribe/Unsubscribe are safe under concurrent fanout.
type Room struct {
	log     *slog.Logger
	metrics *Metrics
	id      ids.ID

	// held by Hub across persist + apply
	writeMu sync.Mutex

	mu   sync.Mutex
	hist *history.ChunkedHistory
	// The chunked history never shrinks; deleted ids are tombstoned here and filtered out.
	deleted map[ids.MessageID]struct{}
	views   map[string]*view

	subMu sync.RWMutex
	subs  map[string]Subscriber
}

// view is one reader's position in the shared history: the chunk markers it paged to
// and the window derived from them.
type view struct {
	markers history.Markers
	win     *history.DisplayWindow
}

func newRoom(log *slog.Logger, metrics *Metrics, id ids.ID, batch map[ids.MessageID]history.Message) *Room {
	r := &Room{
		log:     log,
		metrics: metrics,
		id:      id,
		hist:    history.NewFromBatch(id, batch),
		deleted: make(map[ids.MessageID]struct{}),
		views:   make(map[string]*view),
		subs:    make(map[string]Subscriber),
	}
	r.views[ownView] = r.newViewLocked()
	return r
}

// ID returns the room id.
func (r *Room) ID() ids.ID { return r.id }

func (r *Room) live(msgs []history.Message) []history.Message {
	if len(r.deleted) == 0 {
		return msgs
	}
	return slices.DeleteFunc(msgs, func(m history.Message) bool {
		_, gone := r.deleted[m.ID]
		return gone
	})
}

// onView runs fn with the history's display markers set to v's and keeps what fn left there.
func (r *Room) onView(v *view, fn func()) {
	r.hist.RestoreDisplay(v.markers)
	fn()
	v.markers = r.hist.Display()
}

// newViewLocked starts a reader at the most recent content.
func (r *Room) newViewLocked() *view {
	v := &view{}
	r.onView(v, func() {
		r.hist.FetchSince(nil, true)
		v.win = r.windowLocked()
	})
	return v
}

// viewLocked returns the view registered under key, starting one if needed.
func (r *Room) viewLocked(key string) *view {
	v, ok := r.views[key]
	if !ok {
		v = r.newViewLocked()
		r.views[key] = v
	}
	return v
}

// windowLocked derives a display window from the chunks currently displayed.
func (r *Room) windowLocked() *history.DisplayWindow {
	w := history.NewWindow()
	w.AppendMany(r.live(r.hist.Displayed()))
	w.CheckNeedForReload()
	return w
}

func (r *Room) updateLocked(v *view, kind UpdateKind, msgs []history.Message) Update {
	start, end := v.win.VisibleRange()
	var older bool
	r.onView(v, func() { older = r.hist.HasOlder() })
	return Update{
		Kind:         kind,
		Room:         r.id,
		Messages:     msgs,
		VisibleStart: start,
		VisibleEnd:   end,
		Total:        r.hist.Total() - len(r.deleted),
		HasOlder:     start > 0 || older,
	}
}

// Snapshot returns the messages visible to the reader registered under key.
// The empty key is the room's own view.
func (r *Room) Snapshot(key string) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.viewLocked(key)
	return r.updateLocked(v, UpdateSnapshot, v.win.VisibleMessages())
}

// LoadOlder returns the next page of older messages for the reader under key, who scrolled
// to the top. Messages hidden by that reader's window come first; after that whole chunks are
// loaded from the history. The window reveals everything it holds afterwards.
// Other readers of the room keep their own position.
func (r *Room) LoadOlder(key string) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.viewLocked(key)
	var msgs []history.Message
	if start, _ := v.win.VisibleRange(); start > 0 {
		msgs = v.win.Messages()[:start]
	} else {
		r.onView(v, func() { msgs = r.live(r.hist.LoadOlderChunk()) })
		v.win.AppendOlderChunk(msgs)
	}
	v.win.Reveal()

	r.metrics.OlderPage()
	return r.updateLocked(v, UpdateOlder, msgs)
}

// FetchSince returns everything newer than since (the most recent content when since is nil)
// for the reader under key, capped the way ChunkedHistory.FetchSince caps it, and re-derives
// that reader's window when content was returned.
func (r *Room) FetchSince(key string, since *ids.MessageID) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.viewLocked(key)
	var msgs []history.Message
	r.onView(v, func() {
		msgs = r.live(r.hist.FetchSince(since, true))
		if len(msgs) > 0 {
			v.win = r.windowLocked()
		}
	})
	return r.updateLocked(v, UpdateSince, msgs)
}

// Find returns the live message stored under id.
func (r *Room) Find(id ids.MessageID) (history.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.findLocked(id)
}

func (r *Room) findLocked(id ids.MessageID) (history.Message, bool) {
	if _, gone := r.deleted[id]; gone {
		return history.Message{}, false
	}
	return r.hist.Find(id)
}

// Len returns the number of live messages.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hist.Total() - len(r.deleted)
}

// Preview returns the youngest live message and its text trimmed for a room list tile.
func (r *Room) Preview() (history.Message, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for m := range r.hist.Backward() {
		if _, gone := r.deleted[m.ID]; gone {
			continue
		}
		return m, previewText(m.Text()), true
	}
	return history.Message{}, "", false
}

// previewText keeps the first previewLines non-blank lines, each cut to previewLineChars runes.
func previewText(text string) string {
	var out []string
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > previewLineChars {
			line = string(r[:previewLineChars-1]) + "…"
		}
		out = append(out, line)
		if len(out) == previewLines {
			break
		}
	}
	return strings.Join(out, "\n")
}

// updates maps view keys to the update computed for that view.
type updates map[string]Update

// Apply mutates the room with ev and returns the update of the room's own view.
// UpdateNone is returned when nothing changed (e.g. a redelivered message).
func (r *Room) Apply(ev Event) (Update, error) {
	ups, err := r.apply(ev)
	if err != nil {
		return Update{}, err
	}
	return ups[ownView], nil
}

func (r *Room) apply(ev Event) (updates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case EventNew, EventNewMany:
		return r.appendLocked(ev)
	case EventUpdated:
		if len(ev.Messages) != 1 {
			return nil, fmt.Errorf("apply %s: want one message, got %d: %w", ev.Kind, len(ev.Messages), ErrInvalidInput)
		}
		return r.editLocked(ev.Messages[0])
	case EventDeleted:
		return r.deleteLocked(ev.MessageID)
	default:
		return nil, fmt.Errorf("apply event kind %d: %w", ev.Kind, ErrInvalidInput)
	}
}

// check validates ev against the room without mutating it and returns the event that would
// actually apply: New/NewMany keep only the messages not stored yet, ordered by id. Ids the
// room ever held, deleted ones included, are never stored again.
func (r *Room) check(ev Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case EventNew, EventNewMany:
		added, err := r.newMessagesLocked(ev)
		if err != nil {
			return Event{}, err
		}
		ev.Messages = added
		return ev, nil
	case EventUpdated:
		if len(ev.Messages) != 1 || ev.Messages[0].RoomID != r.id || ev.Messages[0].Body == nil {
			return Event{}, fmt.Errorf("apply %s: %w", ev.Kind, ErrInvalidInput)
		}
		if _, ok := r.findLocked(ev.Messages[0].ID); !ok {
			return Event{}, fmt.Errorf("edit %s: %w", ev.Messages[0].ID, ErrUnknownMessage)
		}
		return ev, nil
	case EventDeleted:
		if _, ok := r.findLocked(ev.MessageID); !ok {
			return Event{}, fmt.Errorf("delete %s: %w", ev.MessageID, ErrUnknownMessage)
		}
		return ev, nil
	default:
		return Event{}, fmt.Errorf("apply event kind %d: %w", ev.Kind, ErrInvalidInput)
	}
}

// newMessagesLocked returns the messages of ev not stored yet, ordered by id.
// Tombstoned ids count as stored.
func (r *Room) newMessagesLocked(ev Event) ([]history.Message, error) {
	msgs := slices.Clone(ev.Messages)
	slices.SortStableFunc(msgs, func(a, b history.Message) int { return a.ID.Compare(b.ID) })

	youngest, hasYoungest := r.hist.LastMessage()

	added := msgs[:0]
	for _, m := range msgs {
		if m.RoomID != r.id || m.ID.IsZero() || m.Body == nil {
			return nil, fmt.Errorf("apply %s: %w", ev.Kind, ErrInvalidInput)
		}
		if _, ok := r.hist.Find(m.ID); ok {
			continue
		}
		if len(added) > 0 && added[len(added)-1].ID == m.ID {
			continue
		}
		if hasYoungest && m.ID.Compare(youngest.ID) <= 0 {
			return nil, fmt.Errorf("apply %s %s: %w", ev.Kind, m.ID, ErrOutOfOrder)
		}
		added = append(added, m)
	}
	return added, nil
}

func (r *Room) appendLocked(ev Event) (updates, error) {
	added, err := r.newMessagesLocked(ev)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return updates{ownView: {Kind: UpdateNone, Room: r.id}}, nil
	}

	for _, m := range added {
		r.hist.Append(m)
	}

	ups := make(updates, len(r.views))
	for key, v := range r.views {
		ups[key] = r.appendToViewLocked(v, added)
	}
	return ups, nil
}

func (r *Room) appendToViewLocked(v *view, added []history.Message) Update {
	v.win.AppendMany(added)
	r.onView(v, func() {
		if !r.hist.Display().Active {
			r.hist.RestoreDisplay(history.Markers{
				Active:   true,
				Oldest:   r.hist.ChunkIndex(added[0].ID),
				Youngest: r.hist.ChunkCount() - 1,
			})
			return
		}
		r.hist.LoadYoungest()
	})

	if v.win.CheckNeedForReload() {
		r.metrics.Reload()
		return r.updateLocked(v, UpdateReload, v.win.VisibleMessages())
	}

	kind := UpdateNew
	if len(added) > 1 {
		kind = UpdateNewMany
	}
	return r.updateLocked(v, kind, added)
}

func (r *Room) editLocked(m history.Message) (updates, error) {
	if m.RoomID != r.id || m.Body == nil {
		return nil, fmt.Errorf("apply %s: %w", EventUpdated, ErrInvalidInput)
	}
	if _, ok := r.findLocked(m.ID); !ok {
		return nil, fmt.Errorf("edit %s: %w", m.ID, ErrUnknownMessage)
	}

	r.hist.UpdateInPlace(m)
	ups := make(updates, len(r.views))
	for key, v := range r.views {
		v.win.Edit(m)
		ups[key] = r.updateLocked(v, UpdateChanged, []history.Message{m})
	}
	return ups, nil
}

func (r *Room) deleteLocked(id ids.MessageID) (updates, error) {
	if _, ok := r.findLocked(id); !ok {
		return nil, fmt.Errorf("delete %s: %w", id, ErrUnknownMessage)
	}

	r.deleted[id] = struct{}{}
	ups := make(updates, len(r.views))
	for key, v := range r.views {
		v.win.Remove(id)
		if v.win.CheckNeedForReload() {
			r.metrics.Reload()
			ups[key] = r.updateLocked(v, UpdateReload, v.win.VisibleMessages())
			continue
		}
		up := r.updateLocked(v, UpdateDeleted, nil)
		up.MessageID = id
		ups[key] = up
	}
	return ups, nil
}

// Subscribe registers fn under key (a renderer session id) with its own view of the room,
// starting at the most recent content. Re-subscribing replaces fn and keeps the view.
// The empty key is reserved for the room's own view.
func (r *Room) Subscribe(key string, fn Subscriber) {
	if key == ownView || fn == nil {
		return
	}

	r.mu.Lock()
	r.viewLocked(key)
	r.mu.Unlock()

	r.subMu.Lock()
	r.subs[key] = fn
	r.subMu.Unlock()

	r.log.Info("room.subscriber.join", "room_id", r.id.String(), "session_id", key)
}

// Join subscribes fn under key with a fresh view and returns the snapshot the subscriber
// starts from. No update is lost or duplicated between the snapshot and the first delivery.
func (r *Room) Join(key string, fn Subscriber) Update {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if key != ownView {
		r.mu.Lock()
		delete(r.views, key)
		r.mu.Unlock()
	}
	r.Subscribe(key, fn)
	return r.Snapshot(key)
}

// Unsubscribe removes the subscriber registered under key and its view.
func (r *Room) Unsubscribe(key string) {
	if key == ownView {
		return
	}

	r.subMu.Lock()
	_, ok := r.subs[key]
	delete(r.subs, key)
	r.subMu.Unlock()

	r.mu.Lock()
	delete(r.views, key)
	r.mu.Unlock()

	if ok {
		r.log.Info("room.subscriber.leave", "room_id", r.id.String(), "session_id", key)
	}
}

// Subscribers returns the number of registered subscribers.
func (r *Room) Subscribers() int {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	return len(r.subs)
}

// fanout delivers to every subscriber the update computed for its view. Subscribers must not block.
func (r *Room) fanout(ups updates) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for key, fn := range r.subs {
		if up, ok := ups[key]; ok && up.Kind != UpdateNone {
			fn(up)
		}
	}
}
