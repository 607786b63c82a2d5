package history

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"

	"roomlog/cmd/identity/ids"
)

// Markers are the display markers of a ChunkedHistory: the range of chunk indexes
// currently on screen. Oldest <= Youngest < ChunkCount() whenever Active.
type Markers struct {
	Active   bool
	Oldest   int
	Youngest int
}

// ChunkedHistory is the chunked store of one room's messages plus its display markers.
// It only grows: edits replace records in place and nothing is ever removed.
type ChunkedHistory struct {
	room    ids.ID
	total   int
	chunks  []Chunk
	markers Markers
}

// New returns an empty history for room.
func New(room ids.ID) *ChunkedHistory {
	return &ChunkedHistory{room: room}
}

// NewFromMessage returns a history holding exactly m, in m's room.
func NewFromMessage(m Message) *ChunkedHistory {
	h := New(m.RoomID)
	h.Append(m)
	return h
}

// NewFromBatch loads batch ordered by id and partitions it into chunks of ChunkCapacity.
// Only the last chunk may be partial. An empty batch yields zero chunks.
func NewFromBatch(room ids.ID, batch map[ids.MessageID]Message) *ChunkedHistory {
	h := New(room)
	if len(batch) == 0 {
		return h
	}

	keys := slices.SortedFunc(maps.Keys(batch), ids.MessageID.Compare)
	msgs := make([]Message, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, batch[k])
	}

	h.chunks = make([]Chunk, 0, (len(msgs)+ChunkCapacity-1)/ChunkCapacity)
	for part := range slices.Chunk(msgs, ChunkCapacity) {
		h.chunks = append(h.chunks, NewChunk(part))
	}
	h.total = len(msgs)
	return h
}

// RoomID returns the room this history belongs to.
func (h *ChunkedHistory) RoomID() ids.ID { return h.room }

// Total is the number of stored messages.
func (h *ChunkedHistory) Total() int { return h.total }

// ChunkCount is the number of chunks.
func (h *ChunkedHistory) ChunkCount() int { return len(h.chunks) }

// Chunk returns the chunk at index i (oldest chunk is 0).
func (h *ChunkedHistory) Chunk(i int) Chunk { return h.chunks[i] }

// Display returns the current display markers.
func (h *ChunkedHistory) Display() Markers { return h.markers }

// Append stores m after every existing message, opening a new chunk when the last one is full.
// Display markers are left untouched.
func (h *ChunkedHistory) Append(m Message) {
	if n := len(h.chunks); n == 0 || h.chunks[n-1].Full() {
		h.chunks = append(h.chunks, Chunk{})
	}
	h.chunks[len(h.chunks)-1].Add(m)
	h.total++
}

// ChunkIndex returns the index of the first chunk whose last id is not older than id,
// i.e. the chunk that holds id or would hold it. It returns 0 when no chunk matches.
//
// Chunks are ordered, so this is a binary search over their last ids.
func (h *ChunkedHistory) ChunkIndex(id ids.MessageID) int {
	i := sort.Search(len(h.chunks), func(i int) bool {
		return h.chunks[i].last.Compare(id) >= 0
	})
	if i == len(h.chunks) {
		return 0
	}
	return i
}

// locate returns the chunk index and in-chunk position of id.
func (h *ChunkedHistory) locate(id ids.MessageID) (int, int, bool) {
	if len(h.chunks) == 0 {
		return 0, 0, false
	}
	ci := h.ChunkIndex(id)
	mi := h.chunks[ci].indexOf(id)
	if mi < 0 {
		return 0, 0, false
	}
	return ci, mi, true
}

// collect returns every message from chunk ci, position mi, through the end of history.
func (h *ChunkedHistory) collect(ci, mi int) []Message {
	n := h.chunks[ci].Count() - mi
	for _, c := range h.chunks[ci+1:] {
		n += c.Count()
	}

	out := make([]Message, 0, n)
	out = append(out, h.chunks[ci].msgs[mi:]...)
	for _, c := range h.chunks[ci+1:] {
		out = append(out, c.msgs...)
	}
	return out
}

// recentStart picks the first chunk of a capped fetch: the last chunk, or the one before it
// when the last chunk is sparse.
func (h *ChunkedHistory) recentStart() int {
	n := len(h.chunks)
	if n >= 2 && h.chunks[n-1].Count() < sparseChunkThreshold {
		return n - 2
	}
	return n - 1
}

// FetchSince returns the content newer than earliest and moves the display markers over
// the chunks it returned.
//
// With earliest == nil only the most recent content is returned: the last chunk, plus
// the chunk before it when the last one holds fewer than 15 messages.
//
// Otherwise everything after earliest is returned. When withLimit is set and that content
// spans several chunks, the same recent-content cap applies and callers page through the
// rest with LoadOlderChunk. An unknown id, or an id that is already the youngest message,
// yields an empty result and leaves the markers alone.
func (h *ChunkedHistory) FetchSince(earliest *ids.MessageID, withLimit bool) []Message {
	n := len(h.chunks)
	if earliest == nil {
		if n == 0 {
			return nil
		}
		from := h.recentStart()
		h.setDisplay(from, n-1)
		return h.collect(from, 0)
	}

	ci, mi, ok := h.locate(*earliest)
	if !ok {
		return nil
	}

	rc, rm := ci, mi+1
	if rm >= h.chunks[ci].Count() {
		rc, rm = ci+1, 0
	}
	if rc >= n {
		return nil
	}

	if withLimit && rc < n-1 {
		from, fromMsg := h.recentStart(), 0
		if from == rc {
			fromMsg = rm
		}
		h.setDisplay(from, n-1)
		return h.collect(from, fromMsg)
	}

	h.setDisplay(rc, n-1)
	return h.collect(rc, rm)
}

// LoadOlderChunk exposes the chunk just before the oldest displayed one and returns its content.
//
// Without an established window it establishes one at the last chunk and returns that chunk.
// It returns an empty result once the oldest chunk is on screen.
func (h *ChunkedHistory) LoadOlderChunk() []Message {
	n := len(h.chunks)
	if !h.markers.Active {
		if n == 0 {
			return nil
		}
		h.setDisplay(n-1, n-1)
		return h.chunks[n-1].Messages()
	}
	if h.markers.Oldest == 0 {
		return nil
	}
	h.markers.Oldest--
	return h.chunks[h.markers.Oldest].Messages()
}

// SetDisplay places the display markers. Indexes outside 0 <= oldest <= youngest < ChunkCount()
// are rejected with ErrInvariant.
func (h *ChunkedHistory) SetDisplay(oldest, youngest int) error {
	if oldest < 0 || oldest > youngest || youngest >= len(h.chunks) {
		return OpError{
			Op:   "history.SetDisplay",
			Kind: ErrInvariant,
			Msg:  fmt.Sprintf("display [%d,%d] outside %d chunks", oldest, youngest, len(h.chunks)),
		}
	}
	h.setDisplay(oldest, youngest)
	return nil
}

func (h *ChunkedHistory) setDisplay(oldest, youngest int) {
	h.markers = Markers{Active: true, Oldest: oldest, Youngest: youngest}
}

// RestoreDisplay puts back markers read earlier with Display, typically those of another
// reader sharing this history. The history only grows, but the markers are clamped to the
// current chunks all the same; inactive markers reset the display.
func (h *ChunkedHistory) RestoreDisplay(m Markers) {
	n := len(h.chunks)
	if !m.Active || n == 0 {
		h.ResetDisplay()
		return
	}
	youngest := min(max(m.Youngest, 0), n-1)
	oldest := min(max(m.Oldest, 0), youngest)
	h.setDisplay(oldest, youngest)
}

// ResetDisplay clears the markers and marks the window inactive.
func (h *ChunkedHistory) ResetDisplay() { h.markers = Markers{} }

// HasOlder reports whether LoadOlderChunk would return content.
func (h *ChunkedHistory) HasOlder() bool {
	if !h.markers.Active {
		return len(h.chunks) > 0
	}
	return h.markers.Oldest > 0
}

// LastMessage returns the youngest stored message.
func (h *ChunkedHistory) LastMessage() (Message, bool) {
	if h.total == 0 || len(h.chunks) == 0 {
		return Message{}, false
	}
	return h.chunks[len(h.chunks)-1].LastMessage()
}

// LoadYoungest returns the youngest message and, when a window is established, stretches
// the window up to the last chunk so freshly appended content is on screen.
func (h *ChunkedHistory) LoadYoungest() (Message, bool) {
	m, ok := h.LastMessage()
	if ok && h.markers.Active {
		h.markers.Youngest = len(h.chunks) - 1
	}
	return m, ok
}

// Find returns the message stored under id.
func (h *ChunkedHistory) Find(id ids.MessageID) (Message, bool) {
	ci, mi, ok := h.locate(id)
	if !ok {
		return Message{}, false
	}
	return h.chunks[ci].msgs[mi], true
}

// UpdateInPlace replaces the record stored under m.ID. It reports false (and changes nothing)
// when the id is unknown.
func (h *ChunkedHistory) UpdateInPlace(m Message) bool {
	ci, mi, ok := h.locate(m.ID)
	if !ok {
		return false
	}
	h.chunks[ci].replace(mi, m)
	return true
}

// Displayed returns the content of the chunks inside the display markers, oldest first.
func (h *ChunkedHistory) Displayed() []Message {
	if !h.markers.Active {
		return nil
	}
	var out []Message
	for _, c := range h.chunks[h.markers.Oldest : h.markers.Youngest+1] {
		out = append(out, c.msgs...)
	}
	return out
}

// Window derives a DisplayWindow from the displayed chunks and applies the hide policy.
// The window is a view: mutating it does not touch the history.
func (h *ChunkedHistory) Window() *DisplayWindow {
	w := NewWindow()
	w.AppendMany(h.Displayed())
	w.CheckNeedForReload()
	return w
}

// All iterates every stored message, oldest first.
func (h *ChunkedHistory) All() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for _, c := range h.chunks {
			for _, m := range c.msgs {
				if !yield(m) {
					return
				}
			}
		}
	}
}

// Backward iterates every stored message, youngest first.
func (h *ChunkedHistory) Backward() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for ci := len(h.chunks) - 1; ci >= 0; ci-- {
			msgs := h.chunks[ci].msgs
			for mi := len(msgs) - 1; mi >= 0; mi-- {
				if !yield(msgs[mi]) {
					return
				}
			}
		}
	}
}
