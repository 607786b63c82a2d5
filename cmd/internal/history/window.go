package history

import (
	"iter"
	"slices"

	"roomlog/cmd/identity/ids"
)

// Position locates a message inside a DisplayWindow.
type Position struct {
	Index int
	ID    ids.MessageID
}

// Visibility is the hide policy state of a DisplayWindow.
// The zero value means every stored message is visible. When Hidden is set, messages
// before Index (the hide point, whose id is ID) are excluded from iteration.
type Visibility struct {
	Hidden bool
	Index  int
	ID     ids.MessageID
}

// DisplayWindow is a flat, message level view of a room, oldest first.
// Point edits and removals are cheap enough here because they are rare next to appends.
type DisplayWindow struct {
	msgs []Message
	vis  Visibility
}

// NewWindow returns an empty window with everything visible.
func NewWindow() *DisplayWindow { return &DisplayWindow{} }

// Total is the number of stored messages.
func (w *DisplayWindow) Total() int { return len(w.msgs) }

// Start is the position of the oldest stored message.
func (w *DisplayWindow) Start() (Position, bool) {
	if len(w.msgs) == 0 {
		return Position{}, false
	}
	return Position{Index: 0, ID: w.msgs[0].ID}, true
}

// Last is the position of the youngest stored message.
func (w *DisplayWindow) Last() (Position, bool) {
	n := len(w.msgs)
	if n == 0 {
		return Position{}, false
	}
	return Position{Index: n - 1, ID: w.msgs[n-1].ID}, true
}

// Visibility returns the current hide policy state.
func (w *DisplayWindow) Visibility() Visibility { return w.vis }

// AppendNew pushes m after the youngest message.
func (w *DisplayWindow) AppendNew(m Message) {
	w.msgs = append(w.msgs, m)
}

// AppendMany pushes a batch (oldest first) after the youngest message.
func (w *DisplayWindow) AppendMany(msgs []Message) {
	w.msgs = append(w.msgs, msgs...)
}

// AppendOlderChunk puts a batch (oldest first) in front of the oldest message.
// A hide point keeps pointing at the same message.
func (w *DisplayWindow) AppendOlderChunk(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	w.msgs = slices.Insert(w.msgs, 0, msgs...)
	if w.vis.Hidden {
		w.vis.Index += len(msgs)
	}
}

// Edit replaces the record stored under m.ID. It reports false when the id is unknown.
func (w *DisplayWindow) Edit(m Message) bool {
	n := len(w.msgs)
	if n == 0 {
		return false
	}

	var i int
	switch {
	case w.msgs[n-1].ID == m.ID:
		i = n - 1
	case w.msgs[0].ID == m.ID:
		i = 0
	default:
		if i = indexOf(w.msgs, m.ID); i < 0 {
			return false
		}
	}
	w.msgs[i] = m
	return true
}

// Remove deletes the message stored under id and returns it. An unknown id reports ok=false.
// A hide point on the removed message moves to the message after it.
func (w *DisplayWindow) Remove(id ids.MessageID) (Message, bool) {
	i := indexOf(w.msgs, id)
	if i < 0 {
		return Message{}, false
	}

	removed := w.msgs[i]
	w.msgs = slices.Delete(w.msgs, i, i+1)

	if w.vis.Hidden {
		switch {
		case len(w.msgs) == 0:
			w.vis = Visibility{}
		case i < w.vis.Index:
			w.vis.Index--
		case i == w.vis.Index:
			if i < len(w.msgs) {
				w.vis.ID = w.msgs[i].ID
			} else {
				w.vis = Visibility{}
			}
		}
	}
	return removed, true
}

// CheckNeedForReload evaluates the hide policy and reports whether the visible range moved.
//
// Below VisibleTail messages everything is visible and false is returned. From VisibleTail on
// the hide point is placed VisibleTail messages before the end; once placed it is only moved
// when the ideal position drifted by reloadDrift or more.
func (w *DisplayWindow) CheckNeedForReload() bool {
	total := len(w.msgs)
	if total < VisibleTail {
		w.vis = Visibility{}
		return false
	}

	ideal := total - VisibleTail
	if w.vis.Hidden {
		drift := ideal - w.vis.Index
		if drift < 0 {
			drift = -drift
		}
		if drift < reloadDrift {
			return false
		}
	}
	w.vis = Visibility{Hidden: true, Index: ideal, ID: w.msgs[ideal].ID}
	return true
}

// Reveal drops the hide point so every stored message is visible,
// e.g. after the reader explicitly asked for older history.
func (w *DisplayWindow) Reveal() { w.vis = Visibility{} }

// VisibleRange returns the half-open index range [start, end) of visible messages.
func (w *DisplayWindow) VisibleRange() (int, int) {
	end := len(w.msgs)
	if !w.vis.Hidden {
		return 0, end
	}
	return min(w.vis.Index, end), end
}

// Visible iterates the visible messages, oldest first.
func (w *DisplayWindow) Visible() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		start, end := w.VisibleRange()
		for _, m := range w.msgs[start:end] {
			if !yield(m) {
				return
			}
		}
	}
}

// VisibleMessages returns a copy of the visible messages.
func (w *DisplayWindow) VisibleMessages() []Message {
	start, end := w.VisibleRange()
	return slices.Clone(w.msgs[start:end])
}

// Messages returns a copy of every stored message, hidden ones included.
func (w *DisplayWindow) Messages() []Message { return slices.Clone(w.msgs) }

// Find returns the message stored under id.
func (w *DisplayWindow) Find(id ids.MessageID) (Message, bool) {
	if i := indexOf(w.msgs, id); i >= 0 {
		return w.msgs[i], true
	}
	return Message{}, false
}
