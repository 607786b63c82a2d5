package history

import (
	"fmt"
	"slices"

	"roomlog/cmd/identity/ids"
)

// Chunk is a bounded run of at most ChunkCapacity messages, oldest first.
// The zero value is an empty chunk ready for Add.
type Chunk struct {
	msgs  []Message
	first ids.MessageID
	last  ids.MessageID
}

// NewChunk builds a chunk from msgs, sorting them by id when there is more than one.
// Size is not validated; callers that cannot guarantee 1..ChunkCapacity use BuildChunk.
// The slice is copied.
func NewChunk(msgs []Message) Chunk {
	c := Chunk{msgs: slices.Clone(msgs)}
	sortMessages(c.msgs)
	c.bounds()
	return c
}

// BuildChunk is the strict constructor: 0 messages yields ErrEmptyChunk and more than
// ChunkCapacity yields ErrChunkOverflow.
func BuildChunk(msgs []Message) (Chunk, error) {
	const op = "history.BuildChunk"

	switch {
	case len(msgs) == 0:
		return Chunk{}, OpError{Op: op, Kind: ErrEmptyChunk}
	case len(msgs) > ChunkCapacity:
		return Chunk{}, OpError{Op: op, Kind: ErrChunkOverflow, Msg: fmt.Sprintf("%d messages, capacity %d", len(msgs), ChunkCapacity)}
	}
	return NewChunk(msgs), nil
}

func (c *Chunk) bounds() {
	if len(c.msgs) == 0 {
		c.first, c.last = ids.MessageID{}, ids.MessageID{}
		return
	}
	c.first = c.msgs[0].ID
	c.last = c.msgs[len(c.msgs)-1].ID
}

// Add appends m to the end without re-sorting. Callers append in non-decreasing id order.
func (c *Chunk) Add(m Message) {
	if len(c.msgs) == 0 {
		c.first = m.ID
	}
	c.msgs = append(c.msgs, m)
	c.last = m.ID
}

// Count is the number of stored messages.
func (c *Chunk) Count() int { return len(c.msgs) }

// Full reports whether the chunk reached ChunkCapacity.
func (c *Chunk) Full() bool { return len(c.msgs) >= ChunkCapacity }

// First is the id of the oldest message (zero when empty).
func (c *Chunk) First() ids.MessageID { return c.first }

// Last is the id of the youngest message (zero when empty).
func (c *Chunk) Last() ids.MessageID { return c.last }

// LastMessage returns the structurally last stored message.
func (c *Chunk) LastMessage() (Message, bool) {
	if len(c.msgs) == 0 {
		return Message{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}

// Messages returns a copy of the stored messages, oldest first.
func (c *Chunk) Messages() []Message { return slices.Clone(c.msgs) }

// At returns the message at position i.
func (c *Chunk) At(i int) Message { return c.msgs[i] }

// indexOf returns the position of id inside the chunk, or -1.
func (c *Chunk) indexOf(id ids.MessageID) int { return indexOf(c.msgs, id) }

func (c *Chunk) replace(i int, m Message) {
	c.msgs[i] = m
	c.bounds()
}
