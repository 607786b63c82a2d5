package history

import (
	"time"

	"roomlog/cmd/identity/ids"
)

// Message is one stored message. The engine orders and finds messages by ID only;
// everything else is payload it carries around.
//
// Body is shared between the history, the display window and any renderer holding a
// copy. It must be treated as immutable: edits build a new Body (see Edited).
type Message struct {
	ID     ids.MessageID
	RoomID ids.ID
	Author ids.ID
	Body   *Body
}

// Body is the content of a message.
type Body struct {
	Text    string
	Created time.Time
	// Sent is zero until the message reached the server.
	Sent time.Time
	// Edits counts how many times the text was replaced.
	Edits          uint8
	DeliveredToAll bool
	ViewedByAll    bool
}

// Text returns the message text ("" when there is no body).
func (m Message) Text() string {
	if m.Body == nil {
		return ""
	}
	return m.Body.Text
}

// Edited returns a copy of m carrying text as a new body. The id is reused.
func (m Message) Edited(text string) Message {
	var b Body
	if m.Body != nil {
		b = *m.Body
	}
	b.Text = text
	if b.Edits < ^uint8(0) {
		b.Edits++
	}
	m.Body = &b
	return m
}

// Same reports whether m and o carry the same id and the same body contents.
func (m Message) Same(o Message) bool {
	if m.ID != o.ID || m.RoomID != o.RoomID || m.Author != o.Author {
		return false
	}
	if m.Body == nil || o.Body == nil {
		return m.Body == o.Body
	}
	return *m.Body == *o.Body
}
