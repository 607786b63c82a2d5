package session

import (
	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// EventKind classifies a mutation coming from the outside (user action, server push).
type EventKind uint8

const (
	EventNew EventKind = iota + 1
	EventNewMany
	EventUpdated
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "new"
	case EventNewMany:
		return "new_many"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one mutation of a room.
//
// New/NewMany carry the messages to append, Updated carries exactly one replacement
// record and Deleted names the message by MessageID.
type Event struct {
	Kind      EventKind
	Room      ids.ID
	Messages  []history.Message
	MessageID ids.MessageID
}

// UpdateKind tells renderers what changed.
type UpdateKind uint8

const (
	UpdateNone UpdateKind = iota
	// UpdateSnapshot carries the full visible range.
	UpdateSnapshot
	// UpdateNew and UpdateNewMany carry appended messages that are visible as is.
	UpdateNew
	UpdateNewMany
	// UpdateChanged carries one edited message.
	UpdateChanged
	// UpdateDeleted names a removed message.
	UpdateDeleted
	// UpdateOlder carries messages to put in front of what the renderer shows.
	UpdateOlder
	// UpdateSince carries everything after a renderer supplied id.
	UpdateSince
	// UpdateReload means the hide point moved: renderers redraw from Messages.
	UpdateReload
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateSnapshot:
		return "snapshot"
	case UpdateNew:
		return "new"
	case UpdateNewMany:
		return "new_many"
	case UpdateChanged:
		return "changed"
	case UpdateDeleted:
		return "deleted"
	case UpdateOlder:
		return "older"
	case UpdateSince:
		return "since"
	case UpdateReload:
		return "reload"
	default:
		return "none"
	}
}

// Update is what a Room tells its renderers after a mutation or request.
// VisibleStart/VisibleEnd is the visible index range of the receiving reader's display window
// after the change; HasOlder tells whether a "load older" affordance should be shown.
type Update struct {
	Kind         UpdateKind
	Room         ids.ID
	Messages     []history.Message
	MessageID    ids.MessageID
	VisibleStart int
	VisibleEnd   int
	Total        int
	HasOlder     bool
}

// Subscriber receives a room's updates. It runs on the mutating goroutine and must not block.
type Subscriber func(Update)
