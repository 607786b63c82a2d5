// Package v1 defines the roomlog render feed protocol v1.
//
// This package is intentionally stable and dependency-light.
// It is shared between the server and renderers to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol renderers must request.
const Subprotocol = "roomlog.feed.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (renderer -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake (server -> renderer).
	TypeHelloAck = "hello_ack"

	// TypeRoomOpen subscribes to a room (renderer -> server).
	TypeRoomOpen = "room_open"
	// TypeRoomSnapshot returns the visible messages of an opened room (server -> renderer).
	TypeRoomSnapshot = "room_snapshot"
	// TypeRoomClose unsubscribes from a room (renderer -> server).
	TypeRoomClose = "room_close"

	// TypeRoomLoadOlder asks for the next page of older history (renderer -> server).
	TypeRoomLoadOlder = "room_load_older"
	// TypeRoomOlder returns a page of older history (server -> renderer).
	TypeRoomOlder = "room_older"

	// TypeRoomFetchSince asks for everything after a message id (renderer -> server).
	TypeRoomFetchSince = "room_fetch_since"
	// TypeRoomSince returns the content newer than the requested id (server -> renderer).
	TypeRoomSince = "room_since"

	// TypeRoomUpdate broadcasts a change of a room (server -> subscribed renderers).
	TypeRoomUpdate = "room_update"

	// TypeMessageSend posts a new message (renderer -> server).
	TypeMessageSend = "message_send"
	// TypeMessageEdit replaces the text of a message (renderer -> server).
	TypeMessageEdit = "message_edit"
	// TypeMessageDelete removes a message (renderer -> server).
	TypeMessageDelete = "message_delete"
	// TypeMessageAck acknowledges a send/edit/delete request (server -> renderer).
	TypeMessageAck = "message_ack"

	// TypeError is a generic error envelope (server -> renderer).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeRoomOpen,
		TypeRoomSnapshot,
		TypeRoomClose,
		TypeRoomLoadOlder,
		TypeRoomOlder,
		TypeRoomFetchSince,
		TypeRoomSince,
		TypeRoomUpdate,
		TypeMessageSend,
		TypeMessageEdit,
		TypeMessageDelete,
		TypeMessageAck,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the renderer to initiate a session.
// Author is the account id ("account:<ulid>") messages are posted as; the server
// assigns one when it is empty.
type HelloPayload struct {
	Author string `json:"author,omitempty"`
}

// HelloAckPayload carries the server assigned session id and the effective author.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	Author    string `json:"author"`
}

// RoomRefPayload names a room (room_open, room_close, room_load_older).
type RoomRefPayload struct {
	RoomID string `json:"room_id"`
}

// RoomFetchSincePayload asks for everything after Since (the most recent content when empty).
type RoomFetchSincePayload struct {
	RoomID string `json:"room_id"`
	Since  string `json:"since,omitempty"`
}

// Message is the wire form of a stored message.
type Message struct {
	ID             string     `json:"id"`
	RoomID         string     `json:"room_id"`
	Author         string     `json:"author"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Edits          uint8      `json:"edits,omitempty"`
	DeliveredToAll bool       `json:"delivered_to_all,omitempty"`
	ViewedByAll    bool       `json:"viewed_by_all,omitempty"`
}

// RoomViewPayload is shared by room_snapshot, room_older, room_since and room_update.
//
// Kind (room_update only) is one of: new, new_many, changed, deleted, reload.
// VisibleStart/VisibleEnd is the visible index range of the room's window after the change.
type RoomViewPayload struct {
	RoomID       string    `json:"room_id"`
	Kind         string    `json:"kind,omitempty"`
	Messages     []Message `json:"messages"`
	MessageID    string    `json:"message_id,omitempty"`
	VisibleStart int       `json:"visible_start"`
	VisibleEnd   int       `json:"visible_end"`
	Total        int       `json:"total"`
	HasOlder     bool      `json:"has_older"`
}

// MessageSendPayload posts a new message into a room.
type MessageSendPayload struct {
	RoomID      string     `json:"room_id"`
	ClientMsgID string     `json:"client_msg_id"`
	Text        string     `json:"text"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// MessageEditPayload replaces the text of a message.
type MessageEditPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// MessageDeletePayload removes a message.
type MessageDeletePayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// MessageAckPayload acknowledges a send/edit/delete request.
type MessageAckPayload struct {
	RoomID      string `json:"room_id"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	MessageID   string `json:"message_id"`
	Op          string `json:"op"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
