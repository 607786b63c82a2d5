// Package session orchestrates per-room message histories for renderers.
//
// A Hub owns one Room per open room. Each Room keeps a history.ChunkedHistory as the
// source of truth and derives the history.DisplayWindow renderers draw from. Every
// mutation goes through Hub so it is persisted (Store) before it is applied, and every
// applied mutation is fanned out to the room's subscribers as an Update.
package session

import "errors"

var (
	// ErrInvalidInput reports a malformed event or request.
	ErrInvalidInput = errors.New("session: invalid input")
	// ErrUnknownMessage reports an edit or delete of a message the room does not hold.
	ErrUnknownMessage = errors.New("session: unknown message")
	// ErrOutOfOrder reports a new message whose id is not younger than the room's youngest.
	ErrOutOfOrder = errors.New("session: message older than room history")
)
