package session

import (
	"context"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// Store loads and persists room messages. The history engine itself never does I/O;
// Hub calls the store before applying a mutation to the in-memory room.
//
// Requirements:
//   - LoadRoom returns every stored message of a room (the engine orders them by id)
//   - UpdateMessage and DeleteMessage return ErrUnknownMessage for ids they do not hold
type Store interface {
	LoadRoom(ctx context.Context, room ids.ID) (map[ids.MessageID]history.Message, error)
	AppendMessage(ctx context.Context, m history.Message) error
	UpdateMessage(ctx context.Context, m history.Message) error
	DeleteMessage(ctx context.Context, room ids.ID, id ids.MessageID) error
	Close() error
}
