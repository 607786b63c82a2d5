// Package history keeps a room's message history in memory and decides which part of it is on screen.
//
// Two views of the same history are provided:
//   - ChunkedHistory stores messages in fixed-size chunks (oldest first) and tracks which
//     chunks are currently displayed. It is the source of truth for a room.
//   - DisplayWindow is a flat, message-level materialization used by renderers. It supports
//     point edits and removals and hides everything older than the last VisibleTail messages,
//     recomputing the hide point only when it drifts far enough.
//
// The package performs no I/O and no logging. Absence (unknown id, nothing older to load)
// is reported through empty results or ok=false, never as an error.
//
// Concurrency: values are NOT safe for concurrent use. Callers serialize access per room
// (see session.Room).
package history
