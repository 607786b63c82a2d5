package history

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (stable for errors.Is).
var (
	// ErrEmptyChunk is returned by BuildChunk for an empty batch.
	ErrEmptyChunk = errors.New("empty chunk")
	// ErrChunkOverflow is returned by BuildChunk for a batch larger than ChunkCapacity.
	ErrChunkOverflow = errors.New("chunk overflow")
	// ErrInvariant reports an internal invariant violation (a programming error, never a normal outcome).
	ErrInvariant = errors.New("internal invariant violated")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// IsInvariant reports whether err represents ErrInvariant.
func IsInvariant(err error) bool { return errors.Is(err, ErrInvariant) }

// IsCapacity reports whether err is a chunk capacity violation.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrEmptyChunk) || errors.Is(err, ErrChunkOverflow)
}
