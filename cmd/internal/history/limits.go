package history

const (
	// ChunkCapacity is the maximum number of messages held by one Chunk.
	ChunkCapacity = 20

	// sparseChunkThreshold: when the youngest chunk holds fewer messages than this,
	// a bootstrap/limited fetch also materializes the chunk before it.
	sparseChunkThreshold = 15

	// VisibleTail is how many of the youngest messages a DisplayWindow keeps visible.
	VisibleTail = 20

	// reloadDrift is how far the ideal hide point may move before CheckNeedForReload recomputes it.
	reloadDrift = 5
)
