package session

const (
	// Max message text length (runes).
	maxMessageChars = 4000

	// Lines kept by Room.Preview.
	previewLines = 2
	// Max runes per preview line.
	previewLineChars = 80

	// Rooms loaded concurrently by Hub.Preload.
	preloadParallelism = 4

	// Bound on the dev-only MemoryStore.
	memMaxMessagesPerRoom = 10_000
)
