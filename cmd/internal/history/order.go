package history

import (
	"slices"

	"roomlog/cmd/identity/ids"
)

func compareMessages(a, b Message) int { return a.ID.Compare(b.ID) }

// sortMessages orders msgs by id, oldest first. Stable so duplicated ids keep arrival order.
func sortMessages(msgs []Message) {
	if len(msgs) < 2 {
		return
	}
	if slices.IsSortedFunc(msgs, compareMessages) {
		return
	}
	slices.SortStableFunc(msgs, compareMessages)
}

// indexOf returns the position of id in msgs, or -1.
func indexOf(msgs []Message, id ids.MessageID) int {
	return slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
}
