package feed

import (
	"roomlog/cmd/internal/history"
	"roomlog/cmd/internal/session"
	v1 "roomlog/shared/contracts/feed/v1"
)

func wireMessage(m history.Message) v1.Message {
	out := v1.Message{
		ID:     m.ID.String(),
		RoomID: m.RoomID.String(),
		Author: m.Author.String(),
	}
	if b := m.Body; b != nil {
		out.Text = b.Text
		out.CreatedAt = b.Created
		if !b.Sent.IsZero() {
			sent := b.Sent
			out.SentAt = &sent
		}
		out.Edits = b.Edits
		out.DeliveredToAll = b.DeliveredToAll
		out.ViewedByAll = b.ViewedByAll
	}
	return out
}

func wireView(up session.Update) v1.RoomViewPayload {
	msgs := make([]v1.Message, 0, len(up.Messages))
	for _, m := range up.Messages {
		msgs = append(msgs, wireMessage(m))
	}
	p := v1.RoomViewPayload{
		RoomID:       up.Room.String(),
		Kind:         up.Kind.String(),
		Messages:     msgs,
		VisibleStart: up.VisibleStart,
		VisibleEnd:   up.VisibleEnd,
		Total:        up.Total,
		HasOlder:     up.HasOlder,
	}
	if !up.MessageID.IsZero() {
		p.MessageID = up.MessageID.String()
	}
	return p
}
