package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/session"
	v1 "roomlog/shared/contracts/feed/v1"
)

var errBadRequest = errors.New("bad request")

func (g *Gateway) onHello(ctx context.Context, client *Client, env v1.Envelope, now time.Time) error {
	var p v1.HelloPayload
	if len(env.Payload) > 0 {
		if err := decodePayload(env, &p); err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
	}

	if p.Author != "" {
		author, err := ids.ParseID(p.Author)
		if err != nil || author.Table != ids.TableAccount {
			return fmt.Errorf("invalid author %q: %w", p.Author, errBadRequest)
		}
		client.Author = author
	} else if client.Author.IsZero() {
		author, err := ids.NewID(ids.TableAccount, now)
		if err != nil {
			return err
		}
		client.Author = author
	}

	ack := newEnvelope(v1.TypeHelloAck, v1.HelloAckPayload{
		SessionID: client.SessionID,
		Author:    client.Author.String(),
	}, now)
	if !g.enqueue(ctx, client, ack) {
		return errors.New("backpressure: hello_ack")
	}
	return nil
}

func (g *Gateway) onRoomOpen(ctx context.Context, c *conn, env v1.Envelope, now time.Time) error {
	var p v1.RoomRefPayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	id, err := parseRoomID(p.RoomID)
	if err != nil {
		return err
	}

	room, err := g.hub.Open(ctx, id)
	if err != nil {
		return err
	}

	client := c.client
	snap := room.Join(client.SessionID, func(up session.Update) {
		if !client.offer(newEnvelope(v1.TypeRoomUpdate, wireView(up), g.now())) {
			g.metrics.droppedUpdate()
		}
	})
	c.add(room)

	if !g.enqueue(ctx, client, newEnvelope(v1.TypeRoomSnapshot, wireView(snap), now)) {
		c.remove(id)
		room.Unsubscribe(client.SessionID)
		return errors.New("backpressure: room_snapshot")
	}
	return nil
}

func (g *Gateway) onRoomClose(c *conn, env v1.Envelope) error {
	var p v1.RoomRefPayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	id, err := parseRoomID(p.RoomID)
	if err != nil {
		return err
	}

	room, ok := c.remove(id)
	if !ok {
		return errNotJoined
	}
	room.Unsubscribe(c.client.SessionID)
	return nil
}

func (g *Gateway) onLoadOlder(ctx context.Context, c *conn, env v1.Envelope, now time.Time) error {
	var p v1.RoomRefPayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	room, err := c.openedRoom(p.RoomID)
	if err != nil {
		return err
	}

	up := room.LoadOlder(c.client.SessionID)
	if !g.enqueue(ctx, c.client, newEnvelope(v1.TypeRoomOlder, wireView(up), now)) {
		return errors.New("backpressure: room_older")
	}
	return nil
}

func (g *Gateway) onFetchSince(ctx context.Context, c *conn, env v1.Envelope, now time.Time) error {
	var p v1.RoomFetchSincePayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	room, err := c.openedRoom(p.RoomID)
	if err != nil {
		return err
	}

	var since *ids.MessageID
	if p.Since != "" {
		id, err := parseMessageID(p.Since)
		if err != nil {
			return err
		}
		since = &id
	}

	up := room.FetchSince(c.client.SessionID, since)
	if !g.enqueue(ctx, c.client, newEnvelope(v1.TypeRoomSince, wireView(up), now)) {
		return errors.New("backpressure: room_since")
	}
	return nil
}

func (g *Gateway) onMessageSend(ctx context.Context, c *conn, env v1.Envelope, now time.Time) error {
	var p v1.MessageSendPayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if c.client.Author.IsZero() {
		return errNoHello
	}
	room, err := c.openedRoom(p.RoomID)
	if err != nil {
		return err
	}
	clientMsgID, err := trimmed("client_msg_id", p.ClientMsgID)
	if err != nil {
		return err
	}

	var created time.Time
	if p.CreatedAt != nil {
		created = p.CreatedAt.UTC()
	}

	m, _, err := g.hub.Post(ctx, room.ID(), c.client.Author, p.Text, created)
	if err != nil {
		return err
	}
	return g.ack(ctx, c.client, v1.MessageAckPayload{
		RoomID:      room.ID().String(),
		ClientMsgID: clientMsgID,
		MessageID:   m.ID.String(),
		Op:          "send",
	}, now)
}

func (g *Gateway) onMessageEdit(ctx context.Context, c *conn, env v1.Envelope, now time.Time) error {
	var p v1.MessageEditPayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	room, err := c.openedRoom(p.RoomID)
	if err != nil {
		return err
	}
	id, err := parseMessageID(p.MessageID)
	if err != nil {
		return err
	}

	m, _, err := g.hub.Edit(ctx, room.ID(), id, p.Text)
	if err != nil {
		return err
	}
	return g.ack(ctx, c.client, v1.MessageAckPayload{
		RoomID:    room.ID().String(),
		MessageID: m.ID.String(),
		Op:        "edit",
	}, now)
}

func (g *Gateway) onMessageDelete(ctx context.Context, c *conn, env v1.Envelope, now time.Time) error {
	var p v1.MessageDeletePayload
	if err := decodePayload(env, &p); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	room, err := c.openedRoom(p.RoomID)
	if err != nil {
		return err
	}
	id, err := parseMessageID(p.MessageID)
	if err != nil {
		return err
	}

	if _, err := g.hub.Delete(ctx, room.ID(), id); err != nil {
		return err
	}
	return g.ack(ctx, c.client, v1.MessageAckPayload{
		RoomID:    room.ID().String(),
		MessageID: id.String(),
		Op:        "delete",
	}, now)
}

func (g *Gateway) ack(ctx context.Context, client *Client, p v1.MessageAckPayload, now time.Time) error {
	if !g.enqueue(ctx, client, newEnvelope(v1.TypeMessageAck, p, now)) {
		return errors.New("backpressure: message_ack")
	}
	return nil
}

// openedRoom resolves a room id the session has opened.
func (c *conn) openedRoom(raw string) (*session.Room, error) {
	id, err := parseRoomID(raw)
	if err != nil {
		return nil, err
	}
	room, ok := c.joined(id)
	if !ok {
		return nil, errNotJoined
	}
	return room, nil
}

func parseRoomID(raw string) (ids.ID, error) {
	raw, err := trimmed("room_id", raw)
	if err != nil {
		return ids.ID{}, err
	}
	id, err := ids.ParseID(raw)
	if err != nil || id.Table != ids.TableRoom {
		return ids.ID{}, fmt.Errorf("invalid room_id %q: %w", raw, errBadRequest)
	}
	return id, nil
}

func parseMessageID(raw string) (ids.MessageID, error) {
	raw, err := trimmed("message_id", raw)
	if err != nil {
		return ids.MessageID{}, err
	}
	id, err := ids.ParseMessageID(raw)
	if err != nil {
		return ids.MessageID{}, fmt.Errorf("invalid message_id %q: %w", raw, errBadRequest)
	}
	return id, nil
}
