// Package main provides a CI-friendly smoke test for the roomlog render feed.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack session establishment
//   - room_open snapshot for two sessions
//   - send -> ack and room_update fanout to the other session
//   - edit and delete fanout
//   - room_fetch_since and room_load_older paging
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "roomlog/shared/contracts/feed/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	sessionID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		feedURL  = flag.String("url", "ws://127.0.0.1:8080/feed", "feed WebSocket URL")
		roomsURL = flag.String("rooms", "http://127.0.0.1:8080/rooms", "room list URL, used when -room is empty")
		roomID   = flag.String("room", "", "room id to open (room:<ulid>)")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		text     = flag.String("text", "hello roomlog 👋", "Message text to send")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateURL(*feedURL, "ws", "wss"); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*origin) != "" {
		if err := validateURL(*origin, "http", "https"); err != nil {
			fatalf("invalid -origin: %v", err)
		}
	}

	root := context.Background()

	room := strings.TrimSpace(*roomID)
	if room == "" {
		room = mustDiscoverRoom(root, *roomsURL, *timeout)
	}

	a := mustConnect(root, "A", *feedURL, *origin, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *feedURL, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s room=%s origin=%q\n", a.sessionID, b.sessionID, room, *origin)
	}

	snapA := a.mustOpen(root, room, *timeout)
	b.mustOpen(root, room, *timeout)

	clientMsgID := fmt.Sprintf("cmsg-%d", time.Now().UnixNano())
	msgID := a.mustSend(root, room, clientMsgID, *text, *timeout)

	up := b.mustReadUpdate(root, *timeout)
	if !containsMessage(up.Messages, msgID, *text) {
		fatalf("room_update on B does not carry %s (kind=%q)", msgID, up.Kind)
	}

	a.mustWrite(root, v1.TypeMessageEdit, v1.MessageEditPayload{RoomID: room, MessageID: msgID, Text: *text + " (edited)"}, *timeout)
	up = b.mustReadUpdate(root, *timeout)
	if up.Kind != "changed" || len(up.Messages) != 1 || up.Messages[0].Edits != 1 {
		fatalf("edit update mismatch: kind=%q messages=%d", up.Kind, len(up.Messages))
	}

	if n := len(snapA.Messages); n > 0 {
		since := snapA.Messages[n-1].ID
		b.mustWrite(root, v1.TypeRoomFetchSince, v1.RoomFetchSincePayload{RoomID: room, Since: since}, *timeout)
		env := b.mustReadUntilType(root, v1.TypeRoomSince, *timeout, skipUpdates)
		p := decode[v1.RoomViewPayload](env)
		if !containsMessage(p.Messages, msgID, "") {
			fatalf("room_since after %s does not carry %s", since, msgID)
		}
	}

	a.mustWrite(root, v1.TypeMessageDelete, v1.MessageDeletePayload{RoomID: room, MessageID: msgID}, *timeout)
	up = b.mustReadUpdate(root, *timeout)
	if up.Kind != "deleted" || up.MessageID != msgID {
		fatalf("delete update mismatch: kind=%q message_id=%q", up.Kind, up.MessageID)
	}

	b.mustWrite(root, v1.TypeRoomLoadOlder, v1.RoomRefPayload{RoomID: room}, *timeout)
	older := decode[v1.RoomViewPayload](b.mustReadUntilType(root, v1.TypeRoomOlder, *timeout, skipUpdates))

	fmt.Printf("OK: A=%s B=%s room=%s message_id=%s older=%d total=%d\n",
		a.sessionID, b.sessionID, room, msgID, len(older.Messages), older.Total)
}

var skipUpdates = map[string]struct{}{v1.TypeRoomUpdate: {}, v1.TypeMessageAck: {}}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	ok := false
	for _, s := range schemes {
		ok = ok || u.Scheme == s
	}
	if !ok {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustDiscoverRoom(parent context.Context, roomsURL string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, roomsURL, nil)
	if err != nil {
		fatalf("rooms request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("rooms request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatalf("rooms request: status=%d", resp.StatusCode)
	}

	var rooms []struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		fatalf("rooms decode: %v", err)
	}
	if len(rooms) == 0 {
		fatalf("no rooms open on the server; pass -room")
	}
	return rooms[0].RoomID
}

func mustConnect(parent context.Context, name, feedURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, feedURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	c.mustWrite(parent, v1.TypeHello, v1.HelloPayload{}, stepTimeout)
	ack := decode[v1.HelloAckPayload](c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil))
	if strings.TrimSpace(ack.SessionID) == "" || strings.TrimSpace(ack.Author) == "" {
		fatalf("hello_ack incomplete (%s): %+v", name, ack)
	}
	c.sessionID = ack.SessionID
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) mustOpen(parent context.Context, room string, stepTimeout time.Duration) v1.RoomViewPayload {
	c.mustWrite(parent, v1.TypeRoomOpen, v1.RoomRefPayload{RoomID: room}, stepTimeout)
	p := decode[v1.RoomViewPayload](c.mustReadUntilType(parent, v1.TypeRoomSnapshot, stepTimeout, nil))
	if p.RoomID != room {
		fatalf("snapshot room mismatch (%s): got=%q want=%q", c.name, p.RoomID, room)
	}
	if p.VisibleEnd-p.VisibleStart != len(p.Messages) {
		fatalf("snapshot range [%d,%d) does not match %d messages (%s)", p.VisibleStart, p.VisibleEnd, len(p.Messages), c.name)
	}
	return p
}

func (c *smokeClient) mustSend(parent context.Context, room, clientMsgID, text string, stepTimeout time.Duration) string {
	c.mustWrite(parent, v1.TypeMessageSend, v1.MessageSendPayload{
		RoomID:      room,
		ClientMsgID: clientMsgID,
		Text:        text,
	}, stepTimeout)

	skip := map[string]struct{}{v1.TypeRoomUpdate: {}}
	ack := decode[v1.MessageAckPayload](c.mustReadUntilType(parent, v1.TypeMessageAck, stepTimeout, skip))
	if ack.RoomID != room || ack.ClientMsgID != clientMsgID || ack.Op != "send" {
		fatalf("ack mismatch (%s): %+v", c.name, ack)
	}
	if strings.TrimSpace(ack.MessageID) == "" {
		fatalf("ack missing message_id (%s)", c.name)
	}
	return ack.MessageID
}

func (c *smokeClient) mustReadUpdate(parent context.Context, stepTimeout time.Duration) v1.RoomViewPayload {
	return decode[v1.RoomViewPayload](c.mustReadUntilType(parent, v1.TypeRoomUpdate, stepTimeout, nil))
}

func containsMessage(msgs []v1.Message, id, text string) bool {
	for _, m := range msgs {
		if m.ID == id && (text == "" || m.Text == text) {
			return true
		}
	}
	return false
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				ep := decode[v1.ErrorPayload](env)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func (c *smokeClient) mustWrite(parent context.Context, typ string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%s-%d", c.name, typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func decode[T any](env v1.Envelope) T {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal %s payload: %v", env.Type, err)
	}
	return p
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
