// Package feed is the WebSocket entrypoint renderers use to follow rooms.
//
// A renderer connects with the roomlog.feed.v1 subprotocol, says hello, opens one or
// more rooms and then receives room_update envelopes for every change. Paging
// (room_load_older, room_fetch_since) and writes (message_send/edit/delete) are
// routed to the session.Hub.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/session"
	v1 "roomlog/shared/contracts/feed/v1"
)

// Gateway upgrades HTTP requests to feed sessions.
//
// It enforces origin policy, subprotocol selection, rate limits and heartbeats,
// and routes validated envelopes to the Hub.
type Gateway struct {
	log     *slog.Logger
	hub     *session.Hub
	metrics *Metrics
	now     func() time.Time

	cfg Config

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics records feed activity into m.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway constructs a gateway in front of hub.
func NewGateway(log *slog.Logger, hub *session.Hub, cfg Config, opts ...Option) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	cfg = cfg.normalized()

	g := &Gateway{
		log:            log,
		hub:            hub,
		now:            func() time.Time { return time.Now().UTC() },
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// conn is the per-connection state shared by the read loop and shutdown.
type conn struct {
	client *Client

	mu    sync.Mutex
	rooms map[ids.ID]*session.Room
}

func (c *conn) joined(id ids.ID) (*session.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[id]
	return r, ok
}

func (c *conn) add(r *session.Room) {
	c.mu.Lock()
	c.rooms[r.ID()] = r
	c.mu.Unlock()
}

func (c *conn) remove(id ids.ID) (*session.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[id]
	delete(c.rooms, id)
	return r, ok
}

// leaveAll unsubscribes from every room. It must run before client.Close.
func (c *conn) leaveAll() {
	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[ids.ID]*session.Room)
	c.mu.Unlock()

	for _, r := range rooms {
		r.Unsubscribe(c.client.SessionID)
	}
}

// HandleWS upgrades an HTTP request to a feed session and runs its loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.metrics.reject("origin")
		g.log.Info("feed.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.metrics.reject("accept")
		g.log.Error("feed.accept.fail", "err", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := ws.Subprotocol(); sp != v1.Subprotocol {
		g.metrics.reject("subprotocol")
		g.log.Info("feed.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = ws.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	ws.SetReadLimit(maxFrameBytes)

	sessionID := uuid.NewString()
	c := &conn{
		client: NewClient(sessionID, g.cfg.SendQueueSize),
		rooms:  make(map[ids.ID]*session.Room),
	}
	client := c.client

	g.metrics.sessionOpened()
	defer g.metrics.sessionClosed()
	g.log.Info("feed.session.open", "session_id", sessionID, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Room fanout may still hold the client until leaveAll returns.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			c.leaveAll()
			client.Close()
			_ = ws.Close(code, reason)
			cancel()
			g.log.Info("feed.session.close", "session_id", sessionID, "reason", reason)
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWrites, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, ws, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("feed.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := ws.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("feed.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, ws)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("feed.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := g.now()
		if !rl.Allow(env.Type, now) {
			g.metrics.reject("rate")
			g.log.Info("feed.rate_limited", "session_id", sessionID, "type", env.Type)
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}
		g.metrics.received(env.Type)

		switch env.Type {
		case v1.TypeHello:
			if err := g.onHello(ctx, client, env, now); err != nil {
				g.sendFailure(ctx, client, "hello_failed", err)
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}

		case v1.TypeRoomOpen:
			if err := g.onRoomOpen(ctx, c, env, now); err != nil {
				g.sendFailure(ctx, client, "open_failed", err)
			}

		case v1.TypeRoomClose:
			if err := g.onRoomClose(c, env); err != nil {
				g.sendFailure(ctx, client, "close_failed", err)
			}

		case v1.TypeRoomLoadOlder:
			if err := g.onLoadOlder(ctx, c, env, now); err != nil {
				g.sendFailure(ctx, client, "older_failed", err)
			}

		case v1.TypeRoomFetchSince:
			if err := g.onFetchSince(ctx, c, env, now); err != nil {
				g.sendFailure(ctx, client, "since_failed", err)
			}

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, c, env, now); err != nil {
				g.sendFailure(ctx, client, "send_failed", err)
			}

		case v1.TypeMessageEdit:
			if err := g.onMessageEdit(ctx, c, env, now); err != nil {
				g.sendFailure(ctx, client, "edit_failed", err)
			}

		case v1.TypeMessageDelete:
			if err := g.onMessageDelete(ctx, c, env, now); err != nil {
				g.sendFailure(ctx, client, "delete_failed", err)
			}

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

// ---- send helpers ----

// errNotJoined is returned for room scoped requests on a room the session did not open.
var errNotJoined = errors.New("room not open: send room_open first")

// errNoHello is returned for writes before the session said hello.
var errNoHello = errors.New("no author: send hello first")

// sendFailure reports err to the renderer. Server side failures are logged and
// reported without detail.
func (g *Gateway) sendFailure(ctx context.Context, client *Client, code string, err error) {
	if isRequestError(err) {
		g.trySendError(ctx, client, code, err.Error())
		return
	}
	g.log.Warn("feed.request.fail", "session_id", client.SessionID, "code", code, "err", err)
	g.trySendError(ctx, client, code, "internal error")
}

func isRequestError(err error) bool {
	return session.IsClientError(err) ||
		errors.Is(err, errNotJoined) ||
		errors.Is(err, errNoHello) ||
		errors.Is(err, errBadRequest)
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg}, g.now())
	_ = g.enqueue(ctx, client, env)
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	return client.offer(env)
}

// trimmed returns s without surrounding space, or an error naming field when empty.
func trimmed(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing %s: %w", field, errBadRequest)
	}
	return s, nil
}
