package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/auth"
	"github.com/retrobbs/retrobbs/internal/door"
	"github.com/retrobbs/retrobbs/internal/notify"
)

// Config tunes per-connection behavior. Zero values select the
// defaults.
type Config struct {
	HeartbeatInterval   time.Duration // default 30s
	IdleTimeout         time.Duration // default 60s
	SubscribesPerMinute int           // default 10
	EventsPerMinute     int           // default 100
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.SubscribesPerMinute == 0 {
		c.SubscribesPerMinute = 10
	}
	if c.EventsPerMinute == 0 {
		c.EventsPerMinute = 100
	}
	return c
}

// Handler upgrades HTTP requests to websocket clients of the broker.
type Handler struct {
	broker   *notify.Broker
	verifier auth.Verifier
	doors    *door.Manager
	cfg      Config
	logger   *logrus.Logger

	upgrader websocket.Upgrader
}

// NewHandler wires the websocket endpoint. doors may be nil when no
// door manager is running.
func NewHandler(broker *notify.Broker, verifier auth.Verifier, doors *door.Manager, cfg Config, logger *logrus.Logger) *Handler {
	return &Handler{
		broker:   broker,
		verifier: verifier,
		doors:    doors,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// clientMessage is the inbound frame: {action, ...}.
type clientMessage struct {
	Action string            `json:"action"`
	Token  string            `json:"token,omitempty"`
	Events []json.RawMessage `json:"events,omitempty"`
}

// subscribeSpec is one element of a subscribe request's events array
// when given in object form.
type subscribeSpec struct {
	Type   string            `json:"type"`
	Filter map[string]string `json:"filter,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := newConn(sock, h.cfg.EventsPerMinute)
	h.broker.RegisterClient(conn, "")
	conn.OnClose(func() { h.handleClose(conn) })

	h.logger.WithField("client", conn.ID()).Info("websocket client connected")

	go h.heartbeat(conn)
	h.readLoop(conn)
}

// readLoop drives the connection's state machine until the socket
// drops or the client goes idle past the deadline.
func (h *Handler) readLoop(conn *Conn) {
	defer conn.Close() //nolint:errcheck

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))

	subLimiter := newFixedWindow(h.cfg.SubscribesPerMinute, time.Minute)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithError(err).WithField("client", conn.ID()).Debug("websocket read failed")
			}
			return
		}
		// Any inbound frame counts as activity.
		_ = conn.ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, notify.CodeConnectionError, "malformed message", err.Error())
			continue
		}

		switch msg.Action {
		case "authenticate":
			h.handleAuthenticate(conn, msg.Token)
		case "subscribe":
			h.handleSubscribe(conn, subLimiter, msg.Events)
		case "unsubscribe":
			h.handleUnsubscribe(conn, msg.Events)
		case "pong":
			// Deadline already refreshed above.
		default:
			h.sendError(conn, notify.CodeConnectionError, "unknown action", msg.Action)
		}
	}
}

func (h *Handler) handleAuthenticate(conn *Conn, token string) {
	id, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.WithField("client", conn.ID()).Warn("authentication failed")
		_ = h.broker.BroadcastToClient(conn.ID(), notify.NewEvent(notify.EventAuthError,
			notify.AuthErrorPayload{Error: "invalid token"}))
		return
	}

	conn.setIdentity(id)
	h.broker.AuthenticateClient(conn.ID(), id.UserID)
	_ = h.broker.BroadcastToClient(conn.ID(), notify.NewEvent(notify.EventAuthSuccess,
		notify.AuthSuccessPayload{UserID: id.UserID, Handle: id.Handle}))

	h.broker.Broadcast(notify.NewEvent(notify.EventUserJoined,
		notify.UserJoinedPayload{UserID: id.UserID, Handle: id.Handle}))
}

func (h *Handler) handleSubscribe(conn *Conn, limiter *fixedWindow, events []json.RawMessage) {
	if _, ok := conn.Identity(); !ok {
		h.sendError(conn, notify.CodeAuthRequired, "authenticate before subscribing", "")
		return
	}
	if !limiter.Allow() {
		h.sendError(conn, notify.CodeRateLimitExceeded, "too many subscription requests", "")
		return
	}

	reqs := make([]notify.SubscribeRequest, 0, len(events))
	var malformed []string
	for _, raw := range events {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			reqs = append(reqs, notify.SubscribeRequest{EventType: name})
			continue
		}
		var spec subscribeSpec
		if err := json.Unmarshal(raw, &spec); err == nil && spec.Type != "" {
			reqs = append(reqs, notify.SubscribeRequest{EventType: spec.Type, Filter: spec.Filter})
			continue
		}
		malformed = append(malformed, string(raw))
	}

	res, err := h.broker.Subscribe(conn.ID(), reqs)
	if err != nil {
		h.sendError(conn, notify.CodeSubscriptionError, err.Error(), "")
		return
	}

	failed := append(res.Failed, malformed...)
	if len(res.Success) > 0 {
		_ = h.broker.BroadcastToClient(conn.ID(), notify.NewEvent(notify.EventSubscriptionSuccess,
			notify.SubscriptionSuccessPayload{Events: res.Success}))
	}
	if len(failed) > 0 {
		_ = h.broker.BroadcastToClient(conn.ID(), notify.NewEvent(notify.EventSubscriptionError,
			notify.SubscriptionErrorPayload{Error: "invalid subscription request", FailedEvents: failed}))
	}
}

func (h *Handler) handleUnsubscribe(conn *Conn, events []json.RawMessage) {
	var names []string
	for _, raw := range events {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		h.broker.Unsubscribe(conn.ID(), names)
	}
}

// handleClose runs after the socket drops: saves door sessions and
// announces the departure.
func (h *Handler) handleClose(conn *Conn) {
	h.logger.WithField("client", conn.ID()).Info("websocket client disconnected")

	id, ok := conn.Identity()
	if !ok {
		return
	}
	if h.doors != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.doors.DisconnectUser(ctx, id.UserID)
	}
	h.broker.Broadcast(notify.NewEvent(notify.EventUserLeft,
		notify.UserLeftPayload{UserID: id.UserID, Handle: id.Handle}))
}

// heartbeat pushes a heartbeat event on the configured interval until
// the connection closes. Heartbeats skip the event budget: the client
// must keep seeing them (and answering with pongs) even when a burst
// has spent its window.
func (h *Handler) heartbeat(conn *Conn) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			data, err := json.Marshal(notify.NewEvent(notify.EventHeartbeat, notify.HeartbeatPayload{}))
			if err != nil {
				return
			}
			if err := conn.sendDirect(data); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendError(conn *Conn, code notify.ErrorCode, message, details string) {
	if err := h.broker.SendError(conn.ID(), code, message, details); err != nil {
		h.logger.WithError(err).WithField("client", conn.ID()).Debug("error event send failed")
	}
}
