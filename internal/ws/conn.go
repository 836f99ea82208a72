// Package ws serves the notification wire protocol over websockets.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/retrobbs/retrobbs/internal/auth"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// maxMessageSize caps inbound client frames.
	maxMessageSize = 4096
)

// ErrRateLimited is returned by Send when the client's outbound event
// budget for the current window is spent.
var ErrRateLimited = errors.New("event rate limit exceeded")

// Conn adapts a websocket connection to the broker's transport
// surface. Writes are serialized; the broker may call Send from many
// goroutines at once.
type Conn struct {
	id string
	ws *websocket.Conn

	writeMu sync.Mutex
	events  *fixedWindow

	mu       sync.Mutex
	closed   bool
	hooks    []func()
	identity *auth.Identity

	done chan struct{}
}

func newConn(ws *websocket.Conn, eventsPerMinute int) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		events: newFixedWindow(eventsPerMinute, time.Minute),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send writes one text frame. Frames beyond the per-minute event
// budget are dropped with ErrRateLimited.
func (c *Conn) Send(data []byte) error {
	if !c.IsOpen() {
		return errors.New("connection closed")
	}
	if !c.events.Allow() {
		return ErrRateLimited
	}
	return c.sendDirect(data)
}

// sendDirect writes one text frame without charging the event budget.
// Heartbeats use it: a spent window must never starve liveness probes.
func (c *Conn) sendDirect(data []byte) error {
	if !c.IsOpen() {
		return errors.New("connection closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the socket and runs the close hooks exactly once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hooks := c.hooks
	c.mu.Unlock()

	close(c.done)
	err := c.ws.Close()
	for _, fn := range hooks {
		fn()
	}
	return err
}

// OnClose registers a hook run when the connection closes.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *Conn) setIdentity(id auth.Identity) {
	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()
}

// Identity returns the authenticated identity, if any.
func (c *Conn) Identity() (auth.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return auth.Identity{}, false
	}
	return *c.identity, true
}
