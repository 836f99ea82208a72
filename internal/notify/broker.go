package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Conn is the transport surface the broker depends on. The websocket
// layer provides the real implementation; tests use in-memory conns.
type Conn interface {
	ID() string
	IsOpen() bool
	Send(data []byte) error
	Close() error
	// OnClose registers a hook invoked when the connection closes.
	OnClose(fn func())
}

// Subscription binds a client to an event type, optionally constrained
// by filter key/value pairs from the filter-field registry.
type Subscription struct {
	ClientID  string
	EventType EventType
	Filter    map[string]string
}

// Matches reports whether the subscription's filter accepts the
// payload. An empty filter matches everything; a filter key the
// payload cannot answer rejects the event.
func (s *Subscription) Matches(data any) bool {
	if len(s.Filter) == 0 {
		return true
	}
	f, ok := data.(Filterable)
	if !ok {
		return false
	}
	for key, want := range s.Filter {
		got, ok := f.FilterField(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// client tracks one registered connection. The client owns its
// subscription list; the per-type index holds references to the same
// values.
type client struct {
	conn          Conn
	userID        string
	authenticated bool
	subs          []*Subscription
}

// Broker errors.
var (
	ErrNoClient          = errors.New("no such client")
	ErrSubscriptionLimit = errors.New("subscription limit exceeded")
	ErrConnectionClosed  = errors.New("connection closed")
)

// DefaultMaxSubscriptions caps subscriptions per client.
const DefaultMaxSubscriptions = 50

// Broker routes events to subscribed clients. All registry mutations
// hold the write lock; broadcasts snapshot under the read lock and
// send after release so a slow client never stalls the registry.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]*client
	byType  map[EventType][]*Subscription

	maxSubs int
	logger  *logrus.Logger
}

// NewBroker creates an empty broker. maxSubs <= 0 selects the default
// per-client cap.
func NewBroker(maxSubs int, logger *logrus.Logger) *Broker {
	if maxSubs <= 0 {
		maxSubs = DefaultMaxSubscriptions
	}
	return &Broker{
		clients: make(map[string]*client),
		byType:  make(map[EventType][]*Subscription),
		maxSubs: maxSubs,
		logger:  logger,
	}
}

// RegisterClient adds a connection to the registry and installs a
// close hook that unregisters it.
func (b *Broker) RegisterClient(conn Conn, userID string) {
	b.mu.Lock()
	b.clients[conn.ID()] = &client{
		conn:          conn,
		userID:        userID,
		authenticated: userID != "",
	}
	b.mu.Unlock()

	conn.OnClose(func() { b.UnregisterClient(conn.ID()) })

	b.logger.WithField("client", conn.ID()).Debug("client registered")
}

// UnregisterClient removes a client and all its subscriptions from
// both indices. Safe to call more than once.
func (b *Broker) UnregisterClient(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[id]
	if !ok {
		return
	}
	for _, sub := range c.subs {
		b.unindex(sub)
	}
	delete(b.clients, id)

	b.logger.WithField("client", id).Debug("client unregistered")
}

// AuthenticateClient binds a user identity to a client. The
// authenticated flag flips exactly once.
func (b *Broker) AuthenticateClient(id, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[id]
	if !ok {
		b.logger.WithField("client", id).Warn("authenticate for unknown client")
		return
	}
	c.userID = userID
	c.authenticated = true
}

// SubscribeRequest asks for one subscription.
type SubscribeRequest struct {
	EventType string
	Filter    map[string]string
}

// SubscribeResult splits a batch into accepted and rejected types.
type SubscribeResult struct {
	Success []string
	Failed  []string
}

// Subscribe processes a batch of subscription requests for a client.
// The whole batch is rejected with ErrSubscriptionLimit if it would
// push the client past the per-client cap. Individual requests with
// unknown event types or disallowed filter keys land in Failed while
// the rest proceed.
func (b *Broker) Subscribe(id string, reqs []SubscribeRequest) (SubscribeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res SubscribeResult

	c, ok := b.clients[id]
	if !ok {
		return res, ErrNoClient
	}
	if len(c.subs)+len(reqs) > b.maxSubs {
		return res, fmt.Errorf("%w: %d active, %d requested, cap %d",
			ErrSubscriptionLimit, len(c.subs), len(reqs), b.maxSubs)
	}

	for _, req := range reqs {
		if !IsValidEventType(req.EventType) {
			res.Failed = append(res.Failed, req.EventType)
			continue
		}
		et := EventType(req.EventType)

		badFilter := false
		for key := range req.Filter {
			if !IsAllowedFilterField(et, key) {
				badFilter = true
				break
			}
		}
		if badFilter {
			res.Failed = append(res.Failed, req.EventType)
			continue
		}

		sub := &Subscription{ClientID: id, EventType: et, Filter: req.Filter}
		c.subs = append(c.subs, sub)
		b.byType[et] = append(b.byType[et], sub)
		res.Success = append(res.Success, req.EventType)
	}

	return res, nil
}

// Unsubscribe removes the client's subscriptions for the given event
// types from both indices.
func (b *Broker) Unsubscribe(id string, eventTypes []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[id]
	if !ok {
		return
	}

	drop := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		drop[EventType(t)] = true
	}

	kept := c.subs[:0]
	for _, sub := range c.subs {
		if drop[sub.EventType] {
			b.unindex(sub)
		} else {
			kept = append(kept, sub)
		}
	}
	c.subs = kept
}

// unindex removes sub from the per-type index, garbage-collecting
// empty lists. Caller holds the write lock.
func (b *Broker) unindex(sub *Subscription) {
	list := b.byType[sub.EventType]
	for i, s := range list {
		if s == sub {
			b.byType[sub.EventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.byType[sub.EventType]) == 0 {
		delete(b.byType, sub.EventType)
	}
}

// delivery pairs a live connection with a serialized event.
type delivery struct {
	clientID string
	conn     Conn
}

// Broadcast delivers an event to every subscriber whose filter matches
// the payload. Sends run concurrently after the registry lock is
// released; a failed send is logged and never affects other clients.
func (b *Broker) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.WithError(err).WithField("type", event.Type).Error("event marshal failed")
		return
	}

	b.mu.RLock()
	subs := b.byType[event.Type]
	targets := make([]delivery, 0, len(subs))
	for _, sub := range subs {
		if !sub.Matches(event.Data) {
			continue
		}
		c, ok := b.clients[sub.ClientID]
		if !ok || !c.conn.IsOpen() {
			continue
		}
		targets = append(targets, delivery{clientID: sub.ClientID, conn: c.conn})
	}
	b.mu.RUnlock()

	b.send(targets, event.Type, data)
}

// send fans the serialized event out to targets in parallel.
func (b *Broker) send(targets []delivery, t EventType, data []byte) {
	var g errgroup.Group
	for _, d := range targets {
		g.Go(func() error {
			if err := d.conn.Send(data); err != nil {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"client": d.clientID,
					"type":   t,
				}).Warn("event delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// BroadcastToClient sends an event to one client, bypassing
// subscription matching.
func (b *Broker) BroadcastToClient(id string, event Event) error {
	b.mu.RLock()
	c, ok := b.clients[id]
	b.mu.RUnlock()
	if !ok {
		return ErrNoClient
	}
	if !c.conn.IsOpen() {
		return ErrConnectionClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return c.conn.Send(data)
}

// BroadcastToClients sends an event to a set of clients.
func (b *Broker) BroadcastToClients(ids []string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.WithError(err).Error("event marshal failed")
		return
	}

	b.mu.RLock()
	targets := make([]delivery, 0, len(ids))
	for _, id := range ids {
		if c, ok := b.clients[id]; ok && c.conn.IsOpen() {
			targets = append(targets, delivery{clientID: id, conn: c.conn})
		}
	}
	b.mu.RUnlock()

	b.send(targets, event.Type, data)
}

// BroadcastToAuthenticated sends an event to every authenticated
// client, bypassing subscription matching.
func (b *Broker) BroadcastToAuthenticated(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.WithError(err).Error("event marshal failed")
		return
	}

	b.mu.RLock()
	targets := make([]delivery, 0, len(b.clients))
	for id, c := range b.clients {
		if c.authenticated && c.conn.IsOpen() {
			targets = append(targets, delivery{clientID: id, conn: c.conn})
		}
	}
	b.mu.RUnlock()

	b.send(targets, event.Type, data)
}

// SendError delivers an error event to one client.
func (b *Broker) SendError(id string, code ErrorCode, message, details string) error {
	return b.BroadcastToClient(id, NewEvent(EventError, ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	}))
}

// Stats is a point-in-time snapshot of broker state.
type Stats struct {
	Clients           int            `json:"clients"`
	Authenticated     int            `json:"authenticated"`
	Subscriptions     int            `json:"subscriptions"`
	EventTypes        int            `json:"eventTypes"`
	SubscribersByType map[string]int `json:"subscribersByType"`
	ActiveEventTypes  []string       `json:"activeEventTypes"`
}

// GetStats reports registry counts.
func (b *Broker) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		Clients:           len(b.clients),
		EventTypes:        len(b.byType),
		SubscribersByType: make(map[string]int, len(b.byType)),
	}
	for _, c := range b.clients {
		if c.authenticated {
			s.Authenticated++
		}
		s.Subscriptions += len(c.subs)
	}
	for t, subs := range b.byType {
		s.SubscribersByType[string(t)] = len(subs)
		s.ActiveEventTypes = append(s.ActiveEventTypes, string(t))
	}
	return s
}

// ClientUserID returns the user bound to a client, if any.
func (b *Broker) ClientUserID(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.clients[id]
	if !ok {
		return "", false
	}
	return c.userID, c.authenticated
}

// SubscriptionCount returns the number of active subscriptions held by
// a client.
func (b *Broker) SubscriptionCount(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if c, ok := b.clients[id]; ok {
		return len(c.subs)
	}
	return 0
}
