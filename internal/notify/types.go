// Package notify defines the board's event schema and the broker that
// fans events out to connected clients. Event types form a closed
// enum; the filter-field registry beside it is the single source of
// truth for which payload keys a subscription filter may constrain.
package notify

import "time"

// EventType tags a notification event.
type EventType string

// Domain events: clients may subscribe to these.
const (
	EventMessageNew         EventType = "message.new"
	EventMessageReply       EventType = "message.reply"
	EventUserJoined         EventType = "user.joined"
	EventUserLeft           EventType = "user.left"
	EventSystemAnnouncement EventType = "system.announcement"
	EventSystemShutdown     EventType = "system.shutdown"
	EventDoorUpdate         EventType = "door.update"
	EventDoorEntered        EventType = "door.entered"
	EventDoorExited         EventType = "door.exited"
)

// Connection-lifecycle events: sent by the server, never subscribable.
const (
	EventAuthSuccess         EventType = "auth.success"
	EventAuthError           EventType = "auth.error"
	EventSubscriptionSuccess EventType = "subscription.success"
	EventSubscriptionError   EventType = "subscription.error"
	EventHeartbeat           EventType = "heartbeat"
	EventError               EventType = "error"
)

// filterFields maps each subscribable event type to the payload keys
// a subscription filter may constrain. A nil entry means the event is
// a broadcast: delivered to all authenticated clients, unfiltered.
var filterFields = map[EventType][]string{
	EventMessageNew:         {"messageBaseId"},
	EventMessageReply:       {"messageBaseId", "parentId"},
	EventUserJoined:         nil,
	EventUserLeft:           nil,
	EventSystemAnnouncement: nil,
	EventSystemShutdown:     nil,
	EventDoorUpdate:         {"sessionId", "doorId"},
	EventDoorEntered:        nil,
	EventDoorExited:         nil,
}

// IsValidEventType reports whether s names a subscribable domain
// event.
func IsValidEventType(s string) bool {
	_, ok := filterFields[EventType(s)]
	return ok
}

// IsLifecycleEventType reports whether t is a connection-lifecycle
// event.
func IsLifecycleEventType(t EventType) bool {
	switch t {
	case EventAuthSuccess, EventAuthError, EventSubscriptionSuccess,
		EventSubscriptionError, EventHeartbeat, EventError:
		return true
	}
	return false
}

// IsBroadcast reports whether t delivers to every authenticated
// client regardless of filters.
func IsBroadcast(t EventType) bool {
	fields, ok := filterFields[t]
	return ok && len(fields) == 0
}

// FilterFields returns the allowed filter keys for an event type.
func FilterFields(t EventType) []string {
	return filterFields[t]
}

// IsAllowedFilterField reports whether key may appear in a filter for
// event type t.
func IsAllowedFilterField(t EventType, key string) bool {
	for _, f := range filterFields[t] {
		if f == key {
			return true
		}
	}
	return false
}

// Event is the wire unit delivered to clients. Data holds the
// event-type-specific payload. Events are immutable once created.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent stamps an event with the current UTC instant.
func NewEvent(t EventType, data any) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// Filterable payloads expose their filterable fields by registry key.
type Filterable interface {
	FilterField(key string) (string, bool)
}

// MessageNewPayload announces a new message in a base.
type MessageNewPayload struct {
	MessageID       string `json:"messageId"`
	MessageBaseID   string `json:"messageBaseId"`
	MessageBaseName string `json:"messageBaseName"`
	Subject         string `json:"subject"`
	AuthorHandle    string `json:"authorHandle"`
	CreatedAt       string `json:"createdAt"`
}

func (p MessageNewPayload) FilterField(key string) (string, bool) {
	if key == "messageBaseId" {
		return p.MessageBaseID, true
	}
	return "", false
}

// MessageReplyPayload announces a reply to an existing message.
type MessageReplyPayload struct {
	MessageID     string `json:"messageId"`
	ParentID      string `json:"parentId"`
	MessageBaseID string `json:"messageBaseId"`
	Subject       string `json:"subject"`
	AuthorHandle  string `json:"authorHandle"`
	CreatedAt     string `json:"createdAt"`
}

func (p MessageReplyPayload) FilterField(key string) (string, bool) {
	switch key {
	case "messageBaseId":
		return p.MessageBaseID, true
	case "parentId":
		return p.ParentID, true
	}
	return "", false
}

// UserJoinedPayload announces a user coming online.
type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Handle string `json:"handle"`
}

// UserLeftPayload announces a user going offline.
type UserLeftPayload struct {
	UserID string `json:"userId"`
	Handle string `json:"handle"`
}

// AnnouncementPayload carries a system-wide announcement.
type AnnouncementPayload struct {
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

// ShutdownPayload warns clients of an imminent shutdown.
type ShutdownPayload struct {
	Message    string `json:"message"`
	ShutdownAt string `json:"shutdownAt,omitempty"`
}

// DoorUpdatePayload carries per-session door output.
type DoorUpdatePayload struct {
	SessionID string `json:"sessionId"`
	DoorID    string `json:"doorId"`
	DoorName  string `json:"doorName"`
	Output    string `json:"output,omitempty"`
}

func (p DoorUpdatePayload) FilterField(key string) (string, bool) {
	switch key {
	case "sessionId":
		return p.SessionID, true
	case "doorId":
		return p.DoorID, true
	}
	return "", false
}

// DoorEnteredPayload announces a user entering a door.
type DoorEnteredPayload struct {
	Handle   string `json:"handle"`
	DoorID   string `json:"doorId"`
	DoorName string `json:"doorName"`
}

// DoorExitedPayload announces a user leaving a door.
type DoorExitedPayload struct {
	Handle   string `json:"handle"`
	DoorID   string `json:"doorId"`
	DoorName string `json:"doorName"`
}

// AuthSuccessPayload confirms a successful authenticate action.
type AuthSuccessPayload struct {
	UserID string `json:"userId"`
	Handle string `json:"handle"`
}

// AuthErrorPayload reports a failed authenticate action.
type AuthErrorPayload struct {
	Error string `json:"error"`
}

// SubscriptionSuccessPayload lists the accepted event types.
type SubscriptionSuccessPayload struct {
	Events []string `json:"events"`
}

// SubscriptionErrorPayload lists the rejected event types.
type SubscriptionErrorPayload struct {
	Error        string   `json:"error"`
	FailedEvents []string `json:"failedEvents"`
}

// HeartbeatPayload is empty; the event's timestamp carries the beat.
type HeartbeatPayload struct{}

// ErrorCode is a stable wire-level error identifier.
type ErrorCode string

const (
	CodeConnectionError   ErrorCode = "CONNECTION_ERROR"
	CodeSubscriptionError ErrorCode = "SUBSCRIPTION_ERROR"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeAuthRequired      ErrorCode = "AUTHENTICATION_REQUIRED"
	CodeInvalidEventType  ErrorCode = "INVALID_EVENT_TYPE"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorPayload is the data of an "error" event.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}
