// Package door implements the door-game session lifecycle: per-user,
// per-door sessions with save on disconnect, resume on re-entry, and
// lazy inactivity timeout.
package door

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status tracks where a session sits in its lifecycle.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusSaved      Status = "SAVED"
	StatusTerminated Status = "TERMINATED"
)

// Turn is the result of one door interaction.
type Turn struct {
	Output string
	// Exit is set when the door signals the session is over.
	Exit bool
}

// Door is a pluggable door game. Introduce initializes a fresh
// session's state and returns the opening text; HandleInput runs one
// turn. Both are called with the session serialized, so doors may
// read and mutate s.State freely.
type Door interface {
	ID() string
	Name() string
	Introduce(ctx context.Context, s *Session) (string, error)
	HandleInput(ctx context.Context, s *Session, input string) (Turn, error)
}

// Record is the persisted form of a session, written on disconnect and
// read back on re-entry.
type Record struct {
	SessionID      string         `json:"sessionId"`
	UserID         string         `json:"userId"`
	DoorID         string         `json:"doorId"`
	DoorName       string         `json:"doorName"`
	State          map[string]any `json:"state"`
	EnteredAt      time.Time      `json:"enteredAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
}

// Repository persists saved sessions across disconnects.
// LoadByUserAndDoor returns (nil, nil) when no save exists.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	LoadByUserAndDoor(ctx context.Context, userID, doorID string) (*Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// Manager errors.
var (
	ErrAlreadyInSession = errors.New("already in a session for this door")
	ErrNoSession        = errors.New("no such session")
	ErrUnknownDoor      = errors.New("unknown door")
	ErrSessionTimeout   = errors.New("session timed out from inactivity")
)

// FailureError wraps an error raised by a door's own logic during a
// turn.
type FailureError struct {
	DoorID string
	Cause  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("door %s failed: %v", e.DoorID, e.Cause)
}

func (e *FailureError) Unwrap() error { return e.Cause }
