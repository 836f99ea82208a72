package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/retrobbs/retrobbs/internal/door"
)

// DoorSessionStore persists saved door sessions. It implements
// door.Repository.
type DoorSessionStore struct {
	db *DB
}

// DoorSessions returns the door-session repository backed by this
// database.
func (d *DB) DoorSessions() *DoorSessionStore {
	return &DoorSessionStore{db: d}
}

// Save upserts a saved session record. State is stored as JSON.
func (s *DoorSessionStore) Save(ctx context.Context, rec door.Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO door_sessions (session_id, user_id, door_id, door_name, state, entered_at, last_activity_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, last_activity_at = excluded.last_activity_at`,
		rec.SessionID, rec.UserID, rec.DoorID, rec.DoorName, string(state),
		rec.EnteredAt.UTC().Format(time.RFC3339), rec.LastActivityAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save door session: %w", err)
	}
	return nil
}

// LoadByUserAndDoor returns the saved session for a user and door, or
// nil if none exists.
func (s *DoorSessionStore) LoadByUserAndDoor(ctx context.Context, userID, doorID string) (*door.Record, error) {
	var (
		rec          door.Record
		state        string
		enteredAt    string
		lastActivity string
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT session_id, user_id, door_id, door_name, state, entered_at, last_activity_at
		 FROM door_sessions WHERE user_id = ? AND door_id = ?`,
		userID, doorID,
	).Scan(&rec.SessionID, &rec.UserID, &rec.DoorID, &rec.DoorName, &state, &enteredAt, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load door session: %w", err)
	}

	if err := json.Unmarshal([]byte(state), &rec.State); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	if rec.EnteredAt, err = time.Parse(time.RFC3339, enteredAt); err != nil {
		return nil, fmt.Errorf("parse entered_at: %w", err)
	}
	if rec.LastActivityAt, err = time.Parse(time.RFC3339, lastActivity); err != nil {
		return nil, fmt.Errorf("parse last_activity_at: %w", err)
	}
	return &rec, nil
}

// Delete removes a saved session.
func (s *DoorSessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM door_sessions WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return fmt.Errorf("delete door session: %w", err)
	}
	return nil
}
