package door

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/ansi"
	"github.com/retrobbs/retrobbs/internal/notify"
)

// Session is one live door session. State is door-specific and
// JSON-serializable. The manager serializes all access through the
// session's own mutex; doors never see concurrent turns.
type Session struct {
	SessionID      string
	UserID         string
	Handle         string
	DoorID         string
	DoorName       string
	State          map[string]any
	EnteredAt      time.Time
	LastActivityAt time.Time

	mu     sync.Mutex
	status Status
}

// Status returns the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Publisher receives session lifecycle and output events. The
// notification broker satisfies this.
type Publisher interface {
	Broadcast(event notify.Event)
}

// DefaultIdleTimeout is how long a session may sit idle before the
// next interaction terminates it.
const DefaultIdleTimeout = 10 * time.Minute

// Manager owns the live-session registry and drives door turns. The
// registry mutex covers only map membership; each turn runs under its
// session's own lock so a slow door never blocks other sessions.
type Manager struct {
	mu        sync.Mutex
	byUser    map[string]*Session // key: userID + "\x00" + doorID
	byID      map[string]*Session
	doors     map[string]Door
	repo      Repository
	publisher Publisher

	idleTimeout time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

// NewManager creates a manager with no doors registered. idleTimeout
// <= 0 selects the default.
func NewManager(repo Repository, publisher Publisher, idleTimeout time.Duration, logger *logrus.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		byUser:      make(map[string]*Session),
		byID:        make(map[string]*Session),
		doors:       make(map[string]Door),
		repo:        repo,
		publisher:   publisher,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterDoor adds a door to the registry. Later registrations with
// the same ID replace earlier ones.
func (m *Manager) RegisterDoor(d Door) {
	m.mu.Lock()
	m.doors[d.ID()] = d
	m.mu.Unlock()
	m.logger.WithFields(logrus.Fields{"door": d.ID(), "name": d.Name()}).Info("door registered")
}

// Doors lists the registered door IDs.
func (m *Manager) Doors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.doors))
	for id := range m.doors {
		ids = append(ids, id)
	}
	return ids
}

func userKey(userID, doorID string) string { return userID + "\x00" + doorID }

// Enter starts or resumes a session for the user in the given door and
// returns the session plus the introduction or resume banner. A still
// fresh ACTIVE session for the same user and door is rejected with
// ErrAlreadyInSession; an ACTIVE session past the idle threshold is
// terminated first and entry proceeds.
func (m *Manager) Enter(ctx context.Context, userID, handle, doorID string) (*Session, string, error) {
	m.mu.Lock()
	d, ok := m.doors[doorID]
	if !ok {
		m.mu.Unlock()
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownDoor, doorID)
	}
	if existing, ok := m.byUser[userKey(userID, doorID)]; ok {
		if m.now().Sub(existing.LastActivityAt) <= m.idleTimeout {
			m.mu.Unlock()
			return nil, "", ErrAlreadyInSession
		}
		m.removeLocked(existing)
		m.mu.Unlock()
		m.expire(ctx, existing)
		m.mu.Lock()
	}
	m.mu.Unlock()

	// Check for a saved session outside the registry lock.
	saved, err := m.repo.LoadByUserAndDoor(ctx, userID, doorID)
	if err != nil {
		return nil, "", &FailureError{DoorID: doorID, Cause: err}
	}

	now := m.now()
	var (
		sess   *Session
		output string
	)
	if saved != nil {
		sess = &Session{
			SessionID:      saved.SessionID,
			UserID:         userID,
			Handle:         handle,
			DoorID:         doorID,
			DoorName:       d.Name(),
			State:          saved.State,
			EnteredAt:      saved.EnteredAt,
			LastActivityAt: now,
			status:         StatusActive,
		}
		output = resumeBanner(d.Name())
	} else {
		sess = &Session{
			SessionID:      uuid.NewString(),
			UserID:         userID,
			Handle:         handle,
			DoorID:         doorID,
			DoorName:       d.Name(),
			State:          make(map[string]any),
			EnteredAt:      now,
			LastActivityAt: now,
			status:         StatusActive,
		}
		intro, err := d.Introduce(ctx, sess)
		if err != nil {
			return nil, "", &FailureError{DoorID: doorID, Cause: err}
		}
		output = intro
	}

	m.mu.Lock()
	if _, ok := m.byUser[userKey(userID, doorID)]; ok {
		// Lost a race with a concurrent enter for the same pair.
		m.mu.Unlock()
		return nil, "", ErrAlreadyInSession
	}
	m.byUser[userKey(userID, doorID)] = sess
	m.byID[sess.SessionID] = sess
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"session": sess.SessionID,
		"user":    userID,
		"door":    doorID,
		"resumed": saved != nil,
	}).Info("door session entered")

	m.publisher.Broadcast(notify.NewEvent(notify.EventDoorEntered, notify.DoorEnteredPayload{
		Handle:   handle,
		DoorID:   doorID,
		DoorName: d.Name(),
	}))
	m.publishUpdate(sess, output)

	return sess, output, nil
}

// Input runs one turn of the session's door. An idle-expired session
// is terminated instead and ErrSessionTimeout returned. The returned
// bool reports whether the door signalled exit on this turn.
func (m *Manager) Input(ctx context.Context, sessionID, input string) (string, bool, error) {
	sess, d, err := m.lookup(sessionID)
	if err != nil {
		return "", false, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.status != StatusActive {
		return "", false, ErrNoSession
	}
	if m.now().Sub(sess.LastActivityAt) > m.idleTimeout {
		m.terminateLocked(ctx, sess)
		return "", false, ErrSessionTimeout
	}

	turn, err := d.HandleInput(ctx, sess, input)
	if err != nil {
		return "", false, &FailureError{DoorID: sess.DoorID, Cause: err}
	}
	sess.LastActivityAt = m.now()

	if turn.Exit {
		m.terminateLocked(ctx, sess)
		m.publishUpdate(sess, turn.Output)
		m.publisher.Broadcast(notify.NewEvent(notify.EventDoorExited, notify.DoorExitedPayload{
			Handle:   sess.Handle,
			DoorID:   sess.DoorID,
			DoorName: sess.DoorName,
		}))
		return turn.Output, true, nil
	}

	m.publishUpdate(sess, turn.Output)
	return turn.Output, false, nil
}

// Exit explicitly ends a session, discarding any persisted save.
func (m *Manager) Exit(ctx context.Context, sessionID string) error {
	sess, _, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != StatusActive {
		return ErrNoSession
	}
	m.terminateLocked(ctx, sess)

	m.publisher.Broadcast(notify.NewEvent(notify.EventDoorExited, notify.DoorExitedPayload{
		Handle:   sess.Handle,
		DoorID:   sess.DoorID,
		DoorName: sess.DoorName,
	}))
	return nil
}

// Disconnect saves the session for later resume and drops it from the
// live registry. Called by the transport layer when a connection
// closes mid-session.
func (m *Manager) Disconnect(ctx context.Context, sessionID string) error {
	sess, _, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != StatusActive {
		return ErrNoSession
	}

	rec := Record{
		SessionID:      sess.SessionID,
		UserID:         sess.UserID,
		DoorID:         sess.DoorID,
		DoorName:       sess.DoorName,
		State:          sess.State,
		EnteredAt:      sess.EnteredAt,
		LastActivityAt: sess.LastActivityAt,
	}
	if err := m.repo.Save(ctx, rec); err != nil {
		m.logger.WithError(err).WithField("session", sessionID).Error("session save failed")
		return &FailureError{DoorID: sess.DoorID, Cause: err}
	}
	sess.status = StatusSaved

	m.mu.Lock()
	m.removeLocked(sess)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"door":    sess.DoorID,
	}).Info("door session saved on disconnect")
	return nil
}

// DisconnectUser saves every live session the user holds. Used by the
// connection close hook.
func (m *Manager) DisconnectUser(ctx context.Context, userID string) {
	m.mu.Lock()
	var ids []string
	for _, sess := range m.byID {
		if sess.UserID == userID {
			ids = append(ids, sess.SessionID)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Disconnect(ctx, id); err != nil {
			m.logger.WithError(err).WithField("session", id).Warn("disconnect save failed")
		}
	}
}

// SessionInfo is a read-only snapshot of a live session.
type SessionInfo struct {
	SessionID      string    `json:"sessionId"`
	UserID         string    `json:"userId"`
	Handle         string    `json:"handle"`
	DoorID         string    `json:"doorId"`
	DoorName       string    `json:"doorName"`
	EnteredAt      time.Time `json:"enteredAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// ActiveSessions snapshots every live session.
func (m *Manager) ActiveSessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, SessionInfo{
			SessionID:      s.SessionID,
			UserID:         s.UserID,
			Handle:         s.Handle,
			DoorID:         s.DoorID,
			DoorName:       s.DoorName,
			EnteredAt:      s.EnteredAt,
			LastActivityAt: s.LastActivityAt,
		})
	}
	return out
}

// lookup finds a live session and its door.
func (m *Manager) lookup(sessionID string) (*Session, Door, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[sessionID]
	if !ok {
		return nil, nil, ErrNoSession
	}
	return sess, m.doors[sess.DoorID], nil
}

// terminateLocked ends the session and deletes any persisted save.
// Caller holds the session lock.
func (m *Manager) terminateLocked(ctx context.Context, sess *Session) {
	sess.status = StatusTerminated
	if err := m.repo.Delete(ctx, sess.SessionID); err != nil {
		m.logger.WithError(err).WithField("session", sess.SessionID).Warn("saved session delete failed")
	}

	m.mu.Lock()
	m.removeLocked(sess)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"session": sess.SessionID,
		"door":    sess.DoorID,
	}).Info("door session terminated")
}

// expire terminates an idle session found during Enter.
func (m *Manager) expire(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != StatusActive {
		return
	}
	sess.status = StatusTerminated
	if err := m.repo.Delete(ctx, sess.SessionID); err != nil {
		m.logger.WithError(err).WithField("session", sess.SessionID).Warn("saved session delete failed")
	}
}

// removeLocked drops the session from both registry maps. Caller
// holds the registry lock.
func (m *Manager) removeLocked(sess *Session) {
	delete(m.byUser, userKey(sess.UserID, sess.DoorID))
	delete(m.byID, sess.SessionID)
}

// publishUpdate emits the turn output on the event bus so the user's
// other connections can mirror the door.
func (m *Manager) publishUpdate(sess *Session, output string) {
	m.publisher.Broadcast(notify.NewEvent(notify.EventDoorUpdate, notify.DoorUpdatePayload{
		SessionID: sess.SessionID,
		DoorID:    sess.DoorID,
		DoorName:  sess.DoorName,
		Output:    output,
	}))
}

func resumeBanner(doorName string) string {
	return ansi.Colorize(fmt.Sprintf("* Resuming your %s session where you left off... *", doorName), ansi.Cyan)
}
