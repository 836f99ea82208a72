// Package bbs composes the board's domain pieces into interactive
// terminal sessions: one command interpreter per connected user.
package bbs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/ansi"
	"github.com/retrobbs/retrobbs/internal/auth"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/door"
	"github.com/retrobbs/retrobbs/internal/frame"
	"github.com/retrobbs/retrobbs/internal/notify"
	"github.com/retrobbs/retrobbs/internal/render"
	"github.com/retrobbs/retrobbs/internal/sysop"
)

// Service owns the shared collaborators terminal sessions draw on.
type Service struct {
	board  string
	render *render.Service
	broker *notify.Broker
	doors  *door.Manager
	sysop  *sysop.SysOp
	db     *db.DB
	logger *logrus.Logger
}

// NewService wires the terminal service.
func NewService(board string, r *render.Service, broker *notify.Broker, doors *door.Manager, so *sysop.SysOp, database *db.DB, logger *logrus.Logger) *Service {
	return &Service{
		board:  board,
		render: r,
		broker: broker,
		doors:  doors,
		sysop:  so,
		db:     database,
		logger: logger,
	}
}

// TermSession is one user's interactive session. Lines are handled one
// at a time; while a door is open, input is routed into it.
type TermSession struct {
	svc  *Service
	user auth.Identity
	rctx render.Context

	mu   sync.Mutex
	door *door.Session
}

// NewSession starts a terminal session for an authenticated user.
func (s *Service) NewSession(user auth.Identity, rctx render.Context) *TermSession {
	return &TermSession{svc: s, user: user, rctx: rctx}
}

// Welcome renders the login banner followed by the SysOp's greeting.
func (ts *TermSession) Welcome(ctx context.Context) (string, error) {
	banner, err := ts.svc.render.RenderFrameWithTitle(
		ts.svc.board,
		[]frame.Line{
			{Text: fmt.Sprintf("Welcome aboard, %s!", ts.user.Handle), Align: frame.AlignCenter, Color: "green"},
			{Text: "Type HELP for the command list.", Align: frame.AlignCenter, Color: "gray"},
		},
		"cyan",
		frame.Config{Width: 60, Style: frame.StyleDouble},
		ts.rctx,
	)
	if err != nil {
		return "", err
	}

	greeting := ts.svc.sysop.Welcome(ctx, ts.user.Handle)
	if ts.rctx.Type == render.ContextWeb {
		greeting = ansi.ToHTML(greeting)
	}
	ending := ts.svc.render.LineEnding(ts.rctx)
	return banner + ending + greeting, nil
}

// HandleLine interprets one line of user input. done is true once the
// user has signed off.
func (ts *TermSession) HandleLine(ctx context.Context, line string) (output string, done bool, err error) {
	line = strings.TrimSpace(line)

	ts.mu.Lock()
	inDoor := ts.door
	ts.mu.Unlock()
	if inDoor != nil {
		return ts.handleDoorInput(ctx, inDoor, line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "", "help", "menu", "?":
		out, err := ts.renderHelp()
		return out, false, err
	case "who":
		out, err := ts.renderWho()
		return out, false, err
	case "doors":
		out, err := ts.renderDoors()
		return out, false, err
	case "open":
		return ts.enterDoor(ctx, strings.TrimSpace(rest))
	case "bases":
		out, err := ts.renderBases(ctx)
		return out, false, err
	case "read":
		out, err := ts.renderMessages(ctx, strings.TrimSpace(rest))
		return out, false, err
	case "page":
		return ts.pageSysop(ctx, strings.TrimSpace(rest))
	case "quit", "logoff", "bye":
		return ts.text(fmt.Sprintf("Goodbye, %s. NO CARRIER", ts.user.Handle), "yellow"), true, nil
	default:
		return ts.text(fmt.Sprintf("Unknown command %q. Type HELP for the command list.", cmd), "red"), false, nil
	}
}

// Close saves any open door session. Called when the connection drops
// without a clean sign-off.
func (ts *TermSession) Close(ctx context.Context) {
	ts.mu.Lock()
	open := ts.door
	ts.door = nil
	ts.mu.Unlock()

	if open == nil {
		return
	}
	if err := ts.svc.doors.Disconnect(ctx, open.SessionID); err != nil {
		ts.svc.logger.WithError(err).WithField("session", open.SessionID).Warn("door save on close failed")
	}
}

// InDoor reports whether input is currently routed into a door.
func (ts *TermSession) InDoor() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.door != nil
}

func (ts *TermSession) handleDoorInput(ctx context.Context, sess *door.Session, line string) (string, bool, error) {
	out, exited, err := ts.svc.doors.Input(ctx, sess.SessionID, line)
	if err != nil {
		ts.mu.Lock()
		ts.door = nil
		ts.mu.Unlock()
		if errors.Is(err, door.ErrSessionTimeout) {
			return ts.text("Your door session timed out from inactivity.", "yellow"), false, nil
		}
		if errors.Is(err, door.ErrNoSession) {
			return ts.text("The door closed unexpectedly.", "red"), false, nil
		}
		return "", false, err
	}
	if exited {
		ts.mu.Lock()
		ts.door = nil
		ts.mu.Unlock()
	}
	if ts.rctx.Type == render.ContextWeb {
		out = ansi.ToHTML(out)
	}
	return out, false, nil
}

func (ts *TermSession) enterDoor(ctx context.Context, doorID string) (string, bool, error) {
	if doorID == "" {
		return ts.text("Usage: OPEN <door>", "gray"), false, nil
	}

	sess, intro, err := ts.svc.doors.Enter(ctx, ts.user.UserID, ts.user.Handle, doorID)
	if err != nil {
		switch {
		case errors.Is(err, door.ErrUnknownDoor):
			return ts.text(fmt.Sprintf("No door named %q. Try DOORS.", doorID), "red"), false, nil
		case errors.Is(err, door.ErrAlreadyInSession):
			return ts.text("You already have a session in that door.", "red"), false, nil
		}
		return "", false, err
	}

	ts.mu.Lock()
	ts.door = sess
	ts.mu.Unlock()

	if ts.rctx.Type == render.ContextWeb {
		intro = ansi.ToHTML(intro)
	}
	return intro, false, nil
}

func (ts *TermSession) pageSysop(ctx context.Context, message string) (string, bool, error) {
	if message == "" {
		return ts.text("Usage: PAGE <message>", "gray"), false, nil
	}

	response, err := ts.svc.sysop.Page(ctx, ts.user.Handle, message)
	if err != nil {
		var typed *ai.Error
		if errors.As(err, &typed) && typed.Kind == ai.KindTimeout {
			return ts.text("The SysOp is away from the console...", "yellow"), false, nil
		}
		return "", false, err
	}
	if ts.rctx.Type == render.ContextWeb {
		response = ansi.ToHTML(response)
	}
	return response, false, nil
}

func (ts *TermSession) renderHelp() (string, error) {
	return ts.svc.render.RenderFrameWithTitle(
		"Main Menu",
		[]frame.Line{
			{Text: "HELP          this menu"},
			{Text: "WHO           who is online"},
			{Text: "BASES         list message bases"},
			{Text: "READ <base>   recent messages in a base"},
			{Text: "DOORS         list door games"},
			{Text: "OPEN <door>   enter a door game"},
			{Text: "PAGE <text>   page the SysOp"},
			{Text: "QUIT          sign off"},
		},
		"yellow",
		frame.Config{Width: 60},
		ts.rctx,
	)
}

func (ts *TermSession) renderWho() (string, error) {
	stats := ts.svc.broker.GetStats()
	lines := []frame.Line{
		{Text: fmt.Sprintf("Callers online: %d", stats.Clients), Color: "green"},
		{Text: fmt.Sprintf("Logged in:      %d", stats.Authenticated)},
	}
	for _, info := range ts.svc.doors.ActiveSessions() {
		lines = append(lines, frame.Line{
			Text:  fmt.Sprintf("%s is playing %s", info.Handle, info.DoorName),
			Color: "cyan",
		})
	}
	return ts.svc.render.RenderFrameWithTitle("Who's Online", lines, "cyan",
		frame.Config{Width: 60}, ts.rctx)
}

func (ts *TermSession) renderDoors() (string, error) {
	ids := ts.svc.doors.Doors()
	lines := make([]frame.Line, 0, len(ids)+1)
	if len(ids) == 0 {
		lines = append(lines, frame.Line{Text: "No doors are installed.", Color: "gray"})
	}
	for _, id := range ids {
		lines = append(lines, frame.Line{Text: id, Color: "magenta"})
	}
	return ts.svc.render.RenderFrameWithTitle("Door Games", lines, "magenta",
		frame.Config{Width: 60}, ts.rctx)
}

func (ts *TermSession) renderBases(ctx context.Context) (string, error) {
	bases, err := ts.svc.db.ListMessageBases(ctx)
	if err != nil {
		return "", err
	}
	lines := make([]frame.Line, 0, len(bases)+1)
	if len(bases) == 0 {
		lines = append(lines, frame.Line{Text: "No message bases yet.", Color: "gray"})
	}
	for _, b := range bases {
		text := b.Name
		if b.Description != "" {
			text += " - " + b.Description
		}
		lines = append(lines, frame.Line{Text: text})
	}
	return ts.svc.render.RenderFrameWithTitle("Message Bases", lines, "green",
		frame.Config{Width: 60}, ts.rctx)
}

func (ts *TermSession) renderMessages(ctx context.Context, baseID string) (string, error) {
	if baseID == "" {
		return ts.text("Usage: READ <base>", "gray"), nil
	}
	base, err := ts.svc.db.GetMessageBase(ctx, baseID)
	if err != nil {
		return "", err
	}
	if base == nil {
		return ts.text(fmt.Sprintf("No base named %q. Try BASES.", baseID), "red"), nil
	}

	msgs, err := ts.svc.db.ListMessages(ctx, baseID, 10, 0)
	if err != nil {
		return "", err
	}
	lines := make([]frame.Line, 0, len(msgs)+1)
	if len(msgs) == 0 {
		lines = append(lines, frame.Line{Text: "No messages yet. Be the first to post!", Color: "gray"})
	}
	for _, m := range msgs {
		lines = append(lines, frame.Line{
			Text: ansi.Truncate(fmt.Sprintf("%s  [%s]", m.Subject, m.AuthorHandle), 52, ""),
		})
	}
	return ts.svc.render.RenderFrameWithTitle(base.Name, lines, "green",
		frame.Config{Width: 60}, ts.rctx)
}

// text renders a one-line colored response for the session's context.
func (ts *TermSession) text(message, color string) string {
	return ts.svc.render.RenderText(message, color, ts.rctx)
}
