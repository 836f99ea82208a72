package bbs

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/auth"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/notify"
	"github.com/retrobbs/retrobbs/internal/render"
)

// TelnetServer serves terminal sessions over raw TCP, one line in, one
// response out. Output uses CRLF line endings for terminal emulators.
type TelnetServer struct {
	svc    *Service
	db     *db.DB
	addr   string
	logger *logrus.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
}

// NewTelnetServer creates a TCP front end for the terminal service.
func NewTelnetServer(svc *Service, database *db.DB, port int, logger *logrus.Logger) *TelnetServer {
	return &TelnetServer{
		svc:    svc,
		db:     database,
		addr:   fmt.Sprintf(":%d", port),
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start listens and serves until Shutdown closes the listener.
func (s *TelnetServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("telnet listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.WithField("addr", s.addr).Info("telnet server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		s.track(conn, true)
		go s.handleConn(conn)
	}
}

// Shutdown closes the listener and every open connection.
func (s *TelnetServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	return nil
}

func (s *TelnetServer) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *TelnetServer) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.track(conn, false)

	ctx := context.Background()
	scanner := bufio.NewScanner(conn)

	fmt.Fprint(conn, "handle: ")
	if !scanner.Scan() {
		return
	}
	handle := strings.TrimSpace(scanner.Text())
	if handle == "" {
		handle = "guest"
	}

	identity, err := s.login(ctx, handle)
	if err != nil {
		s.logger.WithError(err).Warn("telnet login failed")
		fmt.Fprint(conn, "login failed\r\n")
		return
	}

	s.svc.broker.Broadcast(notify.NewEvent(notify.EventUserJoined, notify.UserJoinedPayload{
		UserID: identity.UserID,
		Handle: identity.Handle,
	}))

	ts := s.svc.NewSession(identity, render.Context{Type: render.ContextStream, Width: 80})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.Close(closeCtx)
		s.svc.broker.Broadcast(notify.NewEvent(notify.EventUserLeft, notify.UserLeftPayload{
			UserID: identity.UserID,
			Handle: identity.Handle,
		}))
	}()

	banner, err := ts.Welcome(ctx)
	if err != nil {
		s.logger.WithError(err).Error("welcome render failed")
		return
	}
	fmt.Fprint(conn, banner+"\r\n")

	for {
		fmt.Fprint(conn, "\r\n> ")
		if !scanner.Scan() {
			return
		}
		out, done, err := ts.HandleLine(ctx, scanner.Text())
		if err != nil {
			s.logger.WithError(err).WithField("handle", handle).Error("command failed")
			fmt.Fprint(conn, "something went wrong, try again\r\n")
			continue
		}
		fmt.Fprint(conn, out+"\r\n")
		if done {
			return
		}
	}
}

// login finds or creates the user record for a handle.
func (s *TelnetServer) login(ctx context.Context, handle string) (auth.Identity, error) {
	user, err := s.db.GetUserByHandle(ctx, handle)
	if err != nil {
		return auth.Identity{}, err
	}
	if user == nil {
		user = &db.User{ID: uuid.NewString(), Handle: handle}
		if err := s.db.InsertUser(ctx, user); err != nil {
			return auth.Identity{}, err
		}
	} else if err := s.db.TouchUser(ctx, user.ID); err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: user.ID, Handle: user.Handle}, nil
}
