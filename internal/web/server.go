// Package web is the board's HTTP surface: the management API and the
// websocket endpoint.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/door"
	"github.com/retrobbs/retrobbs/internal/notify"
	"github.com/retrobbs/retrobbs/internal/sysop"
)

// Server is the HTTP server for the board.
type Server struct {
	broker *notify.Broker
	doors  *door.Manager
	sysop  *sysop.SysOp
	db     *db.DB
	logger *logrus.Logger

	mux    *http.ServeMux
	server *http.Server
}

// New creates the server. wsHandler is mounted at /ws; pass nil to
// skip it (tests exercising only the REST surface do this).
func New(port int, broker *notify.Broker, doors *door.Manager, so *sysop.SysOp, database *db.DB, wsHandler http.Handler, logger *logrus.Logger) *Server {
	s := &Server{
		broker: broker,
		doors:  doors,
		sysop:  so,
		db:     database,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.registerRoutes(wsHandler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections outlive any write timeout
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes(wsHandler http.Handler) {
	if wsHandler != nil {
		s.mux.Handle("GET /ws", wsHandler)
	}

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	s.mux.HandleFunc("GET /api/v1/announcements", s.handleListAnnouncements)
	s.mux.HandleFunc("POST /api/v1/announcements", s.handlePostAnnouncement)

	s.mux.HandleFunc("GET /api/v1/bases", s.handleListBases)
	s.mux.HandleFunc("GET /api/v1/bases/{id}/messages", s.handleListMessages)
	s.mux.HandleFunc("POST /api/v1/bases/{id}/messages", s.handlePostMessage)

	s.mux.HandleFunc("GET /api/v1/doors/sessions", s.handleDoorSessions)

	s.mux.HandleFunc("POST /api/v1/sysop/page", s.handleSysopPage)
}
