// Package mcpserver implements an MCP (Model Context Protocol) server
// that exposes board operations as typed tools over stdio JSON-RPC:
// broker stats, announcements, door sessions, and SysOp pages.
package mcpserver

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/config"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/door"
	"github.com/retrobbs/retrobbs/internal/notify"
	"github.com/retrobbs/retrobbs/internal/sysop"
)

// Server holds the board collaborators the tools operate on.
type Server struct {
	broker *notify.Broker
	doors  *door.Manager
	sysop  *sysop.SysOp
	db     *db.DB
	logger *logrus.Logger
}

// NewServer creates an MCP server over the given board collaborators.
func NewServer(broker *notify.Broker, doors *door.Manager, so *sysop.SysOp, database *db.DB, logger *logrus.Logger) *Server {
	return &Server{
		broker: broker,
		doors:  doors,
		sysop:  so,
		db:     database,
		logger: logger,
	}
}

// Run starts the MCP stdio server. It blocks until the context is
// cancelled or stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		"retrobbs",
		config.Version,
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTools(
		server.ServerTool{Tool: boardStatsTool(), Handler: s.handleBoardStats},
		server.ServerTool{Tool: postAnnouncementTool(), Handler: s.handlePostAnnouncement},
		server.ServerTool{Tool: listDoorSessionsTool(), Handler: s.handleListDoorSessions},
		server.ServerTool{Tool: pageSysopTool(), Handler: s.handlePageSysop},
	)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
