package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/notify"
)

// --- Tool Definitions ---

func boardStatsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"board_stats",
		"Get live notification broker statistics: connected clients, authenticated users, and active subscriptions.",
		json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	)
}

func postAnnouncementTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"post_announcement",
		"Post a system announcement to the board. The body is markdown; it is rendered to HTML and broadcast to all subscribed callers.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"body": {
					"type": "string",
					"description": "Announcement text (markdown)"
				},
				"author": {
					"type": "string",
					"description": "Author handle (default: sysop)"
				}
			},
			"required": ["body"]
		}`),
	)
}

func listDoorSessionsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_door_sessions",
		"List active door game sessions with user handles and entry times.",
		json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	)
}

func pageSysopTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"page_sysop",
		"Page the AI SysOp with a message and wait for the reply. Times out if the SysOp does not answer.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"handle": {
					"type": "string",
					"description": "Handle of the caller paging (default: operator)"
				},
				"message": {
					"type": "string",
					"description": "Message for the SysOp"
				}
			},
			"required": ["message"]
		}`),
	)
}

// --- Tool Handlers ---

func (s *Server) handleBoardStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(s.broker.GetStats())
}

// announcementArgs mirrors the JSON schema for post_announcement.
type announcementArgs struct {
	Body   string `json:"body"`
	Author string `json:"author"`
}

func (s *Server) handlePostAnnouncement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args announcementArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Body) == "" {
		return mcp.NewToolResultError("body is required"), nil
	}
	if args.Author == "" {
		args.Author = "sysop"
	}

	ann := &db.Announcement{
		Body:   args.Body,
		HTML:   renderMarkdown(args.Body),
		Author: args.Author,
	}
	id, err := s.db.InsertAnnouncement(ctx, ann)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("insert announcement: %v", err)), nil
	}
	ann.ID = id

	s.broker.Broadcast(notify.NewEvent(notify.EventSystemAnnouncement, notify.AnnouncementPayload{
		Message: args.Body,
		From:    args.Author,
	}))

	s.logger.WithField("author", args.Author).Info("announcement posted via mcp")
	return resultJSON(ann)
}

func (s *Server) handleListDoorSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(s.doors.ActiveSessions())
}

// pageArgs mirrors the JSON schema for page_sysop.
type pageArgs struct {
	Handle  string `json:"handle"`
	Message string `json:"message"`
}

func (s *Server) handlePageSysop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pageArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Message) == "" {
		return mcp.NewToolResultError("message is required"), nil
	}
	if args.Handle == "" {
		args.Handle = "operator"
	}

	response, err := s.sysop.Page(ctx, args.Handle, args.Message)
	if err != nil {
		var typed *ai.Error
		if errors.As(err, &typed) && typed.Kind == ai.KindTimeout {
			return mcp.NewToolResultError("the sysop did not answer the page in time"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("page failed: %v", err)), nil
	}

	return resultJSON(map[string]string{"response": response})
}

// renderMarkdown converts announcement markdown to HTML with GFM
// extensions.
func renderMarkdown(md string) string {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
