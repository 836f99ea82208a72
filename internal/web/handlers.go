package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/notify"
)

// --- JSON Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requireJSON checks the Content-Type header and returns false (with a
// 415 response) if it is not application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

func parseLimit(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
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

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.GetStats())
}

func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	anns, err := s.db.ListAnnouncements(r.Context(), parseLimit(r, 20))
	if err != nil {
		s.logger.WithError(err).Error("list announcements failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if anns == nil {
		anns = []db.Announcement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": anns})
}

func (s *Server) handlePostAnnouncement(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req struct {
		Body   string `json:"body"`
		Author string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}
	if req.Author == "" {
		req.Author = "sysop"
	}

	ann := &db.Announcement{
		Body:   req.Body,
		HTML:   renderMarkdown(req.Body),
		Author: req.Author,
	}
	id, err := s.db.InsertAnnouncement(r.Context(), ann)
	if err != nil {
		s.logger.WithError(err).Error("insert announcement failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	ann.ID = id

	s.broker.Broadcast(notify.NewEvent(notify.EventSystemAnnouncement, notify.AnnouncementPayload{
		Message: req.Body,
		From:    req.Author,
	}))

	writeJSON(w, http.StatusCreated, ann)
}

func (s *Server) handleListBases(w http.ResponseWriter, r *http.Request) {
	bases, err := s.db.ListMessageBases(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("list bases failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if bases == nil {
		bases = []db.MessageBase{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bases": bases})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	baseID := r.PathValue("id")
	base, err := s.db.GetMessageBase(r.Context(), baseID)
	if err != nil {
		s.logger.WithError(err).Error("get base failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if base == nil {
		writeError(w, http.StatusNotFound, "message base not found")
		return
	}

	msgs, err := s.db.ListMessages(r.Context(), baseID, parseLimit(r, 50), 0)
	if err != nil {
		s.logger.WithError(err).Error("list messages failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if msgs == nil {
		msgs = []db.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handlePostMessage posts a message or reply into a base and emits
// the matching notification event.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	baseID := r.PathValue("id")

	var req struct {
		AuthorID     string  `json:"authorId"`
		AuthorHandle string  `json:"authorHandle"`
		Subject      string  `json:"subject"`
		Body         string  `json:"body"`
		ParentID     *string `json:"parentId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.AuthorID == "" || req.Subject == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "authorId, subject, and body are required")
		return
	}

	base, err := s.db.GetMessageBase(r.Context(), baseID)
	if err != nil {
		s.logger.WithError(err).Error("get base failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if base == nil {
		writeError(w, http.StatusNotFound, "message base not found")
		return
	}

	if req.ParentID != nil {
		parent, err := s.db.GetMessage(r.Context(), *req.ParentID)
		if err != nil {
			s.logger.WithError(err).Error("get parent failed")
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if parent == nil || parent.BaseID != baseID {
			writeError(w, http.StatusNotFound, "parent message not found in this base")
			return
		}
	}

	msg := &db.Message{
		ID:           uuid.NewString(),
		BaseID:       baseID,
		ParentID:     req.ParentID,
		AuthorID:     req.AuthorID,
		AuthorHandle: req.AuthorHandle,
		Subject:      req.Subject,
		Body:         req.Body,
	}
	if err := s.db.InsertMessage(r.Context(), msg); err != nil {
		s.logger.WithError(err).Error("insert message failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if req.ParentID != nil {
		s.broker.Broadcast(notify.NewEvent(notify.EventMessageReply, notify.MessageReplyPayload{
			MessageID:     msg.ID,
			ParentID:      *req.ParentID,
			MessageBaseID: baseID,
			Subject:       msg.Subject,
			AuthorHandle:  msg.AuthorHandle,
			CreatedAt:     msg.CreatedAt,
		}))
	} else {
		s.broker.Broadcast(notify.NewEvent(notify.EventMessageNew, notify.MessageNewPayload{
			MessageID:       msg.ID,
			MessageBaseID:   baseID,
			MessageBaseName: base.Name,
			Subject:         msg.Subject,
			AuthorHandle:    msg.AuthorHandle,
			CreatedAt:       msg.CreatedAt,
		}))
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleDoorSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.doors.ActiveSessions()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSysopPage forwards a page to the SysOp. A page the SysOp does
// not answer in time is a 504.
func (s *Server) handleSysopPage(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req struct {
		Handle  string `json:"handle"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Handle == "" {
		req.Handle = "guest"
	}

	response, err := s.sysop.Page(r.Context(), req.Handle, req.Message)
	if err != nil {
		var typed *ai.Error
		if errors.As(err, &typed) && typed.Kind == ai.KindTimeout {
			writeError(w, http.StatusGatewayTimeout, "the sysop did not answer the page")
			return
		}
		s.logger.WithError(err).Error("sysop page failed")
		writeError(w, http.StatusBadGateway, "the sysop is unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}
