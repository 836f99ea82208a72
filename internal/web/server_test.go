package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/db"
	"github.com/retrobbs/retrobbs/internal/door"
	"github.com/retrobbs/retrobbs/internal/notify"
	"github.com/retrobbs/retrobbs/internal/sysop"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// watchConn is a broker connection that records delivered frames.
type watchConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *watchConn) ID() string   { return "watch" }
func (c *watchConn) IsOpen() bool { return true }
func (c *watchConn) Send(data []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte{}, data...))
	c.mu.Unlock()
	return nil
}
func (c *watchConn) Close() error   { return nil }
func (c *watchConn) OnClose(func()) {}

func (c *watchConn) eventsOf(t *testing.T, eventType string) []json.RawMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		var evt struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(f, &evt); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if evt.Type == eventType {
			out = append(out, evt.Data)
		}
	}
	return out
}

// pagerProvider answers pages after an optional delay.
type pagerProvider struct {
	delay  time.Duration
	answer string
	err    error
}

func (p *pagerProvider) GenerateCompletion(ctx context.Context, _ string, _ ai.Options) (string, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if p.err != nil {
		return "", p.err
	}
	return p.answer, nil
}

func (p *pagerProvider) GenerateStructured(_ context.Context, _ string, _ string, _ ai.Options) (json.RawMessage, error) {
	return nil, errors.New("unused")
}

func (p *pagerProvider) Name() string { return "pager" }

type env struct {
	srv    *Server
	broker *notify.Broker
	watch  *watchConn
	db     *db.DB
	doors  *door.Manager
}

func newEnv(t *testing.T, provider ai.Provider, pageTimeout time.Duration) *env {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	broker := notify.NewBroker(0, testLogger())
	watch := &watchConn{}
	broker.RegisterClient(watch, "watcher")
	if _, err := broker.Subscribe("watch", []notify.SubscribeRequest{
		{EventType: "message.new"},
		{EventType: "message.reply"},
		{EventType: "system.announcement"},
	}); err != nil {
		t.Fatalf("subscribe watcher: %v", err)
	}

	doors := door.NewManager(database.DoorSessions(), broker, 0, testLogger())

	if provider == nil {
		provider = &pagerProvider{answer: "hello caller"}
	}
	svc := ai.NewService(provider, ai.ServiceConfig{EnableFallbacks: false}, testLogger())
	so := sysop.New(svc, pageTimeout, testLogger())

	srv := New(0, broker, doors, so, database, nil, testLogger())
	return &env{srv: srv, broker: broker, watch: watch, db: database, doors: doors}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStats(t *testing.T) {
	e := newEnv(t, nil, time.Second)

	rec := e.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var stats notify.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Clients != 1 || stats.Subscriptions != 3 {
		t.Fatalf("wrong stats: %+v", stats)
	}
}

func TestAnnouncements(t *testing.T) {
	e := newEnv(t, nil, time.Second)

	rec := e.do(t, http.MethodPost, "/api/v1/announcements", map[string]string{
		"body": "board goes **down** at midnight",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: %d: %s", rec.Code, rec.Body.String())
	}
	var ann db.Announcement
	if err := json.Unmarshal(rec.Body.Bytes(), &ann); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(ann.HTML, "<strong>down</strong>") {
		t.Fatalf("markdown not rendered: %q", ann.HTML)
	}

	if got := e.watch.eventsOf(t, "system.announcement"); len(got) != 1 {
		t.Fatalf("expected 1 announcement event, got %d", len(got))
	}

	rec = e.do(t, http.MethodGet, "/api/v1/announcements", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "midnight") {
		t.Fatalf("list: %d: %s", rec.Code, rec.Body.String())
	}

	// Empty body rejected.
	rec = e.do(t, http.MethodPost, "/api/v1/announcements", map[string]string{"body": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: %d", rec.Code)
	}
}

func TestPostMessageAndReply(t *testing.T) {
	e := newEnv(t, nil, time.Second)
	ctx := context.Background()

	if err := e.db.InsertUser(ctx, &db.User{ID: "u1", Handle: "ripley"}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := e.db.InsertMessageBase(ctx, &db.MessageBase{ID: "b1", Name: "General"}); err != nil {
		t.Fatalf("insert base: %v", err)
	}

	rec := e.do(t, http.MethodPost, "/api/v1/bases/b1/messages", map[string]any{
		"authorId": "u1", "authorHandle": "ripley", "subject": "hello", "body": "first post",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: %d: %s", rec.Code, rec.Body.String())
	}
	var msg db.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}

	events := e.watch.eventsOf(t, "message.new")
	if len(events) != 1 {
		t.Fatalf("expected 1 message.new, got %d", len(events))
	}
	var p notify.MessageNewPayload
	if err := json.Unmarshal(events[0], &p); err != nil || p.MessageBaseName != "General" {
		t.Fatalf("bad payload: %s", events[0])
	}

	rec = e.do(t, http.MethodPost, "/api/v1/bases/b1/messages", map[string]any{
		"authorId": "u1", "authorHandle": "ripley", "subject": "Re: hello",
		"body": "welcome", "parentId": msg.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reply: %d: %s", rec.Code, rec.Body.String())
	}
	replies := e.watch.eventsOf(t, "message.reply")
	if len(replies) != 1 {
		t.Fatalf("expected 1 message.reply, got %d", len(replies))
	}
	var rp notify.MessageReplyPayload
	if err := json.Unmarshal(replies[0], &rp); err != nil || rp.ParentID != msg.ID {
		t.Fatalf("bad reply payload: %s", replies[0])
	}

	rec = e.do(t, http.MethodGet, "/api/v1/bases/b1/messages", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "first post") {
		t.Fatalf("list: %d: %s", rec.Code, rec.Body.String())
	}

	// Unknown base.
	rec = e.do(t, http.MethodPost, "/api/v1/bases/nope/messages", map[string]any{
		"authorId": "u1", "subject": "x", "body": "y",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown base: %d", rec.Code)
	}

	// Missing fields.
	rec = e.do(t, http.MethodPost, "/api/v1/bases/b1/messages", map[string]any{"authorId": "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: %d", rec.Code)
	}
}

func TestContentTypeEnforced(t *testing.T) {
	e := newEnv(t, nil, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/announcements", strings.NewReader("body=x"))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestDoorSessionsEndpoint(t *testing.T) {
	e := newEnv(t, nil, time.Second)

	e.doors.RegisterDoor(door.NewOracle(
		ai.NewService(&pagerProvider{answer: "✨ fate..."}, ai.ServiceConfig{EnableFallbacks: true}, testLogger()),
		testLogger()))
	if _, _, err := e.doors.Enter(context.Background(), "u1", "ripley", "oracle"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	rec := e.do(t, http.MethodGet, "/api/v1/doors/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions: %d", rec.Code)
	}
	var body struct {
		Sessions []door.SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].DoorID != "oracle" {
		t.Fatalf("wrong sessions: %+v", body.Sessions)
	}
}

func TestSysopPage(t *testing.T) {
	e := newEnv(t, &pagerProvider{answer: "hey there!"}, time.Second)

	rec := e.do(t, http.MethodPost, "/api/v1/sysop/page", map[string]string{
		"handle": "ripley", "message": "anyone home?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("page: %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "hey there!") {
		t.Fatalf("missing response: %s", rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/api/v1/sysop/page", map[string]string{"message": " "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message: %d", rec.Code)
	}
}

func TestSysopPageTimeout(t *testing.T) {
	e := newEnv(t, &pagerProvider{delay: 500 * time.Millisecond, answer: "late"}, 20*time.Millisecond)

	rec := e.do(t, http.MethodPost, "/api/v1/sysop/page", map[string]string{
		"handle": "ripley", "message": "hello?",
	})
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rec.Code, rec.Body.String())
	}
}
