package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/retrobbs/retrobbs/internal/door"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")

	d, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not re-run migrations destructively.
	d, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	_ = d.Close()
}

func TestUsers(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	u := &User{ID: "u1", Handle: "ripley"}
	if err := d.InsertUser(ctx, u); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := d.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Handle != "ripley" || got.CreatedAt == "" {
		t.Fatalf("wrong user: %+v", got)
	}

	byHandle, err := d.GetUserByHandle(ctx, "ripley")
	if err != nil || byHandle == nil || byHandle.ID != "u1" {
		t.Fatalf("lookup by handle: %+v, %v", byHandle, err)
	}

	if err := d.TouchUser(ctx, "u1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ = d.GetUser(ctx, "u1")
	if got.LastSeenAt == nil {
		t.Fatal("last_seen_at not set")
	}

	// Duplicate handle rejected.
	if err := d.InsertUser(ctx, &User{ID: "u2", Handle: "ripley"}); err == nil {
		t.Fatal("duplicate handle accepted")
	}

	missing, err := d.GetUser(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing user, got %+v, %v", missing, err)
	}
}

func TestMessagesAndReplies(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if err := d.InsertUser(ctx, &User{ID: "u1", Handle: "ripley"}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := d.InsertMessageBase(ctx, &MessageBase{ID: "b1", Name: "General"}); err != nil {
		t.Fatalf("insert base: %v", err)
	}

	root := &Message{
		ID: "m1", BaseID: "b1", AuthorID: "u1", AuthorHandle: "ripley",
		Subject: "hello board", Body: "first post",
	}
	if err := d.InsertMessage(ctx, root); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	parentID := "m1"
	reply := &Message{
		ID: "m2", BaseID: "b1", ParentID: &parentID, AuthorID: "u1",
		AuthorHandle: "ripley", Subject: "Re: hello board", Body: "welcome",
	}
	if err := d.InsertMessage(ctx, reply); err != nil {
		t.Fatalf("insert reply: %v", err)
	}

	msgs, err := d.ListMessages(ctx, "b1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	replies, err := d.ListReplies(ctx, "m1")
	if err != nil {
		t.Fatalf("replies: %v", err)
	}
	if len(replies) != 1 || replies[0].ID != "m2" {
		t.Fatalf("wrong replies: %+v", replies)
	}

	// Foreign keys are on: a message into a missing base fails.
	bad := &Message{ID: "m3", BaseID: "nope", AuthorID: "u1", AuthorHandle: "ripley", Subject: "x", Body: "y"}
	if err := d.InsertMessage(ctx, bad); err == nil {
		t.Fatal("orphan message accepted")
	}
}

func TestAnnouncements(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	id, err := d.InsertAnnouncement(ctx, &Announcement{Body: "*down* tonight", HTML: "<em>down</em> tonight"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Fatal("no id assigned")
	}

	anns, err := d.ListAnnouncements(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(anns) != 1 || anns[0].Author != "sysop" || anns[0].HTML == "" {
		t.Fatalf("wrong announcements: %+v", anns)
	}
}

func TestDoorSessionStore(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	store := d.DoorSessions()

	entered := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := door.Record{
		SessionID:      "s1",
		UserID:         "u1",
		DoorID:         "oracle",
		DoorName:       "The Oracle",
		State:          map[string]any{"questionsAsked": 2, "lastQuestion": "why?"},
		EnteredAt:      entered,
		LastActivityAt: entered.Add(5 * time.Minute),
	}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.LoadByUserAndDoor(ctx, "u1", "oracle")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.SessionID != "s1" || got.DoorName != "The Oracle" {
		t.Fatalf("wrong record: %+v", got)
	}
	if got.State["lastQuestion"] != "why?" {
		t.Fatalf("state lost: %+v", got.State)
	}
	// JSON decodes numbers as float64.
	if n, ok := got.State["questionsAsked"].(float64); !ok || n != 2 {
		t.Fatalf("numeric state wrong: %+v", got.State)
	}
	if !got.EnteredAt.Equal(entered) {
		t.Fatalf("entered_at mangled: %v", got.EnteredAt)
	}

	// Save again updates in place.
	rec.State["questionsAsked"] = 3
	rec.LastActivityAt = entered.Add(10 * time.Minute)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _ = store.LoadByUserAndDoor(ctx, "u1", "oracle")
	if n, _ := got.State["questionsAsked"].(float64); n != 3 {
		t.Fatalf("upsert did not replace state: %+v", got.State)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = store.LoadByUserAndDoor(ctx, "u1", "oracle")
	if err != nil || got != nil {
		t.Fatalf("expected nil after delete, got %+v, %v", got, err)
	}

	// Deleting a missing session is not an error.
	if err := store.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestMessageBases(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for _, b := range []MessageBase{
		{ID: "b2", Name: "Tech"},
		{ID: "b1", Name: "General", Description: "anything goes"},
	} {
		if err := d.InsertMessageBase(ctx, &b); err != nil {
			t.Fatalf("insert base: %v", err)
		}
	}

	bases, err := d.ListMessageBases(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bases) != 2 || bases[0].Name != "General" {
		t.Fatalf("wrong order or count: %+v", bases)
	}

	got, err := d.GetMessageBase(ctx, "b1")
	if err != nil || got == nil || got.Description != "anything goes" {
		t.Fatalf("get base: %+v, %v", got, err)
	}
}
