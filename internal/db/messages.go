package db

import (
	"context"
	"database/sql"
	"fmt"
)

// MessageBase is a topic area messages are posted into.
type MessageBase struct {
	ID          string
	Name        string
	Description string
	CreatedAt   string
}

// Message is one post in a base. ParentID is set on replies.
type Message struct {
	ID           string
	BaseID       string
	ParentID     *string
	AuthorID     string
	AuthorHandle string
	Subject      string
	Body         string
	CreatedAt    string
}

// Announcement is a system-wide notice. HTML holds the rendered
// markdown body.
type Announcement struct {
	ID        int64
	Body      string
	HTML      string
	Author    string
	CreatedAt string
}

// InsertMessageBase creates a message base.
func (d *DB) InsertMessageBase(ctx context.Context, b *MessageBase) error {
	if b.CreatedAt == "" {
		b.CreatedAt = now()
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO message_bases (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.Description, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message base: %w", err)
	}
	return nil
}

// GetMessageBase retrieves a base by ID, or nil if absent.
func (d *DB) GetMessageBase(ctx context.Context, id string) (*MessageBase, error) {
	b := &MessageBase{}
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM message_bases WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message base %s: %w", id, err)
	}
	return b, nil
}

// ListMessageBases returns all bases ordered by name.
func (d *DB) ListMessageBases(ctx context.Context) ([]MessageBase, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM message_bases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list message bases: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var bases []MessageBase
	for rows.Next() {
		var b MessageBase
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message base: %w", err)
		}
		bases = append(bases, b)
	}
	return bases, rows.Err()
}

// InsertMessage stores a message or reply.
func (d *DB) InsertMessage(ctx context.Context, m *Message) error {
	if m.CreatedAt == "" {
		m.CreatedAt = now()
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO messages (id, base_id, parent_id, author_id, author_handle, subject, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BaseID, m.ParentID, m.AuthorID, m.AuthorHandle, m.Subject, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID, or nil if absent.
func (d *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	m := &Message{}
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, base_id, parent_id, author_id, author_handle, subject, body, created_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.BaseID, &m.ParentID, &m.AuthorID, &m.AuthorHandle, &m.Subject, &m.Body, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

// ListMessages returns messages in a base, newest first.
func (d *DB) ListMessages(ctx context.Context, baseID string, limit, offset int) ([]Message, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, base_id, parent_id, author_id, author_handle, subject, body, created_at
		 FROM messages WHERE base_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		baseID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.BaseID, &m.ParentID, &m.AuthorID, &m.AuthorHandle, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListReplies returns direct replies to a message, oldest first.
func (d *DB) ListReplies(ctx context.Context, parentID string) ([]Message, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, base_id, parent_id, author_id, author_handle, subject, body, created_at
		 FROM messages WHERE parent_id = ? ORDER BY created_at ASC`, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.BaseID, &m.ParentID, &m.AuthorID, &m.AuthorHandle, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// InsertAnnouncement stores an announcement and returns its ID.
func (d *DB) InsertAnnouncement(ctx context.Context, a *Announcement) (int64, error) {
	if a.CreatedAt == "" {
		a.CreatedAt = now()
	}
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO announcements (body, html, author, created_at) VALUES (?, ?, ?, ?)`,
		a.Body, a.HTML, a.Author, a.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert announcement: %w", err)
	}
	return res.LastInsertId()
}

// ListAnnouncements returns announcements newest first.
func (d *DB) ListAnnouncements(ctx context.Context, limit int) ([]Announcement, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, body, html, author, created_at FROM announcements
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var anns []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.Body, &a.HTML, &a.Author, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}
