// Package db is the SQLite persistence layer: users, message bases,
// messages, announcements, and saved door sessions.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite database.
type DB struct {
	conn *sql.DB
}

// Open creates a new DB connection and runs all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

// migrate applies the embedded goose migrations.
func migrate(conn *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// --- Users ---

// User is a registered board member.
type User struct {
	ID         string
	Handle     string
	CreatedAt  string
	LastSeenAt *string
}

// InsertUser creates a user record.
func (d *DB) InsertUser(ctx context.Context, u *User) error {
	if u.CreatedAt == "" {
		u.CreatedAt = now()
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO users (id, handle, created_at, last_seen_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Handle, u.CreatedAt, u.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID, or nil if absent.
func (d *DB) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, handle, created_at, last_seen_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Handle, &u.CreatedAt, &u.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByHandle retrieves a user by handle, or nil if absent.
func (d *DB) GetUserByHandle(ctx context.Context, handle string) (*User, error) {
	u := &User{}
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, handle, created_at, last_seen_at FROM users WHERE handle = ?`, handle,
	).Scan(&u.ID, &u.Handle, &u.CreatedAt, &u.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by handle %s: %w", handle, err)
	}
	return u, nil
}

// TouchUser records that the user was just seen.
func (d *DB) TouchUser(ctx context.Context, id string) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE users SET last_seen_at = ? WHERE id = ?`, now(), id,
	)
	if err != nil {
		return fmt.Errorf("touch user %s: %w", id, err)
	}
	return nil
}
