// Package archive is a local SQLite-backed transcript store. The in-memory
// session buffers carry the live conversation context; the archive keeps a
// durable copy of every completed exchange for later inspection.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists chat transcripts.
//
// WAL is enabled to support concurrent reads while writing; writes go through
// a single connection.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type SessionSummary struct {
	SessionID           string `json:"session_id"`
	MessageCount        int64  `json:"message_count"`
	CreatedAtUnixMs     int64  `json:"created_at_unix_ms"`
	LastMessageAtUnixMs int64  `json:"last_message_at_unix_ms"`
}

type Message struct {
	ID              int64  `json:"id"`
	SessionID       string `json:"session_id"`
	Role            string `json:"role"`
	Content         string `json:"content"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
}

// RecordExchange appends one completed (user, assistant) pair atomically and
// bumps the session summary row.
func (s *Store) RecordExchange(ctx context.Context, sessionID string, userText string, reply string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("missing session_id")
	}

	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (session_id, message_count, created_at_unix_ms, last_message_at_unix_ms)
VALUES (?, 2, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
  message_count = message_count + 2,
  last_message_at_unix_ms = excluded.last_message_at_unix_ms
`, sessionID, now, now); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages (session_id, role, content, created_at_unix_ms) VALUES (?, 'user', ?, ?), (?, 'assistant', ?, ?)
`, sessionID, userText, now, sessionID, reply, now); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}

	return tx.Commit()
}

// ListSessions returns session summaries ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, message_count, created_at_unix_ms, last_message_at_unix_ms
FROM sessions
ORDER BY last_message_at_unix_ms DESC, session_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SessionSummary, 0, limit)
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.SessionID, &ss.MessageCount, &ss.CreatedAtUnixMs, &ss.LastMessageAtUnixMs); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// Messages returns a session's transcript in chronological order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("missing session_id")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, created_at_unix_ms
FROM messages
WHERE session_id = ?
ORDER BY id ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAtUnixMs); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ping checks the store is reachable (used by the detailed health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 1

	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= targetVersion {
		return nil
	}

	if version < 1 {
		if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
  session_id TEXT PRIMARY KEY,
  message_count INTEGER NOT NULL DEFAULT 0,
  created_at_unix_ms INTEGER NOT NULL,
  last_message_at_unix_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
`); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
