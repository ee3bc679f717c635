package session

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

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sender_sessions (
	sender_id  TEXT PRIMARY KEY,
	context_id TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLStore persists mappings in a single SQL table. It is the default
// backend, opened on an embedded SQLite file.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creating if needed) the SQLite file at path and ensures
// the sender_sessions table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("session: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent webhooks.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("session: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create schema: %w", err)
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing database handle whose schema is already in place.
func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("session: sql db cannot be nil")
	}
	return &SQLStore{db: db}
}

func (s *SQLStore) Lookup(ctx context.Context, senderID string) (string, bool, error) {
	var contextID string
	err := s.db.QueryRowContext(ctx,
		`SELECT context_id FROM sender_sessions WHERE sender_id = ?`,
		senderID,
	).Scan(&contextID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: lookup %s: %w", senderID, err)
	}
	return contextID, true, nil
}

func (s *SQLStore) Store(ctx context.Context, senderID, contextID string) error {
	if err := validateKeys(senderID, contextID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sender_sessions (sender_id, context_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(sender_id) DO UPDATE SET
			context_id = excluded.context_id,
			updated_at = excluded.updated_at
	`, senderID, contextID, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("session: store %s: %w", senderID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
