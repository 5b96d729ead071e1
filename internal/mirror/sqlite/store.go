// Package sqlite provides an embedded SQLite mapping store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS message_mappings (
    incident_id TEXT PRIMARY KEY,
    message_id  TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

// Store is a SQLite backed mapping store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the message id recorded for incidentID.
func (s *Store) Get(ctx context.Context, incidentID string) (string, bool, error) {
	var messageID string
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id FROM message_mappings WHERE incident_id = ?`,
		incidentID,
	).Scan(&messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query mapping: %w", err)
	}
	return messageID, true, nil
}

// Put records messageID for incidentID, replacing any previous id.
func (s *Store) Put(ctx context.Context, incidentID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_mappings (incident_id, message_id)
		VALUES (?, ?)
		ON CONFLICT (incident_id) DO UPDATE SET
			message_id = excluded.message_id,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		incidentID, messageID,
	)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// Import copies entries into the store, keeping existing rows. It is used to
// migrate a JSON mapping file.
func (s *Store) Import(ctx context.Context, entries map[string]string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	imported := 0
	for incidentID, messageID := range entries {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO message_mappings (incident_id, message_id) VALUES (?, ?)
			 ON CONFLICT (incident_id) DO NOTHING`,
			incidentID, messageID,
		)
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", incidentID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			imported += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return imported, nil
}
