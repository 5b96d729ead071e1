// Package postgres provides a PostgreSQL mapping store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Registers the pgx5:// database driver.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a PostgreSQL backed mapping store.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a store on top of an existing pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema migrations to the database at url.
func Migrate(url string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(url))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres URL for the pgx/v5 migrate driver.
func migrateURL(url string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(url, prefix) {
			return "pgx5://" + strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

// Get returns the message id recorded for incidentID.
func (s *Store) Get(ctx context.Context, incidentID string) (string, bool, error) {
	var messageID string
	err := s.db.QueryRow(ctx,
		`SELECT message_id FROM message_mappings WHERE incident_id = $1`,
		incidentID,
	).Scan(&messageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query mapping: %w", err)
	}
	return messageID, true, nil
}

// Put records messageID for incidentID, replacing any previous id.
func (s *Store) Put(ctx context.Context, incidentID, messageID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO message_mappings (incident_id, message_id)
		VALUES ($1, $2)
		ON CONFLICT (incident_id) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			updated_at = NOW()`,
		incidentID, messageID,
	)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// Import copies entries into the store, keeping existing rows.
func (s *Store) Import(ctx context.Context, entries map[string]string) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	imported := 0
	for incidentID, messageID := range entries {
		tag, err := tx.Exec(ctx,
			`INSERT INTO message_mappings (incident_id, message_id) VALUES ($1, $2)
			 ON CONFLICT (incident_id) DO NOTHING`,
			incidentID, messageID,
		)
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", incidentID, err)
		}
		imported += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return imported, nil
}
