package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Setting keys owned by the sync agent
const (
	KeyDeviceID       = "management_device_id"
	KeyAppliedVersion = "management_admin_version"
	KeyLastSyncAt     = "management_last_sync_at"
	KeyLastSyncError  = "management_last_sync_error"
)

var schema = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA busy_timeout=10000;",
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS providers (
		app_type TEXT NOT NULL,
		id       TEXT NOT NULL,
		position INTEGER NOT NULL,
		data     TEXT NOT NULL,
		PRIMARY KEY (app_type, id)
	);`,
	`CREATE TABLE IF NOT EXISTS current_providers (
		app_type    TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL
	);`,
}

// DB is the agent's local SQLite database
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Settings returns the key/value settings store
func (d *DB) Settings() *Settings {
	return &Settings{q: d.db}
}

// Providers returns the provider store
func (d *DB) Providers() *ProviderStore {
	return &ProviderStore{q: d.db, db: d.db}
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
