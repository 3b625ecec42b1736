package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go_cfgsync/agent/provider"
)

// ErrProviderNotFound is returned when switching to an id the app type does not have
var ErrProviderNotFound = errors.New("provider not found")

// ProviderStore keeps the providers of each app type in insertion order
// plus the active provider id per app type.
type ProviderStore struct {
	q  querier
	db *sql.DB // nil inside a transaction
}

// List returns the providers of app in stored order
func (s *ProviderStore) List(ctx context.Context, app provider.AppType) ([]provider.Provider, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT data FROM providers WHERE app_type = ? ORDER BY position, id", string(app))
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []provider.Provider
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		var p provider.Provider
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return out, nil
}

// Add appends p after the existing providers of app. A duplicate id is an error.
func (s *ProviderStore) Add(ctx context.Context, app provider.AppType, p provider.Provider) error {
	if p.ID == "" {
		return errors.New("add provider: empty id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode provider %s: %w", p.ID, err)
	}

	_, err = s.q.ExecContext(ctx, `INSERT INTO providers (app_type, id, position, data)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM providers WHERE app_type = ?), ?)`,
		string(app), p.ID, string(app), string(data))
	if err != nil {
		return fmt.Errorf("add provider %s: %w", p.ID, err)
	}
	return nil
}

// DeleteAll removes every provider of app and clears its active id
func (s *ProviderStore) DeleteAll(ctx context.Context, app provider.AppType) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM providers WHERE app_type = ?", string(app)); err != nil {
		return fmt.Errorf("delete providers: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, "DELETE FROM current_providers WHERE app_type = ?", string(app)); err != nil {
		return fmt.Errorf("clear current provider: %w", err)
	}
	return nil
}

// SwitchActive makes id the active provider of app
func (s *ProviderStore) SwitchActive(ctx context.Context, app provider.AppType, id string) error {
	var exists int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM providers WHERE app_type = ? AND id = ?", string(app), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("switch provider: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("switch to %s/%s: %w", app, id, ErrProviderNotFound)
	}

	_, err = s.q.ExecContext(ctx, `INSERT INTO current_providers (app_type, provider_id) VALUES (?, ?)
		ON CONFLICT(app_type) DO UPDATE SET provider_id = excluded.provider_id`, string(app), id)
	if err != nil {
		return fmt.Errorf("switch provider: %w", err)
	}
	return nil
}

// Current returns the active provider id of app, "" when none
func (s *ProviderStore) Current(ctx context.Context, app provider.AppType) (string, error) {
	var id string
	err := s.q.QueryRowContext(ctx,
		"SELECT provider_id FROM current_providers WHERE app_type = ?", string(app)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current provider: %w", err)
	}
	return id, nil
}

// Transaction runs fn against a store bound to one SQL transaction. fn's error rolls back
// everything it did. Nested calls join the outer transaction.
func (s *ProviderStore) Transaction(ctx context.Context, fn func(tx *ProviderStore) error) (err error) {
	if s.db == nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&ProviderStore{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
