package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Settings is a string key/value store
type Settings struct {
	q querier
}

// Get returns the value of key and whether it exists
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key; missing keys are not an error
func (s *Settings) Delete(ctx context.Context, key string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
