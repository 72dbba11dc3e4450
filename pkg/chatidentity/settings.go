package chatidentity

import (
	"context"
	"database/sql"
	"fmt"
)

const strictModeKey = "chat_strict_mode"

// SettingsStore holds runtime-togglable workspace settings. Strict mode is
// the only one the identity service consumes.
type SettingsStore struct {
	db *sql.DB
}

// NewSettingsStore creates a new settings store.
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// StrictMode reports whether unlinked chat senders are denied. Missing
// setting defaults to open access.
func (s *SettingsStore) StrictMode(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = $1`, strictModeKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read strict mode setting: %w", err)
	}
	return value == "true", nil
}

// SetStrictMode toggles strict mode. Runtime effect is immediate: the
// service reads the flag per decision, no restart needed.
func (s *SettingsStore) SetStrictMode(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, strictModeKey, value)
	if err != nil {
		return fmt.Errorf("failed to write strict mode setting: %w", err)
	}
	return nil
}
