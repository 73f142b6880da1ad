package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetState writes an app-state key. Used for the legacy-migration marker
// and the raw legacy backup blob.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO app_state (key, value, updated_at) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("setting app state %q: %w", key, err)
	}
	return nil
}

// GetState reads an app-state key. The second return value reports whether
// the key exists.
func (db *DB) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.sql.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting app state %q: %w", key, err)
	}
	return value, true, nil
}
