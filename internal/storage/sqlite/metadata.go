package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Metadata keys written by pm itself.
const (
	MetaBinaryVersion = "pm_version"
	MetaLastSync      = "last_sync"
)

// SetMetadata stores an internal key/value pair.
func (qs *queries) SetMetadata(ctx context.Context, key, value string) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value for key, or "" if it was never set.
func (qs *queries) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := qs.q.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}
