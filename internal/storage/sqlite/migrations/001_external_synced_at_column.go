package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateExternalSyncedAtColumn adds tasks.external_synced_at to databases
// created before tracker sync timestamps were recorded.
func MigrateExternalSyncedAtColumn(db *sql.DB) error {
	var colName string
	err := db.QueryRow(`
		SELECT name FROM pragma_table_info('tasks')
		WHERE name = 'external_synced_at'
	`).Scan(&colName)

	if err == sql.ErrNoRows {
		if _, err := db.Exec(`ALTER TABLE tasks ADD COLUMN external_synced_at DATETIME`); err != nil {
			return fmt.Errorf("failed to add external_synced_at column: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check external_synced_at column: %w", err)
	}
	return nil
}
