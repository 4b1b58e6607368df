package migrations

import (
	"database/sql"
	"fmt"
)

func MigratePRDUpdatedAtColumn(db *sql.DB) error {
	var hasColumn bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM pragma_table_info('prds')
		WHERE name = 'updated_at'
	`).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("failed to check for prds.updated_at column: %w", err)
	}

	if !hasColumn {
		// ALTER TABLE cannot add a column with a non-constant default.
		if _, err := db.Exec(`ALTER TABLE prds ADD COLUMN updated_at DATETIME`); err != nil {
			return fmt.Errorf("failed to add prds.updated_at column: %w", err)
		}
		if _, err := db.Exec(`UPDATE prds SET updated_at = created_at WHERE updated_at IS NULL`); err != nil {
			return fmt.Errorf("failed to backfill prds.updated_at: %w", err)
		}
	}
	return nil
}
