package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateSelfDependencyCleanup removes self edges left by versions that did
// not validate dependencies. A task depending on itself is never ready.
func MigrateSelfDependencyCleanup(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM task_dependencies WHERE task_id = depends_on_task_id`); err != nil {
		return fmt.Errorf("failed to delete self dependencies: %w", err)
	}
	return nil
}
