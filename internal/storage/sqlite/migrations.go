package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/untoldecay/ccpm/internal/storage/sqlite/migrations"
)

// Migration is one idempotent schema step, run on every open.
type Migration struct {
	Name        string
	Description string
	Func        func(*sql.DB) error
}

var migrationsList = []Migration{
	{
		Name:        "external_synced_at_column",
		Description: "Adds external_synced_at column to tasks for tracker sync bookkeeping",
		Func:        migrations.MigrateExternalSyncedAtColumn,
	},
	{
		Name:        "prd_updated_at_column",
		Description: "Adds updated_at column to prds and backfills it from created_at",
		Func:        migrations.MigratePRDUpdatedAtColumn,
	},
	{
		Name:        "self_dependency_cleanup",
		Description: "Deletes task dependencies where a task depends on itself",
		Func:        migrations.MigrateSelfDependencyCleanup,
	},
}

// MigrationInfo describes a registered migration.
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns the registered migrations in run order.
func ListMigrations() []MigrationInfo {
	out := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		out[i] = MigrationInfo{Name: m.Name, Description: m.Description}
	}
	return out
}

// RunMigrations executes all registered migrations in order.
// Uses an EXCLUSIVE transaction so two processes opening a fresh database
// cannot race on check-then-alter steps.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec("BEGIN EXCLUSIVE")
	if err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	// Views select t.* so they must be rebuilt after any column change.
	if _, err := db.Exec(liveViews); err != nil {
		return fmt.Errorf("failed to create live views: %w", err)
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}
