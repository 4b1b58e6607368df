// Package storage defines the interface for PRD, epic and task storage backends.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/types"
)

// ErrDBNotInitialized is returned when a command needs a database that has
// not been created with `pm init`.
var ErrDBNotInitialized = errors.New("database not initialized")

// Reader is the read side shared by Storage and Transaction.
//
// Every read excludes tombstoned rows: tombstoned PRDs, epics and tasks, tasks
// whose epic is tombstoned, and dependency edges touching any of those. There
// is no way to read deleted rows through this interface.
type Reader interface {
	GetPRD(ctx context.Context, name string) (*types.PRD, error)
	GetPRDByID(ctx context.Context, id int64) (*types.PRD, error)
	ListPRDs(ctx context.Context) ([]*types.PRD, error)

	GetEpic(ctx context.Context, name string) (*types.Epic, error)
	GetEpicByID(ctx context.Context, id int64) (*types.Epic, error)
	GetEpicByExternalIssue(ctx context.Context, issue int64) (*types.Epic, error)
	ListEpics(ctx context.Context, filter types.EpicFilter) ([]*types.Epic, error)

	GetTask(ctx context.Context, epicName string, number int) (*types.Task, error)
	GetTaskByID(ctx context.Context, id int64) (*types.Task, error)
	GetTaskByExternalIssue(ctx context.Context, issue int64) (*types.Task, error)
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)

	// GetDependencies returns the direct dependencies of a task.
	GetDependencies(ctx context.Context, taskID int64) ([]*types.Task, error)
	// GetDependents returns the tasks that directly depend on taskID.
	GetDependents(ctx context.Context, taskID int64) ([]*types.Task, error)

	// LoadGraph snapshots every live task and live edge.
	LoadGraph(ctx context.Context) (*graph.Snapshot, error)

	GetMetadata(ctx context.Context, key string) (string, error)
}

// Transaction provides atomic multi-operation support within a single database transaction.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If the callback returns an error or panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// SQLite transactions start with BEGIN IMMEDIATE so the write lock is taken
// before the first read.
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.UpdateTask(ctx, task.ID, types.TaskUpdate{Status: &closed}); err != nil {
//	        return err // Triggers rollback
//	    }
//	    _, err := progress.Recompute(ctx, tx, task.EpicID)
//	    return err
//	})
type Transaction interface {
	Reader

	CreatePRD(ctx context.Context, prd *types.PRD) error
	UpdatePRD(ctx context.Context, id int64, update types.PRDUpdate) error
	DeletePRD(ctx context.Context, id int64) error

	CreateEpic(ctx context.Context, epic *types.Epic) error
	UpdateEpic(ctx context.Context, id int64, update types.EpicUpdate) error
	DeleteEpic(ctx context.Context, id int64) error

	// CreateTask assigns the next task number in the epic and fills in
	// task.ID, task.Number and timestamps.
	CreateTask(ctx context.Context, task *types.Task) error
	UpdateTask(ctx context.Context, id int64, update types.TaskUpdate) error
	DeleteTask(ctx context.Context, id int64) error

	// AddDependency records that taskID depends on dependsOnID. It returns a
	// ValidationError if either task is missing or tombstoned, on a self
	// edge, or when the edge would close a cycle. Adding an existing edge is
	// a no-op.
	AddDependency(ctx context.Context, taskID, dependsOnID int64) error
	// RemoveDependency is idempotent.
	RemoveDependency(ctx context.Context, taskID, dependsOnID int64) error

	SetMetadata(ctx context.Context, key, value string) error
}

// IntegrityReport lists rows that violate store invariants. Such rows can only
// come from databases edited outside pm or written by older versions.
type IntegrityReport struct {
	// OrphanedTasks are live tasks whose epic is tombstoned or missing.
	OrphanedTasks []*types.Task `json:"orphaned_tasks,omitempty"`
	// OrphanedEpics are live epics pointing at a tombstoned or missing PRD.
	OrphanedEpics []*types.Epic `json:"orphaned_epics,omitempty"`
	// BrokenDependencies are stored edges with a dead or missing endpoint.
	BrokenDependencies []types.Dependency `json:"broken_dependencies,omitempty"`
	// DuplicateIssues maps an external issue number to the tasks sharing it.
	DuplicateIssues map[int64][]*types.Task `json:"duplicate_issues,omitempty"`
}

// Empty reports whether no problems were found.
func (r *IntegrityReport) Empty() bool {
	return len(r.OrphanedTasks) == 0 && len(r.OrphanedEpics) == 0 &&
		len(r.BrokenDependencies) == 0 && len(r.DuplicateIssues) == 0
}

// Storage defines the interface for storage backends.
type Storage interface {
	Transaction

	// RunInTransaction executes fn within a database transaction.
	//
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic is re-raised
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// CheckIntegrity scans raw tables for rows that break invariants.
	CheckIntegrity(ctx context.Context) (*IntegrityReport, error)
	// PurgeBrokenDependencies physically removes edges with a dead endpoint.
	PurgeBrokenDependencies(ctx context.Context) (int, error)
	// TombstoneOrphanedTasks tombstones live tasks whose epic is gone.
	TombstoneOrphanedTasks(ctx context.Context) (int, error)

	// Lifecycle
	Close() error

	// Path returns the database file path.
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection.
	UnderlyingDB() *sql.DB
}
