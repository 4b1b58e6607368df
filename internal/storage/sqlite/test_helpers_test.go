package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/untoldecay/ccpm/internal/types"
)

// testEnv provides a test environment with common setup and helpers.
// Use newTestEnv(t) to create a test environment with automatic cleanup.
type testEnv struct {
	t     *testing.T
	Store *SQLiteStorage
	Ctx   context.Context
	clock time.Time
}

func newTestStore(t *testing.T, dbPath string, opts ...Option) *SQLiteStorage {
	t.Helper()

	// File-based databases behave like production (WAL, single connection).
	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	store, err := New(context.Background(), dbPath, opts...)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})
	return store
}

// newTestEnv creates a store whose clock advances one second per read so
// updated_at comparisons are deterministic.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:     t,
		Ctx:   context.Background(),
		clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.Store = newTestStore(t, "", WithClock(func() time.Time {
		env.clock = env.clock.Add(time.Second)
		return env.clock
	}))
	return env
}

// CreateEpic creates a live epic with the given name.
func (e *testEnv) CreateEpic(name string) *types.Epic {
	e.t.Helper()
	epic := &types.Epic{Name: name}
	if err := e.Store.CreateEpic(e.Ctx, epic); err != nil {
		e.t.Fatalf("CreateEpic(%q) failed: %v", name, err)
	}
	return epic
}

// CreateTask creates an open task in epic.
func (e *testEnv) CreateTask(epic *types.Epic, name string) *types.Task {
	e.t.Helper()
	task := &types.Task{EpicID: epic.ID, Name: name}
	if err := e.Store.CreateTask(e.Ctx, task); err != nil {
		e.t.Fatalf("CreateTask(%q) failed: %v", name, err)
	}
	return task
}

// AddDep records that task depends on dependsOn.
func (e *testEnv) AddDep(task, dependsOn *types.Task) {
	e.t.Helper()
	if err := e.Store.AddDependency(e.Ctx, task.ID, dependsOn.ID); err != nil {
		e.t.Fatalf("AddDependency(%s -> %s) failed: %v", task.Ref(), dependsOn.Ref(), err)
	}
}

// SetStatus writes a status without going through the lifecycle.
func (e *testEnv) SetStatus(task *types.Task, status types.TaskStatus) {
	e.t.Helper()
	if err := e.Store.UpdateTask(e.Ctx, task.ID, types.TaskUpdate{Status: &status}); err != nil {
		e.t.Fatalf("UpdateTask(%s) failed: %v", task.Ref(), err)
	}
	task.Status = status
}

// insertRawDependency bypasses validation to simulate legacy data.
func (e *testEnv) insertRawDependency(taskID, dependsOnID int64) {
	e.t.Helper()
	_, err := e.Store.db.ExecContext(e.Ctx,
		`INSERT INTO task_dependencies (task_id, depends_on_task_id) VALUES (?, ?)`, taskID, dependsOnID)
	if err != nil {
		e.t.Fatalf("raw dependency insert failed: %v", err)
	}
}

func taskIDs(tasks []*types.Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
