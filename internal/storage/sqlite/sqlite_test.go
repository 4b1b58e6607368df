package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
)

func TestNewCreatesSchemaAndReopens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "pm.db")
	store := newTestStore(t, dbPath)
	if store.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", store.Path(), dbPath)
	}

	// Reopening runs migrations again; they must be idempotent.
	again := newTestStore(t, dbPath)
	if _, err := again.ListEpics(context.Background(), types.EpicFilter{}); err != nil {
		t.Fatalf("ListEpics on reopened store failed: %v", err)
	}
}

func TestPRDCRUD(t *testing.T) {
	env := newTestEnv(t)
	prd := &types.PRD{Name: "  onboarding ", Description: "first-run flow"}
	if err := env.Store.CreatePRD(env.Ctx, prd); err != nil {
		t.Fatalf("CreatePRD failed: %v", err)
	}
	if prd.Name != "onboarding" || prd.Status != types.PRDBacklog {
		t.Errorf("CreatePRD did not normalize: %+v", prd)
	}

	dup := &types.PRD{Name: "onboarding"}
	if err := env.Store.CreatePRD(env.Ctx, dup); !errors.Is(err, types.ErrValidation) {
		t.Errorf("duplicate PRD name: got %v, want validation error", err)
	}

	active := types.PRDActive
	if err := env.Store.UpdatePRD(env.Ctx, prd.ID, types.PRDUpdate{Status: &active}); err != nil {
		t.Fatalf("UpdatePRD failed: %v", err)
	}
	got, err := env.Store.GetPRD(env.Ctx, "onboarding")
	if err != nil {
		t.Fatalf("GetPRD failed: %v", err)
	}
	if got.Status != types.PRDActive || !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("update not applied: %+v", got)
	}

	if err := env.Store.DeletePRD(env.Ctx, prd.ID); err != nil {
		t.Fatalf("DeletePRD failed: %v", err)
	}
	if _, err := env.Store.GetPRD(env.Ctx, "onboarding"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("tombstoned PRD still visible: %v", err)
	}
	// The name is free again once tombstoned.
	if err := env.Store.CreatePRD(env.Ctx, &types.PRD{Name: "onboarding"}); err != nil {
		t.Errorf("recreating tombstoned PRD name failed: %v", err)
	}
}

func TestEpicCreateRequiresLivePRD(t *testing.T) {
	env := newTestEnv(t)
	missing := int64(404)
	err := env.Store.CreateEpic(env.Ctx, &types.Epic{Name: "auth", PRDID: &missing})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("epic with missing PRD: got %v, want not found", err)
	}

	if err := env.Store.CreateEpic(env.Ctx, &types.Epic{Name: " "}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("blank epic name: got %v", err)
	}
}

func TestUpdateEpicTypedFields(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("auth")
	env.CreateEpic("billing")

	issue := int64(77)
	err := env.Store.UpdateEpic(env.Ctx, epic.ID, types.EpicUpdate{
		Progress:      types.IntPtr(50),
		Status:        types.EpicStatusPtr(types.EpicActive),
		ExternalIssue: &issue,
	})
	if err != nil {
		t.Fatalf("UpdateEpic failed: %v", err)
	}
	got, err := env.Store.GetEpicByExternalIssue(env.Ctx, 77)
	if err != nil {
		t.Fatalf("GetEpicByExternalIssue failed: %v", err)
	}
	if got.ID != epic.ID || got.Progress != 50 || got.Status != types.EpicActive {
		t.Errorf("unexpected epic after update: %+v", got)
	}

	if err := env.Store.UpdateEpic(env.Ctx, epic.ID, types.EpicUpdate{Name: types.StrPtr("billing")}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("rename onto existing epic: got %v, want validation error", err)
	}
	if err := env.Store.UpdateEpic(env.Ctx, 9999, types.EpicUpdate{Content: types.StrPtr("x")}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("update missing epic: got %v, want not found", err)
	}
}

func TestTaskNumbering(t *testing.T) {
	env := newTestEnv(t)
	auth := env.CreateEpic("auth")
	billing := env.CreateEpic("billing")

	a1 := env.CreateTask(auth, "login form")
	a2 := env.CreateTask(auth, "session store")
	b1 := env.CreateTask(billing, "invoice model")

	if a1.Number != 1 || a2.Number != 2 || b1.Number != 1 {
		t.Fatalf("numbers = %d, %d, %d; want 1, 2, 1", a1.Number, a2.Number, b1.Number)
	}
	if a2.EpicName != "auth" {
		t.Errorf("EpicName = %q", a2.EpicName)
	}

	got, err := env.Store.GetTask(env.Ctx, "auth", 2)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.ID != a2.ID || got.Name != "session store" || got.Status != types.StatusOpen {
		t.Errorf("GetTask returned %+v", got)
	}

	if _, err := env.Store.GetTask(env.Ctx, "auth", 9); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing task: got %v", err)
	}
}

func TestCreateTaskInDeletedEpic(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("gone")
	if err := env.Store.DeleteEpic(env.Ctx, epic.ID); err != nil {
		t.Fatalf("DeleteEpic failed: %v", err)
	}
	err := env.Store.CreateTask(env.Ctx, &types.Task{EpicID: epic.ID, Name: "orphan"})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("CreateTask in deleted epic: got %v, want not found", err)
	}
}

func TestUpdateTaskFields(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("auth")
	task := env.CreateTask(epic, "login form")

	issue := int64(12)
	synced := env.clock.Add(time.Hour)
	err := env.Store.UpdateTask(env.Ctx, task.ID, types.TaskUpdate{
		EstimatedHours:   types.Float64Ptr(3.5),
		Parallel:         types.BoolPtr(true),
		ExternalIssue:    &issue,
		ExternalSyncedAt: &synced,
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := env.Store.GetTaskByExternalIssue(env.Ctx, 12)
	if err != nil {
		t.Fatalf("GetTaskByExternalIssue failed: %v", err)
	}
	if got.EstimatedHours == nil || *got.EstimatedHours != 3.5 {
		t.Errorf("EstimatedHours = %v", got.EstimatedHours)
	}
	if !got.Parallel {
		t.Errorf("Parallel not set")
	}
	if got.ExternalSyncedAt == nil || !got.ExternalSyncedAt.Equal(synced) {
		t.Errorf("ExternalSyncedAt = %v, want %v", got.ExternalSyncedAt, synced)
	}
	if !got.UpdatedAt.After(task.UpdatedAt) {
		t.Errorf("updated_at not advanced: before %v after %v", task.UpdatedAt, got.UpdatedAt)
	}
}

func TestUpdateTaskClearsIssueLink(t *testing.T) {
	env := newTestEnv(t)
	task := env.CreateTask(env.CreateEpic("auth"), "login form")

	issue := int64(7)
	if err := env.Store.UpdateTask(env.Ctx, task.ID, types.TaskUpdate{ExternalIssue: &issue}); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	var none int64
	if err := env.Store.UpdateTask(env.Ctx, task.ID, types.TaskUpdate{ExternalIssue: &none}); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	got, err := env.Store.GetTaskByID(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExternalIssue != nil {
		t.Errorf("ExternalIssue = %d, want nil", *got.ExternalIssue)
	}
	if _, err := env.Store.GetTaskByExternalIssue(env.Ctx, 7); !types.IsNotFound(err) {
		t.Errorf("issue #7 still resolves: %v", err)
	}
}

func TestListTasksFilter(t *testing.T) {
	env := newTestEnv(t)
	auth := env.CreateEpic("auth")
	billing := env.CreateEpic("billing")
	env.CreateTask(auth, "login form")
	closed := env.CreateTask(auth, "password reset")
	env.CreateTask(billing, "invoice login audit")
	env.SetStatus(closed, types.StatusClosed)

	tests := []struct {
		name   string
		filter types.TaskFilter
		want   int
	}{
		{"all", types.TaskFilter{}, 3},
		{"by epic", types.TaskFilter{EpicID: &auth.ID}, 2},
		{"by status", types.TaskFilter{Status: types.TaskStatusPtr(types.StatusClosed)}, 1},
		{"query", types.TaskFilter{Query: "login"}, 2},
		{"no issue", types.TaskFilter{HasExternalIssue: types.BoolPtr(false)}, 3},
		{"limit", types.TaskFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Store.ListTasks(env.Ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d tasks, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("auth")

	boom := errors.New("boom")
	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		if err := tx.CreateTask(env.Ctx, &types.Task{EpicID: epic.ID, Name: "doomed"}); err != nil {
			return err
		}
		// Read-your-writes inside the transaction.
		if _, err := tx.GetTask(env.Ctx, "auth", 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction error = %v, want boom", err)
	}
	tasks, err := env.Store.ListTasks(env.Ctx, types.TaskFilter{EpicID: &epic.ID})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("rolled back task is visible: %+v", tasks)
	}
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.Store.GetMetadata(env.Ctx, MetaBinaryVersion)
	if err != nil || v != "" {
		t.Fatalf("unset metadata = %q, %v", v, err)
	}
	for _, want := range []string{"0.1.0", "0.2.0"} {
		if err := env.Store.SetMetadata(env.Ctx, MetaBinaryVersion, want); err != nil {
			t.Fatalf("SetMetadata failed: %v", err)
		}
		if got, _ := env.Store.GetMetadata(env.Ctx, MetaBinaryVersion); got != want {
			t.Errorf("GetMetadata = %q, want %q", got, want)
		}
	}
}

func TestListMigrations(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range ListMigrations() {
		if m.Description == "" {
			t.Errorf("migration %s has no description", m.Name)
		}
		if seen[m.Name] {
			t.Errorf("migration %s registered twice", m.Name)
		}
		seen[m.Name] = true
	}
}
