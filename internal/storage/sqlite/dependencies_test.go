package sqlite

import (
	"errors"
	"testing"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/types"
)

func TestAddDependencyValidation(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("auth")
	t1 := env.CreateTask(epic, "schema")
	t2 := env.CreateTask(epic, "handlers")
	gone := env.CreateTask(epic, "scrapped")
	if err := env.Store.DeleteTask(env.Ctx, gone.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	tests := []struct {
		name              string
		task, dependsOnID int64
	}{
		{"self", t1.ID, t1.ID},
		{"missing dependency", t1.ID, 9999},
		{"missing dependent", 9999, t1.ID},
		{"tombstoned dependency", t2.ID, gone.ID},
		{"tombstoned dependent", gone.ID, t1.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.Store.AddDependency(env.Ctx, tt.task, tt.dependsOnID)
			if !errors.Is(err, types.ErrValidation) {
				t.Errorf("AddDependency(%d, %d) = %v, want validation error", tt.task, tt.dependsOnID, err)
			}
		})
	}

	// Duplicate edges are a no-op.
	env.AddDep(t2, t1)
	env.AddDep(t2, t1)
	deps, err := env.Store.GetDependencies(env.Ctx, t2.ID)
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}
	if !sameIDs(taskIDs(deps), []int64{t1.ID}) {
		t.Errorf("GetDependencies = %v", taskIDs(deps))
	}
}

func TestAddDependencyRejectsCycles(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("auth")
	a := env.CreateTask(epic, "a")
	b := env.CreateTask(epic, "b")
	c := env.CreateTask(epic, "c")
	d := env.CreateTask(epic, "d")

	// d -> c -> b -> a
	env.AddDep(b, a)
	env.AddDep(c, b)
	env.AddDep(d, c)

	before, err := env.Store.LoadGraph(env.Ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}

	for _, tt := range []struct {
		name            string
		task, dependsOn *types.Task
	}{
		{"direct", a, b},
		{"transitive", a, d},
		{"middle", b, d},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := env.Store.AddDependency(env.Ctx, tt.task.ID, tt.dependsOn.ID)
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("expected cycle rejection, got %v", err)
			}
		})
	}

	after, err := env.Store.LoadGraph(env.Ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if before.EdgeCount() != after.EdgeCount() {
		t.Errorf("graph changed after rejected edges: %d -> %d", before.EdgeCount(), after.EdgeCount())
	}

	// A diamond is fine.
	env.AddDep(d, a)
}

func TestCrossEpicDependency(t *testing.T) {
	env := newTestEnv(t)
	api := env.CreateEpic("api")
	web := env.CreateEpic("web")
	endpoint := env.CreateTask(api, "endpoint")
	page := env.CreateTask(web, "page")
	env.AddDep(page, endpoint)

	dependents, err := env.Store.GetDependents(env.Ctx, endpoint.ID)
	if err != nil {
		t.Fatalf("GetDependents failed: %v", err)
	}
	if !sameIDs(taskIDs(dependents), []int64{page.ID}) {
		t.Errorf("GetDependents = %v", taskIDs(dependents))
	}

	snap, err := env.Store.LoadGraph(env.Ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	blocked := snap.Blocked(graph.Epic(web.ID))
	if len(blocked) != 1 || blocked[0].BlockedBy[0].ID != endpoint.ID {
		t.Errorf("Blocked(web) = %+v", blocked)
	}
}

func TestRemoveDependencyIdempotent(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("auth")
	a := env.CreateTask(epic, "a")
	b := env.CreateTask(epic, "b")
	env.AddDep(b, a)

	for i := 0; i < 2; i++ {
		if err := env.Store.RemoveDependency(env.Ctx, b.ID, a.ID); err != nil {
			t.Fatalf("RemoveDependency #%d failed: %v", i+1, err)
		}
	}
	deps, err := env.Store.GetDependencies(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("dependency still present: %v", taskIDs(deps))
	}
}

func TestLoadGraphReadiness(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("e")
	t1 := env.CreateTask(epic, "first")
	t2 := env.CreateTask(epic, "second")
	env.AddDep(t2, t1)

	snap, err := env.Store.LoadGraph(env.Ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if got := taskIDs(snap.Ready(graph.Epic(epic.ID))); !sameIDs(got, []int64{t1.ID}) {
		t.Errorf("ready = %v, want [%d]", got, t1.ID)
	}

	env.SetStatus(t1, types.StatusClosed)
	snap, err = env.Store.LoadGraph(env.Ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if got := taskIDs(snap.Ready(graph.Epic(epic.ID))); !sameIDs(got, []int64{t2.ID}) {
		t.Errorf("ready after close = %v, want [%d]", got, t2.ID)
	}
	if got := snap.Blocked(graph.Epic(epic.ID)); len(got) != 0 {
		t.Errorf("blocked after close = %+v", got)
	}
}

func TestCycleWalkSurvivesLegacyCycle(t *testing.T) {
	env := newTestEnv(t)
	epic := env.CreateEpic("legacy")
	a := env.CreateTask(epic, "a")
	b := env.CreateTask(epic, "b")
	c := env.CreateTask(epic, "c")
	env.insertRawDependency(a.ID, b.ID)
	env.insertRawDependency(b.ID, a.ID)

	// The recursive walk must terminate even though the data already cycles.
	if err := env.Store.AddDependency(env.Ctx, c.ID, a.ID); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	snap, err := env.Store.LoadGraph(env.Ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if cycles := snap.Cycles(); len(cycles) != 1 {
		t.Errorf("Cycles() = %d components, want 1", len(cycles))
	}
}
