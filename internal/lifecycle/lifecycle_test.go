package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/types"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *sqlite.SQLiteStorage
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "pm.db"))
	if err != nil {
		t.Fatalf("sqlite.New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{t: t, ctx: ctx, store: store, svc: New(store)}
}

func (f *fixture) epic(name string) *types.Epic {
	f.t.Helper()
	e := &types.Epic{Name: name}
	if err := f.store.CreateEpic(f.ctx, e); err != nil {
		f.t.Fatalf("CreateEpic failed: %v", err)
	}
	return e
}

func (f *fixture) task(e *types.Epic, name string, deps ...*types.Task) *types.Task {
	f.t.Helper()
	tk := &types.Task{EpicID: e.ID, Name: name}
	if err := f.store.CreateTask(f.ctx, tk); err != nil {
		f.t.Fatalf("CreateTask failed: %v", err)
	}
	for _, d := range deps {
		if err := f.store.AddDependency(f.ctx, tk.ID, d.ID); err != nil {
			f.t.Fatalf("AddDependency failed: %v", err)
		}
	}
	return tk
}

func (f *fixture) epicState(e *types.Epic) (int, types.EpicStatus) {
	f.t.Helper()
	got, err := f.store.GetEpicByID(f.ctx, e.ID)
	if err != nil {
		f.t.Fatalf("GetEpicByID failed: %v", err)
	}
	return got.Progress, got.Status
}

func (f *fixture) classify(e *types.Epic) (ready []int64, blocked []int64) {
	f.t.Helper()
	snap, err := f.store.LoadGraph(f.ctx)
	if err != nil {
		f.t.Fatalf("LoadGraph failed: %v", err)
	}
	for _, t := range snap.Ready(graph.Epic(e.ID)) {
		ready = append(ready, int64(t.Number))
	}
	for _, b := range snap.Blocked(graph.Epic(e.ID)) {
		blocked = append(blocked, int64(b.Task.Number))
	}
	return ready, blocked
}

func TestStartGuards(t *testing.T) {
	f := newFixture(t)
	e := f.epic("auth")
	t1 := f.task(e, "schema")
	t2 := f.task(e, "handlers", t1)

	res, err := f.svc.Start(f.ctx, t2.ID)
	if err != nil {
		t.Fatalf("Start of blocked task should be allowed: %v", err)
	}
	if len(res.Blockers) != 1 || res.Blockers[0].ID != t1.ID {
		t.Errorf("Blockers = %+v, want [%d]", res.Blockers, t1.ID)
	}
	if res.Task.Status != types.StatusInProgress || res.Previous != types.StatusOpen {
		t.Errorf("unexpected result: %+v", res)
	}

	res, err = f.svc.Start(f.ctx, t2.ID)
	if !errors.Is(err, types.ErrAlreadyInState) || !IsNoop(err) {
		t.Fatalf("second Start: got %v, want AlreadyInState", err)
	}
	if res == nil || res.Changed {
		t.Errorf("no-op result should be returned unchanged: %+v", res)
	}

	if _, err := f.svc.Close(f.ctx, t1.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.svc.Start(f.ctx, t1.ID); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Start of closed task: got %v, want InvalidTransition", err)
	}

	if _, err := f.svc.Start(f.ctx, 9999); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Start of missing task: got %v, want NotFound", err)
	}
}

func TestCloseAndReopenNoops(t *testing.T) {
	f := newFixture(t)
	e := f.epic("auth")
	t1 := f.task(e, "schema")

	if _, err := f.svc.Reopen(f.ctx, t1.ID); !errors.Is(err, types.ErrAlreadyInState) {
		t.Errorf("Reopen of open task: got %v", err)
	}
	if _, err := f.svc.Close(f.ctx, t1.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.svc.Close(f.ctx, t1.ID); !errors.Is(err, types.ErrAlreadyInState) {
		t.Errorf("second Close: got %v", err)
	}
}

func TestReopenFromInProgress(t *testing.T) {
	f := newFixture(t)
	e := f.epic("auth")
	t1 := f.task(e, "schema")
	if _, err := f.svc.Start(f.ctx, t1.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err := f.svc.Reopen(f.ctx, t1.ID)
	if err != nil {
		t.Fatalf("Reopen from in_progress failed: %v", err)
	}
	if res.Task.Status != types.StatusOpen || res.Previous != types.StatusInProgress {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestCloseCascade(t *testing.T) {
	f := newFixture(t)
	e := f.epic("E")
	t1 := f.task(e, "first")
	t2 := f.task(e, "second", t1)

	ready, blocked := f.classify(e)
	if !equal(ready, []int64{1}) || !equal(blocked, []int64{2}) {
		t.Fatalf("initial ready=%v blocked=%v", ready, blocked)
	}
	if pct, status := f.epicState(e); pct != 0 || status != types.EpicBacklog {
		t.Fatalf("initial epic = %d/%s", pct, status)
	}

	res, err := f.svc.Close(f.ctx, t1.ID)
	if err != nil {
		t.Fatalf("Close #1 failed: %v", err)
	}
	if len(res.Unblocked) != 1 || res.Unblocked[0].ID != t2.ID {
		t.Errorf("Unblocked = %+v, want #2", res.Unblocked)
	}
	if res.Progress.Summary.Percent != 50 || res.Progress.PreviousPct != 0 {
		t.Errorf("progress = %+v", res.Progress)
	}
	ready, blocked = f.classify(e)
	if !equal(ready, []int64{2}) || len(blocked) != 0 {
		t.Errorf("after close #1 ready=%v blocked=%v", ready, blocked)
	}
	if pct, status := f.epicState(e); pct != 50 || status != types.EpicActive {
		t.Errorf("epic after #1 = %d/%s, want 50/active", pct, status)
	}

	if _, err := f.svc.Close(f.ctx, t2.ID); err != nil {
		t.Fatalf("Close #2 failed: %v", err)
	}
	if pct, status := f.epicState(e); pct != 100 || status != types.EpicClosed {
		t.Errorf("epic after #2 = %d/%s, want 100/closed", pct, status)
	}

	res, err = f.svc.Reopen(f.ctx, t1.ID)
	if err != nil {
		t.Fatalf("Reopen #1 failed: %v", err)
	}
	if pct, status := f.epicState(e); pct != 50 || status != types.EpicActive {
		t.Errorf("epic after reopen = %d/%s, want 50/active", pct, status)
	}
	ready, blocked = f.classify(e)
	if !equal(ready, []int64{1}) || len(blocked) != 0 {
		t.Errorf("after reopen ready=%v blocked=%v", ready, blocked)
	}
	if len(res.Unblocked) != 0 {
		t.Errorf("reopen should not report unblocked tasks")
	}
}

func TestCloseDoesNotReportAlreadyReadyOrStillBlocked(t *testing.T) {
	f := newFixture(t)
	e := f.epic("E")
	a := f.task(e, "a")
	b := f.task(e, "b")
	c := f.task(e, "c", a, b) // still blocked by b after a closes
	d := f.task(e, "d", a)    // becomes ready
	if _, err := f.svc.Start(f.ctx, f.task(e, "x", a).ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := f.svc.Close(f.ctx, a.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(res.Unblocked) != 1 || res.Unblocked[0].ID != d.ID {
		t.Errorf("Unblocked = %+v, want only %d (c=%d still blocked)", res.Unblocked, d.ID, c.ID)
	}
}

func TestApply(t *testing.T) {
	f := newFixture(t)
	e := f.epic("E")
	t1 := f.task(e, "a")
	if _, err := f.svc.Apply(f.ctx, t1.ID, types.StatusClosed); err != nil {
		t.Fatalf("Apply(closed) failed: %v", err)
	}
	if _, err := f.svc.Apply(f.ctx, t1.ID, "done"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Apply(done): got %v", err)
	}
}

func equal(a, b []int64) bool {
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
