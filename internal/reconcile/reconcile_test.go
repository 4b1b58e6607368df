package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/ccpm/internal/lifecycle"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/tracker"
	"github.com/untoldecay/ccpm/internal/types"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	t     *testing.T
	ctx   context.Context
	store *sqlite.SQLiteStorage
	fake  *tracker.Fake
	lc    *lifecycle.Service
	rec   *Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "pm.db"))
	if err != nil {
		t.Fatalf("sqlite.New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	fake := tracker.NewFake()
	lc := lifecycle.New(store)
	return &env{
		t: t, ctx: ctx, store: store, fake: fake, lc: lc,
		rec: New(store, fake, lc, WithClock(func() time.Time { return fixedNow })),
	}
}

func (e *env) epic(name string, issue int64) *types.Epic {
	e.t.Helper()
	ep := &types.Epic{Name: name}
	if issue > 0 {
		ep.ExternalIssue = &issue
	}
	if err := e.store.CreateEpic(e.ctx, ep); err != nil {
		e.t.Fatalf("CreateEpic failed: %v", err)
	}
	return ep
}

func (e *env) task(ep *types.Epic, name string, issue int64) *types.Task {
	e.t.Helper()
	tk := &types.Task{EpicID: ep.ID, Name: name}
	if issue > 0 {
		tk.ExternalIssue = &issue
	}
	if err := e.store.CreateTask(e.ctx, tk); err != nil {
		e.t.Fatalf("CreateTask failed: %v", err)
	}
	return tk
}

func (e *env) reload(tk *types.Task) *types.Task {
	e.t.Helper()
	got, err := e.store.GetTaskByID(e.ctx, tk.ID)
	if err != nil {
		e.t.Fatalf("GetTaskByID failed: %v", err)
	}
	return got
}

func TestPushTaskClosureAndReopen(t *testing.T) {
	e := newEnv(t)
	e.fake.Seed(tracker.Issue{Number: 100, Body: "- [ ] #101 a\n- [ ] #102 b\n"})
	ep := e.epic("auth", 100)
	a := e.task(ep, "a", 101)

	changed, err := e.rec.PushTaskClosure(e.ctx, a)
	if err != nil || !changed {
		t.Fatalf("PushTaskClosure = %v, %v", changed, err)
	}
	changed, err = e.rec.PushTaskClosure(e.ctx, a)
	if err != nil || changed {
		t.Fatalf("second PushTaskClosure = %v, %v", changed, err)
	}
	if e.fake.Count("edit") != 1 {
		t.Errorf("edits = %d, want 1", e.fake.Count("edit"))
	}
	if _, err := e.rec.PushTaskReopen(e.ctx, a); err != nil {
		t.Fatalf("PushTaskReopen failed: %v", err)
	}
	if is, _ := e.fake.Issue(100); is.Body != "- [ ] #101 a\n- [ ] #102 b\n" {
		t.Errorf("body after reopen = %q", is.Body)
	}
}

func TestPushSkipsUnlinked(t *testing.T) {
	e := newEnv(t)
	ep := e.epic("auth", 0)
	linked := e.task(ep, "a", 5)
	plain := e.task(ep, "b", 0)

	for _, tk := range []*types.Task{linked, plain} {
		if changed, err := e.rec.PushTaskClosure(e.ctx, tk); err != nil || changed {
			t.Errorf("PushTaskClosure(%s) = %v, %v", tk.Name, changed, err)
		}
	}
	if len(e.fake.Ops) != 0 {
		t.Errorf("tracker was called: %v", e.fake.Ops)
	}
}

func TestPushTaskState(t *testing.T) {
	e := newEnv(t)
	e.fake.Seed(tracker.Issue{Number: 1, Body: "- [ ] #2 a"})
	e.fake.Seed(tracker.Issue{Number: 2})
	ep := e.epic("auth", 1)
	a := e.task(ep, "a", 2)

	res, err := e.lc.Close(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	push, err := e.rec.PushTaskState(e.ctx, res.Task, "closed locally")
	if err != nil {
		t.Fatalf("PushTaskState failed: %v", err)
	}
	if !push.StateChanged || !push.ChecklistChanged {
		t.Errorf("push = %+v", push)
	}
	if is, _ := e.fake.Issue(2); is.State != tracker.StateClosed {
		t.Errorf("task issue state = %s", is.State)
	}
	if got := e.fake.Comments(2); len(got) != 1 {
		t.Errorf("comments = %v", got)
	}
	if epicIssue, _ := e.fake.Issue(1); epicIssue.Body != "- [x] #2 a" {
		t.Errorf("epic body = %q", epicIssue.Body)
	}
	if synced := e.reload(a).ExternalSyncedAt; synced == nil || !synced.Equal(fixedNow) {
		t.Errorf("external_synced_at = %v", synced)
	}

	// Already in sync: no state change and no comment.
	push, err = e.rec.PushTaskState(e.ctx, res.Task, "again")
	if err != nil || push.StateChanged || push.ChecklistChanged {
		t.Errorf("repeat push = %+v, %v", push, err)
	}
	if len(e.fake.Comments(2)) != 1 {
		t.Error("repeat push commented again")
	}
}

func TestSyncFailureKeepsLocalState(t *testing.T) {
	e := newEnv(t)
	e.fake.Seed(tracker.Issue{Number: 2})
	ep := e.epic("auth", 0)
	a := e.task(ep, "a", 2)
	e.fake.Fail["close"] = errors.New("connection refused")

	res, err := e.lc.Close(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err = e.rec.PushTaskState(e.ctx, res.Task, "")
	if !errors.Is(err, types.ErrExternalSync) || !IsSyncFailure(err) {
		t.Fatalf("got %v, want external sync failure", err)
	}
	if e.reload(a).Status != types.StatusClosed {
		t.Error("local close was rolled back")
	}
}

func TestCommentFailureStillUpdatesChecklist(t *testing.T) {
	e := newEnv(t)
	e.fake.Seed(tracker.Issue{Number: 1, Body: "- [ ] #2 a"})
	e.fake.Seed(tracker.Issue{Number: 2})
	ep := e.epic("auth", 1)
	a := e.task(ep, "a", 2)
	e.fake.Fail["comment"] = errors.New("secondary rate limit")

	res, err := e.lc.Close(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	push, err := e.rec.PushTaskState(e.ctx, res.Task, "closed locally")
	if !IsSyncFailure(err) {
		t.Fatalf("got %v, want external sync failure", err)
	}
	if !push.StateChanged || !push.ChecklistChanged {
		t.Errorf("push = %+v", push)
	}
	if is, _ := e.fake.Issue(2); is.State != tracker.StateClosed {
		t.Errorf("task issue state = %s", is.State)
	}
	if epicIssue, _ := e.fake.Issue(1); epicIssue.Body != "- [x] #2 a" {
		t.Errorf("epic body = %q", epicIssue.Body)
	}
	if synced := e.reload(a).ExternalSyncedAt; synced == nil || !synced.Equal(fixedNow) {
		t.Errorf("external_synced_at = %v", synced)
	}
}

func TestPull(t *testing.T) {
	e := newEnv(t)
	ep := e.epic("auth", 0)
	a := e.task(ep, "a", 7)
	e.fake.Seed(tracker.Issue{Number: 7, State: tracker.StateClosed})

	res, err := e.rec.Pull(e.ctx, 7)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if !res.Changed || res.Task.Status != types.StatusClosed {
		t.Errorf("pull = %+v", res)
	}
	got, _ := e.store.GetEpicByID(e.ctx, ep.ID)
	if got.Progress != 100 {
		t.Errorf("epic progress = %d, want 100", got.Progress)
	}

	res, err = e.rec.Pull(e.ctx, 7)
	if err != nil || res.Changed {
		t.Errorf("repeat pull = %+v, %v", res, err)
	}

	// Remote open moves an in-progress task back to open.
	e.fake.Seed(tracker.Issue{Number: 7, State: tracker.StateOpen})
	if _, err := e.lc.Reopen(e.ctx, a.ID); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if _, err := e.lc.Start(e.ctx, a.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res, err = e.rec.Pull(e.ctx, 7)
	if err != nil || res.Task.Status != types.StatusOpen {
		t.Errorf("pull of open issue = %+v, %v", res, err)
	}

	if _, err := e.rec.Pull(e.ctx, 999); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("pull of unlinked issue: %v", err)
	}
}

func TestPublishEpic(t *testing.T) {
	e := newEnv(t)
	ep := e.epic("auth", 0)
	ep.Content = "Login work."
	a := e.task(ep, "schema", 0)
	e.task(ep, "handlers", 0)
	if _, err := e.lc.Close(e.ctx, a.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	res, err := e.rec.PublishEpic(e.ctx, ep)
	if err != nil {
		t.Fatalf("PublishEpic failed: %v", err)
	}
	if !res.EpicCreated || len(res.CreatedIssues) != 2 || res.EpicIssue != 3 {
		t.Fatalf("publish = %+v", res)
	}
	epicIssue, _ := e.fake.Issue(3)
	for _, want := range []string{"Login work.", "- [x] #1 schema", "- [ ] #2 handlers"} {
		if !strings.Contains(epicIssue.Body, want) {
			t.Errorf("epic body %q missing %q", epicIssue.Body, want)
		}
	}
	if first, _ := e.fake.Issue(1); first.State != tracker.StateClosed || first.Labels[1] != "epic:auth" {
		t.Errorf("task issue = %+v", first)
	}

	// A new task is appended on the next publish.
	e.task(ep, "docs", 0)
	stored, _ := e.store.GetEpicByID(e.ctx, ep.ID)
	res, err = e.rec.PublishEpic(e.ctx, stored)
	if err != nil {
		t.Fatalf("second PublishEpic failed: %v", err)
	}
	if res.EpicCreated || !res.BodyChanged || len(res.CreatedIssues) != 1 {
		t.Errorf("second publish = %+v", res)
	}
	epicIssue, _ = e.fake.Issue(3)
	if !strings.Contains(epicIssue.Body, "- [ ] #4 docs") {
		t.Errorf("epic body = %q", epicIssue.Body)
	}
}

func TestRefreshEpicChecklist(t *testing.T) {
	e := newEnv(t)
	e.fake.Seed(tracker.Issue{Number: 1, Body: "- [x] #2 a\n- [ ] #3 b\n"})
	ep := e.epic("auth", 1)
	e.task(ep, "a", 2)
	b := e.task(ep, "b", 3)
	if _, err := e.lc.Close(e.ctx, b.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	changed, err := e.rec.RefreshEpicChecklist(e.ctx, ep)
	if err != nil || !changed {
		t.Fatalf("RefreshEpicChecklist = %v, %v", changed, err)
	}
	if is, _ := e.fake.Issue(1); is.Body != "- [ ] #2 a\n- [x] #3 b\n" {
		t.Errorf("body = %q", is.Body)
	}
	if e.fake.Count("edit") != 1 {
		t.Errorf("edits = %d, want a single write", e.fake.Count("edit"))
	}
}
