package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/config"
	"github.com/untoldecay/ccpm/internal/lifecycle"
	"github.com/untoldecay/ccpm/internal/lockfile"
	"github.com/untoldecay/ccpm/internal/reconcile"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/tracker"
	"github.com/untoldecay/ccpm/internal/tracker/github"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
	"github.com/untoldecay/ccpm/internal/utils"
)

// errTrackerNotConfigured is returned by commands that cannot run without a
// tracker.
var errTrackerNotConfigured = errors.New("no issue tracker configured (set github.repo or add a GitHub origin remote)")

// trackerFactory builds the tracker client. It returns nil, nil when no
// tracker is configured. Tests replace it with a fake.
var trackerFactory = func() (tracker.Tracker, error) {
	remote := config.GitHubRemote()
	if remote == "" {
		return nil, nil
	}
	repo, ok := github.ParseRepo(remote)
	if !ok {
		return nil, nil
	}
	token := config.GitHubToken()
	if token == "" {
		return nil, fmt.Errorf("GitHub repo %s is configured but no token was found (set GITHUB_TOKEN or run 'gh auth login')", repo)
	}
	client, err := github.NewClient(token, repo)
	if err != nil {
		return nil, err
	}
	if endpoint := config.GetString("github.endpoint"); endpoint != "" {
		client = client.WithEndpoint(endpoint)
	}
	return client, nil
}

func newLifecycle() *lifecycle.Service {
	return lifecycle.New(store, lifecycle.WithHooks(hookRunner), lifecycle.WithLogger(logger))
}

func newReconciler(tr tracker.Tracker) *reconcile.Reconciler {
	return reconcile.New(store, tr, newLifecycle(), reconcile.WithLogger(logger))
}

// requireReconciler builds a reconciler or fails when no tracker is set up.
func requireReconciler() (*reconcile.Reconciler, error) {
	tr, err := trackerFactory()
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errTrackerNotConfigured
	}
	return newReconciler(tr), nil
}

// acquireSyncLock serializes tracker sync and plan import across processes.
func acquireSyncLock(ctx context.Context) (*lockfile.Lock, error) {
	dir := projectDir
	if dir == "" {
		dir = filepath.Dir(store.Path())
	}
	lock, err := lockfile.Acquire(ctx, filepath.Join(dir, "sync.lock"), config.GetDuration("lock-timeout"))
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// lookupEpic is GetEpic with "did you mean" suggestions on a miss.
func lookupEpic(name string) (*types.Epic, error) {
	epic, err := store.GetEpic(rootCtx, name)
	if !types.IsNotFound(err) {
		return epic, err
	}
	epics, lerr := store.ListEpics(rootCtx, types.EpicFilter{})
	if lerr != nil {
		return nil, err
	}
	names := make([]string, len(epics))
	for i, e := range epics {
		names[i] = e.Name
	}
	return nil, withSuggestions(err, utils.Suggest(name, names, 2, 3))
}

// lookupPRD is GetPRD with "did you mean" suggestions on a miss.
func lookupPRD(name string) (*types.PRD, error) {
	prd, err := store.GetPRD(rootCtx, name)
	if !types.IsNotFound(err) {
		return prd, err
	}
	prds, lerr := store.ListPRDs(rootCtx)
	if lerr != nil {
		return nil, err
	}
	names := make([]string, len(prds))
	for i, p := range prds {
		names[i] = p.Name
	}
	return nil, withSuggestions(err, utils.Suggest(name, names, 2, 3))
}

func withSuggestions(err error, suggestions []string) error {
	if len(suggestions) == 0 {
		return err
	}
	return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(suggestions, ", "))
}

// resolveTask accepts "epic#3" or "epic 3".
func resolveTask(ctx context.Context, r storage.Reader, args []string) (*types.Task, error) {
	var ref types.TaskRef
	switch len(args) {
	case 1:
		var err error
		if ref, err = types.ParseTaskRef(args[0]); err != nil {
			return nil, err
		}
	case 2:
		n, err := types.ParseTaskNumber(args[1])
		if err != nil {
			return nil, err
		}
		ref = types.TaskRef{Epic: args[0], Number: n}
	default:
		return nil, &types.ValidationError{Field: "task", Reason: "expected <epic>#<number> or <epic> <number>"}
	}
	return r.GetTask(ctx, ref.Epic, ref.Number)
}

// taskArgs validates the argument forms resolveTask accepts.
var taskArgs = cobra.RangeArgs(1, 2)

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveDependencyRefs maps "3", "#3" or "other-epic#3" to task ids.
// Bare numbers refer to tasks in epic.
func resolveDependencyRefs(ctx context.Context, r storage.Reader, epic string, refs []string) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		var t *types.Task
		var err error
		if strings.ContainsAny(strings.TrimPrefix(ref, "#"), "#/:") {
			t, err = resolveTask(ctx, r, []string{ref})
		} else {
			var n int
			if n, err = types.ParseTaskNumber(ref); err == nil {
				t, err = r.GetTask(ctx, epic, n)
			}
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// runTransition applies a lifecycle transition, reports it and pushes the
// new state to the tracker when sync.auto is on. An already-applied
// transition is reported as information, not failure.
func runTransition(cmd *cobra.Command, args []string, target types.TaskStatus, verb string) error {
	ctx := rootCtx
	task, err := resolveTask(ctx, store, args)
	if err != nil {
		return err
	}
	res, err := newLifecycle().Apply(ctx, task.ID, target)
	if lifecycle.IsNoop(err) {
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		infof(cmd, "%s", err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	note, _ := cmd.Flags().GetString("comment")
	var push *reconcile.PushResult
	if noSync, _ := cmd.Flags().GetBool("no-sync"); !noSync {
		push, err = autoPush(ctx, cmd, res.Task, note)
		if err != nil {
			return err
		}
		if push != nil && push.Issue != 0 {
			// Pick up external_synced_at.
			if fresh, err := store.GetTaskByID(ctx, res.Task.ID); err == nil {
				res.Task = fresh
			}
		}
	}

	if jsonOutput {
		return outputJSON(cmd, struct {
			*lifecycle.Result
			Sync *reconcile.PushResult `json:"sync,omitempty"`
		}{res, push})
	}
	printTransition(cmd, res, verb)
	if push != nil && (push.StateChanged || push.ChecklistChanged) {
		printf(cmd, "  %s issue #%d updated\n", ui.CheckMark(), push.Issue)
	}
	return nil
}

// autoPush pushes a task's state when sync.auto is on and a tracker is
// configured. Tracker failures become warnings: the local change is already
// committed.
func autoPush(ctx context.Context, cmd *cobra.Command, task *types.Task, note string) (*reconcile.PushResult, error) {
	if !config.GetBool("sync.auto") || task.ExternalIssue == nil {
		return nil, nil
	}
	tr, err := trackerFactory()
	if err != nil {
		warnSyncFailure(cmd, &types.SyncError{Op: "connect", Issue: *task.ExternalIssue, Err: err})
		return nil, nil
	}
	if tr == nil {
		return nil, nil
	}
	if note == "" {
		note = fmt.Sprintf("Task %s marked %s at %s", task.Ref(), task.Status, time.Now().UTC().Format(time.RFC3339))
	}
	push, err := newReconciler(tr).PushTaskState(ctx, task, note)
	if reconcile.IsSyncFailure(err) {
		warnSyncFailure(cmd, err)
		return push, nil
	}
	return push, err
}

// warnSyncFailure reports a tracker failure after a committed local change.
func warnSyncFailure(cmd *cobra.Command, err error) {
	logger.Warn("tracker sync failed", "error", err)
	warnf(cmd, "%v (local change kept; run 'pm issue sync' to retry)", err)
}

func printTransition(cmd *cobra.Command, res *lifecycle.Result, verb string) {
	t := res.Task
	printf(cmd, "%s %s %s: %s\n", ui.RenderPass(ui.CheckMark()), verb, ui.RenderAccent(t.Ref()), t.Name)
	for _, b := range res.Blockers {
		warnf(cmd, "started while blocked by %s (%s)", b.Ref(), b.Status)
	}
	if p := res.Progress; p != nil && p.Epic != nil {
		printf(cmd, "  Epic %s: %s %s\n", p.Epic.Name, ui.ProgressBar(p.Summary.Percent, 20), ui.EpicStatusBadge(p.Summary.Status))
	}
	if len(res.Unblocked) > 0 {
		printf(cmd, "  Now ready:\n")
		for _, u := range res.Unblocked {
			printf(cmd, "    %s %s\n", ui.RenderAccent(u.Ref()), u.Name)
		}
	}
}
