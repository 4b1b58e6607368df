// Package reconcile keeps the external issue tracker in step with local task
// state. Local changes are always committed first; tracker calls happen
// afterwards and their failures come back as types.ErrExternalSync without
// undoing anything locally.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/ccpm/internal/lifecycle"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/tracker"
	"github.com/untoldecay/ccpm/internal/types"
)

// Labels applied to published issues.
const (
	LabelTask       = "task"
	LabelEpic       = "epic"
	EpicLabelPrefix = "epic:"
)

// Reconciler pushes local state to a tracker and pulls remote state back.
type Reconciler struct {
	store     storage.Storage
	tracker   tracker.Tracker
	lifecycle *lifecycle.Service
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used for external_synced_at.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler. Pull applies remote state through lc so the
// usual progress recompute and hooks run.
func New(store storage.Storage, tr tracker.Tracker, lc *lifecycle.Service, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		tracker:   tr,
		lifecycle: lc,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) runLogger(op string) *slog.Logger {
	return r.logger.With("sync_run", uuid.NewString()[:8], "op", op)
}

func syncErr(op string, issue int64, err error) error {
	return &types.SyncError{Op: op, Issue: issue, Err: err}
}

// PushTaskClosure checks the task's line in its epic's issue checklist.
// It reports whether the epic issue body was rewritten.
func (r *Reconciler) PushTaskClosure(ctx context.Context, task *types.Task) (bool, error) {
	return r.pushChecklist(ctx, task, true)
}

// PushTaskReopen unchecks the task's line in its epic's issue checklist.
func (r *Reconciler) PushTaskReopen(ctx context.Context, task *types.Task) (bool, error) {
	return r.pushChecklist(ctx, task, false)
}

func (r *Reconciler) pushChecklist(ctx context.Context, task *types.Task, checked bool) (bool, error) {
	if task.ExternalIssue == nil {
		return false, nil
	}
	epic, err := r.store.GetEpicByID(ctx, task.EpicID)
	if err != nil {
		return false, err
	}
	if epic.ExternalIssue == nil {
		return false, nil
	}
	return r.patchEpicBody(ctx, *epic.ExternalIssue, func(body string) (string, bool) {
		return ToggleChecklist(body, *task.ExternalIssue, checked)
	})
}

// patchEpicBody fetches the epic issue, applies edit and writes the body
// back only when edit changed it.
func (r *Reconciler) patchEpicBody(ctx context.Context, epicIssue int64, edit func(string) (string, bool)) (bool, error) {
	issue, err := r.tracker.GetIssue(ctx, epicIssue)
	if err != nil {
		return false, syncErr("get epic issue", epicIssue, err)
	}
	body, changed := edit(issue.Body)
	if !changed {
		return false, nil
	}
	if err := r.tracker.EditBody(ctx, epicIssue, body); err != nil {
		return false, syncErr("edit epic issue", epicIssue, err)
	}
	return true, nil
}

// PushResult describes what PushTaskState changed remotely.
type PushResult struct {
	Issue            int64         `json:"issue,omitempty"`
	RemoteState      tracker.State `json:"remote_state,omitempty"`
	StateChanged     bool          `json:"state_changed"`
	ChecklistChanged bool          `json:"checklist_changed"`
}

// PushTaskState makes the task's own issue match the local status (closed
// stays closed, anything else is open), updates the epic checklist, stamps
// external_synced_at and then posts note as a comment when the state
// changed. Unlinked tasks are a no-op.
func (r *Reconciler) PushTaskState(ctx context.Context, task *types.Task, note string) (*PushResult, error) {
	res := &PushResult{}
	if task.ExternalIssue == nil {
		return res, nil
	}
	number := *task.ExternalIssue
	log := r.runLogger("push")
	res.Issue = number

	issue, err := r.tracker.GetIssue(ctx, number)
	if err != nil {
		return res, syncErr("get issue", number, err)
	}
	want := tracker.StateOpen
	if task.Status == types.StatusClosed {
		want = tracker.StateClosed
	}
	res.RemoteState = issue.State

	if issue.State != want {
		if want == tracker.StateClosed {
			err = r.tracker.Close(ctx, number)
		} else {
			err = r.tracker.Reopen(ctx, number)
		}
		if err != nil {
			return res, syncErr(string(want), number, err)
		}
		res.StateChanged = true
		res.RemoteState = want
	}

	res.ChecklistChanged, err = r.pushChecklist(ctx, task, want == tracker.StateClosed)
	if err != nil {
		return res, err
	}
	if err := r.stamp(ctx, task.ID); err != nil {
		return res, err
	}

	// Commented last: a failed comment must not skip the checklist or stamp.
	if res.StateChanged && note != "" {
		if err := r.tracker.Comment(ctx, number, note); err != nil {
			return res, syncErr("comment", number, err)
		}
	}
	log.Info("pushed task state",
		"task", task.Ref(),
		"issue", number,
		"state", want,
		"state_changed", res.StateChanged,
		"checklist_changed", res.ChecklistChanged,
	)
	return res, nil
}

func (r *Reconciler) stamp(ctx context.Context, taskID int64) error {
	now := r.now().UTC()
	return r.store.UpdateTask(ctx, taskID, types.TaskUpdate{ExternalSyncedAt: &now})
}

// PullResult describes a pull of one issue.
type PullResult struct {
	Task        *types.Task       `json:"task"`
	RemoteState tracker.State     `json:"remote_state"`
	Changed     bool              `json:"changed"`
	Transition  *lifecycle.Result `json:"transition,omitempty"`
}

// Pull reads the issue's state and applies it to the linked task: closed
// remotely means closed locally, anything else means open. The local task is
// only touched when its status differs. A pull never produces in_progress.
func (r *Reconciler) Pull(ctx context.Context, number int64) (*PullResult, error) {
	task, err := r.store.GetTaskByExternalIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	issue, err := r.tracker.GetIssue(ctx, number)
	if err != nil {
		return nil, syncErr("get issue", number, err)
	}

	target := types.StatusOpen
	if issue.State == tracker.StateClosed {
		target = types.StatusClosed
	}
	res := &PullResult{Task: task, RemoteState: issue.State}
	if task.Status != target {
		tr, err := r.lifecycle.Apply(ctx, task.ID, target)
		if err != nil && !lifecycle.IsNoop(err) {
			return nil, err
		}
		res.Transition = tr
		res.Changed = tr != nil && tr.Changed
		if tr != nil {
			res.Task = tr.Task
		}
	}
	if err := r.stamp(ctx, task.ID); err != nil {
		return res, err
	}
	r.runLogger("pull").Info("pulled issue", "issue", number, "task", task.Ref(), "remote", issue.State, "changed", res.Changed)
	return res, nil
}

// RefreshEpicChecklist sets every linked task's checklist item in the epic
// issue to match the task's local status, in a single body write.
func (r *Reconciler) RefreshEpicChecklist(ctx context.Context, epic *types.Epic) (bool, error) {
	if epic.ExternalIssue == nil {
		return false, nil
	}
	tasks, err := r.store.ListTasks(ctx, types.TaskFilter{EpicID: &epic.ID})
	if err != nil {
		return false, err
	}
	changed, err := r.patchEpicBody(ctx, *epic.ExternalIssue, func(body string) (string, bool) {
		out := body
		for _, t := range tasks {
			if t.ExternalIssue == nil {
				continue
			}
			out, _ = ToggleChecklist(out, *t.ExternalIssue, t.Status == types.StatusClosed)
		}
		return out, out != body
	})
	if err == nil {
		r.runLogger("refresh").Info("refreshed epic checklist", "epic", epic.Name, "changed", changed)
	}
	return changed, err
}

// PublishResult lists what PublishEpic created.
type PublishResult struct {
	EpicIssue     int64   `json:"epic_issue"`
	EpicCreated   bool    `json:"epic_created"`
	CreatedIssues []int64 `json:"created_issues,omitempty"`
	BodyChanged   bool    `json:"body_changed"`
}

// PublishEpic creates an issue for every unlinked task and an epic issue
// whose body carries one checklist item per task. If the epic issue already
// exists, missing items are appended and existing ones refreshed. Each link
// is stored as soon as its issue exists, so a failed run can be resumed.
func (r *Reconciler) PublishEpic(ctx context.Context, epic *types.Epic) (*PublishResult, error) {
	log := r.runLogger("publish")
	tasks, err := r.store.ListTasks(ctx, types.TaskFilter{EpicID: &epic.ID})
	if err != nil {
		return nil, err
	}
	res := &PublishResult{}

	for _, t := range tasks {
		if t.ExternalIssue != nil {
			continue
		}
		issue, err := r.tracker.CreateIssue(ctx, tracker.NewIssue{
			Title:  t.Name,
			Body:   t.Description,
			Labels: []string{LabelTask, EpicLabelPrefix + epic.Name},
		})
		if err != nil {
			return res, syncErr("create task issue", 0, err)
		}
		now := r.now().UTC()
		if err := r.store.UpdateTask(ctx, t.ID, types.TaskUpdate{ExternalIssue: &issue.Number, ExternalSyncedAt: &now}); err != nil {
			return res, fmt.Errorf("failed to link task %s to #%d: %w", t.Ref(), issue.Number, err)
		}
		t.ExternalIssue = &issue.Number
		res.CreatedIssues = append(res.CreatedIssues, issue.Number)
		log.Info("created task issue", "task", t.Ref(), "issue", issue.Number)

		if t.Status == types.StatusClosed {
			if err := r.tracker.Close(ctx, issue.Number); err != nil {
				return res, syncErr("close", issue.Number, err)
			}
		}
	}

	if epic.ExternalIssue == nil {
		issue, err := r.tracker.CreateIssue(ctx, tracker.NewIssue{
			Title:  epic.Name,
			Body:   EpicBody(epic, tasks),
			Labels: []string{LabelEpic},
		})
		if err != nil {
			return res, syncErr("create epic issue", 0, err)
		}
		if err := r.store.UpdateEpic(ctx, epic.ID, types.EpicUpdate{ExternalIssue: &issue.Number}); err != nil {
			return res, fmt.Errorf("failed to link epic %s to #%d: %w", epic.Name, issue.Number, err)
		}
		epic.ExternalIssue = &issue.Number
		res.EpicIssue = issue.Number
		res.EpicCreated = true
		log.Info("created epic issue", "epic", epic.Name, "issue", issue.Number, "tasks", len(tasks))
		return res, nil
	}

	res.EpicIssue = *epic.ExternalIssue
	res.BodyChanged, err = r.patchEpicBody(ctx, *epic.ExternalIssue, func(body string) (string, bool) {
		out := body
		var missing []string
		for _, t := range tasks {
			closed := t.Status == types.StatusClosed
			if !MentionsIssue(out, *t.ExternalIssue) {
				missing = append(missing, ChecklistLine(*t.ExternalIssue, t.Name, closed))
				continue
			}
			out, _ = ToggleChecklist(out, *t.ExternalIssue, closed)
		}
		if len(missing) > 0 {
			out = strings.TrimRight(out, "\n") + "\n" + strings.Join(missing, "\n") + "\n"
		}
		return out, out != body
	})
	return res, err
}

// EpicBody renders the epic issue body: the epic content followed by a task
// checklist. Tasks without an issue are skipped.
func EpicBody(epic *types.Epic, tasks []*types.Task) string {
	var b strings.Builder
	if c := strings.TrimSpace(epic.Content); c != "" {
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	b.WriteString("## Tasks\n\n")
	for _, t := range tasks {
		if t.ExternalIssue == nil {
			continue
		}
		b.WriteString(ChecklistLine(*t.ExternalIssue, t.Name, t.Status == types.StatusClosed))
		b.WriteString("\n")
	}
	return b.String()
}

// IsSyncFailure reports whether err came from the tracker rather than from
// local validation or storage.
func IsSyncFailure(err error) bool {
	return errors.Is(err, types.ErrExternalSync)
}
