// Package lifecycle implements the task state machine:
//
//	open -> in_progress -> closed
//	closed | in_progress -> open   (reopen)
//
// Every transition writes the new status, recomputes the owning epic's
// progress and classifies affected tasks inside one store transaction.
// Transitions never talk to the external tracker; callers push to the
// tracker afterwards if they want to.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/untoldecay/ccpm/internal/hooks"
	"github.com/untoldecay/ccpm/internal/progress"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
)

// Service applies task transitions against a store.
type Service struct {
	store  storage.Storage
	hooks  *hooks.Runner
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHooks runs transition hooks after each committed change.
func WithHooks(r *hooks.Runner) Option {
	return func(s *Service) { s.hooks = r }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a lifecycle service.
func New(store storage.Storage, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes a transition. It is returned alongside an
// ErrAlreadyInState error too, with Changed false.
type Result struct {
	Task     *types.Task      `json:"task"`
	Previous types.TaskStatus `json:"previous_status"`
	Changed  bool             `json:"changed"`
	Progress *progress.Result `json:"progress,omitempty"`
	// Blockers lists unmet dependencies when starting a blocked task.
	// Starting is still allowed; this is a warning.
	Blockers []*types.Task `json:"blockers,omitempty"`
	// Unblocked lists dependents that became ready because of a close.
	Unblocked []*types.Task `json:"unblocked,omitempty"`
}

// IsNoop reports whether err means the task was already in the requested
// state. Such a result should be shown as information, not failure.
func IsNoop(err error) bool {
	return errors.Is(err, types.ErrAlreadyInState)
}

// Start moves an open task to in_progress.
func (s *Service) Start(ctx context.Context, taskID int64) (*Result, error) {
	return s.transition(ctx, taskID, types.StatusInProgress, hooks.EventStart,
		func(from types.TaskStatus) bool { return from != types.StatusClosed })
}

// Close moves a task to closed from any other state. Dependencies are not
// checked.
func (s *Service) Close(ctx context.Context, taskID int64) (*Result, error) {
	return s.transition(ctx, taskID, types.StatusClosed, hooks.EventClose,
		func(types.TaskStatus) bool { return true })
}

// Reopen moves a closed or in-progress task back to open.
func (s *Service) Reopen(ctx context.Context, taskID int64) (*Result, error) {
	return s.transition(ctx, taskID, types.StatusOpen, hooks.EventReopen,
		func(types.TaskStatus) bool { return true })
}

// Apply moves a task to target using the matching transition.
func (s *Service) Apply(ctx context.Context, taskID int64, target types.TaskStatus) (*Result, error) {
	switch target {
	case types.StatusOpen:
		return s.Reopen(ctx, taskID)
	case types.StatusInProgress:
		return s.Start(ctx, taskID)
	case types.StatusClosed:
		return s.Close(ctx, taskID)
	}
	return nil, &types.ValidationError{Field: "status", Reason: fmt.Sprintf("invalid task status %q", target)}
}

func (s *Service) transition(ctx context.Context, taskID int64, to types.TaskStatus, event string, allowed func(types.TaskStatus) bool) (*Result, error) {
	var res *Result
	var noop error

	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task, err := tx.GetTaskByID(ctx, taskID)
		if err != nil {
			return err
		}
		res = &Result{Task: task, Previous: task.Status}

		if task.Status == to {
			noop = &types.TransitionError{Task: task.Ref(), From: task.Status, To: to}
			return nil
		}
		if !allowed(task.Status) {
			return &types.TransitionError{Task: task.Ref(), From: task.Status, To: to}
		}

		if err := tx.UpdateTask(ctx, taskID, types.TaskUpdate{Status: &to}); err != nil {
			return err
		}
		task.Status = to
		res.Changed = true

		res.Progress, err = progress.Recompute(ctx, tx, task.EpicID)
		if err != nil {
			return err
		}

		snap, err := tx.LoadGraph(ctx)
		if err != nil {
			return err
		}
		switch to {
		case types.StatusInProgress:
			res.Blockers = snap.UnmetDependencies(taskID)
		case types.StatusClosed:
			res.Unblocked = snap.NewlyUnblocked(taskID)
		}

		// Re-read for the fresh updated_at.
		if fresh, err := tx.GetTaskByID(ctx, taskID); err == nil {
			res.Task = fresh
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop != nil {
		s.logger.Debug("task already in state", "task", res.Task.Ref(), "status", to)
		return res, noop
	}

	s.logger.Info("task transition",
		"task", res.Task.Ref(),
		"from", res.Previous,
		"to", to,
		"epic_progress", res.Progress.Summary.Percent,
		"unblocked", len(res.Unblocked),
	)
	if len(res.Blockers) > 0 {
		s.logger.Warn("task started with unmet dependencies", "task", res.Task.Ref(), "blockers", len(res.Blockers))
	}
	s.hooks.Run(event, res.Task)
	return res, nil
}
