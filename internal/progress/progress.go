// Package progress derives epic completion and status from task statuses.
package progress

import (
	"context"
	"fmt"

	"github.com/untoldecay/ccpm/internal/types"
)

// Summary counts the live tasks of one epic.
type Summary struct {
	Total      int              `json:"total"`
	Open       int              `json:"open"`
	InProgress int              `json:"in_progress"`
	Closed     int              `json:"closed"`
	Percent    int              `json:"progress"`
	Status     types.EpicStatus `json:"status"`
}

// Percent returns floor(100*closed/total), or 0 when there are no tasks.
func Percent(closed, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * closed / total
}

// DeriveStatus maps a completion percentage to an epic status. An epic
// whose tasks are all reopened drops back to backlog even if it was set
// active by hand.
func DeriveStatus(percent int) types.EpicStatus {
	switch {
	case percent >= 100:
		return types.EpicClosed
	case percent > 0:
		return types.EpicActive
	default:
		return types.EpicBacklog
	}
}

// Compute summarizes tasks. Callers pass live tasks only.
func Compute(tasks []*types.Task) Summary {
	var s Summary
	for _, t := range tasks {
		s.Total++
		switch t.Status {
		case types.StatusOpen:
			s.Open++
		case types.StatusInProgress:
			s.InProgress++
		case types.StatusClosed:
			s.Closed++
		}
	}
	s.Percent = Percent(s.Closed, s.Total)
	s.Status = DeriveStatus(s.Percent)
	return s
}

// EpicStore is the slice of a store transaction Recompute needs.
type EpicStore interface {
	GetEpicByID(ctx context.Context, id int64) (*types.Epic, error)
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	UpdateEpic(ctx context.Context, id int64, update types.EpicUpdate) error
}

// Result is the outcome of a recompute.
type Result struct {
	Epic           *types.Epic      `json:"epic"`
	Summary        Summary          `json:"summary"`
	PreviousPct    int              `json:"previous_progress"`
	PreviousStatus types.EpicStatus `json:"previous_status"`
	Changed        bool             `json:"changed"`
}

// Recompute recalculates an epic's progress and status from its live tasks
// and writes them back if either differs from what is stored.
func Recompute(ctx context.Context, store EpicStore, epicID int64) (*Result, error) {
	epic, err := store.GetEpicByID(ctx, epicID)
	if err != nil {
		return nil, err
	}
	tasks, err := store.ListTasks(ctx, types.TaskFilter{EpicID: &epicID})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for epic %s: %w", epic.Name, err)
	}

	res := &Result{
		Summary:        Compute(tasks),
		PreviousPct:    epic.Progress,
		PreviousStatus: epic.Status,
	}
	if epic.Progress != res.Summary.Percent || epic.Status != res.Summary.Status {
		update := types.EpicUpdate{Progress: &res.Summary.Percent, Status: &res.Summary.Status}
		if err := store.UpdateEpic(ctx, epicID, update); err != nil {
			return nil, fmt.Errorf("failed to update progress for epic %s: %w", epic.Name, err)
		}
		epic.Progress = res.Summary.Percent
		epic.Status = res.Summary.Status
		res.Changed = true
	}
	res.Epic = epic
	return res, nil
}
