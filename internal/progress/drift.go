package progress

import (
	"context"
	"fmt"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
)

// Drift is an epic whose stored progress disagrees with its tasks.
type Drift struct {
	Epic     *types.Epic `json:"epic"`
	Stored   int         `json:"stored"`
	Computed int         `json:"computed"`
}

// DriftReader is the read access DetectDrift needs.
type DriftReader interface {
	ListEpics(ctx context.Context, filter types.EpicFilter) ([]*types.Epic, error)
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
}

// DetectDrift compares stored and computed progress for every live epic.
// It never writes.
func DetectDrift(ctx context.Context, r DriftReader) ([]Drift, error) {
	epics, err := r.ListEpics(ctx, types.EpicFilter{})
	if err != nil {
		return nil, err
	}
	tasks, err := r.ListTasks(ctx, types.TaskFilter{})
	if err != nil {
		return nil, err
	}
	byEpic := make(map[int64][]*types.Task, len(epics))
	for _, t := range tasks {
		byEpic[t.EpicID] = append(byEpic[t.EpicID], t)
	}

	var out []Drift
	for _, e := range epics {
		computed := Compute(byEpic[e.ID]).Percent
		if computed != e.Progress {
			out = append(out, Drift{Epic: e, Stored: e.Progress, Computed: computed})
		}
	}
	return out, nil
}

// Repair recomputes each drifted epic in its own transaction.
func Repair(ctx context.Context, s storage.Storage, drift []Drift) error {
	for _, d := range drift {
		err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
			_, err := Recompute(ctx, tx, d.Epic.ID)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to repair epic %s: %w", d.Epic.Name, err)
		}
	}
	return nil
}
