package plan

import (
	"context"
	"fmt"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
)

// Result describes an imported plan.
type Result struct {
	Epic  *types.Epic   `json:"epic"`
	PRD   *types.PRD    `json:"prd,omitempty"`
	Tasks []*types.Task `json:"tasks"`
	Edges int           `json:"dependencies"`
}

// Import creates the plan's epic, its tasks and their dependencies in one
// transaction. A named PRD is created when it does not exist. Importing an
// epic name that is already taken fails without writing anything.
func Import(ctx context.Context, s storage.Storage, p *Plan) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	res := &Result{}
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		epic := &types.Epic{Name: p.Name, Content: p.Content, Status: types.EpicBacklog}
		if p.PRD != "" {
			prd, err := tx.GetPRD(ctx, p.PRD)
			if types.IsNotFound(err) {
				prd = &types.PRD{Name: p.PRD, Status: types.PRDBacklog}
				err = tx.CreatePRD(ctx, prd)
			}
			if err != nil {
				return err
			}
			res.PRD = prd
			epic.PRDID = &prd.ID
		}
		if err := tx.CreateEpic(ctx, epic); err != nil {
			return err
		}
		res.Epic = epic

		ids := make(map[string]int64, len(p.Tasks))
		for _, pt := range p.Tasks {
			t := &types.Task{
				EpicID:      epic.ID,
				Name:        pt.Name,
				Description: pt.Description,
				Status:      types.StatusOpen,
				Parallel:    pt.Parallel,
			}
			if pt.Estimate > 0 {
				t.EstimatedHours = types.Float64Ptr(pt.Estimate)
			}
			if err := tx.CreateTask(ctx, t); err != nil {
				return fmt.Errorf("creating task %q: %w", pt.Key, err)
			}
			t.EpicName = epic.Name
			ids[pt.Key] = t.ID
			res.Tasks = append(res.Tasks, t)
		}
		for _, pt := range p.Tasks {
			for _, dep := range pt.DependsOn {
				if err := tx.AddDependency(ctx, ids[pt.Key], ids[dep]); err != nil {
					return fmt.Errorf("adding dependency %s -> %s: %w", pt.Key, dep, err)
				}
				res.Edges++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FromEpic builds a plan from stored state, keyed by task number.
func FromEpic(ctx context.Context, r storage.Reader, epic *types.Epic) (*Plan, error) {
	tasks, err := r.ListTasks(ctx, types.TaskFilter{EpicID: &epic.ID})
	if err != nil {
		return nil, err
	}
	p := &Plan{Name: epic.Name, Content: epic.Content}
	if epic.PRDID != nil {
		prd, err := r.GetPRDByID(ctx, *epic.PRDID)
		if err != nil && !types.IsNotFound(err) {
			return nil, err
		}
		if prd != nil {
			p.PRD = prd.Name
		}
	}
	for _, t := range tasks {
		pt := Task{
			Key:         fmt.Sprint(t.Number),
			Name:        t.Name,
			Description: t.Description,
			Parallel:    t.Parallel,
		}
		if t.EstimatedHours != nil {
			pt.Estimate = *t.EstimatedHours
		}
		deps, err := r.GetDependencies(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			// Cross-epic dependencies cannot be expressed in a plan file.
			if d.EpicID == epic.ID {
				pt.DependsOn = append(pt.DependsOn, fmt.Sprint(d.Number))
			}
		}
		p.Tasks = append(p.Tasks, pt)
	}
	return p, nil
}
