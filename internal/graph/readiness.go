package graph

import "github.com/untoldecay/ccpm/internal/types"

// Scope restricts classification to one epic. Dependencies are always
// evaluated across the whole snapshot since edges may cross epics.
type Scope struct {
	EpicID *int64
}

// AllEpics is the unrestricted scope.
var AllEpics = Scope{}

// Epic scopes classification to a single epic.
func Epic(id int64) Scope { return Scope{EpicID: &id} }

func (sc Scope) includes(t *types.Task) bool {
	return sc.EpicID == nil || t.EpicID == *sc.EpicID
}

// BlockedTask is a non-closed task together with its unmet dependencies.
type BlockedTask struct {
	Task      *types.Task   `json:"task"`
	BlockedBy []*types.Task `json:"blocked_by"`
}

// UnmetDependencies returns the direct dependencies of id that are not closed.
func (s *Snapshot) UnmetDependencies(id int64) []*types.Task {
	var out []*types.Task
	for _, dep := range s.deps[id] {
		if t := s.tasks[dep]; t.Status != types.StatusClosed {
			out = append(out, t)
		}
	}
	return out
}

func (s *Snapshot) hasUnmet(id int64) bool {
	for _, dep := range s.deps[id] {
		if s.tasks[dep].Status != types.StatusClosed {
			return true
		}
	}
	return false
}

// IsReady reports whether a task is open with every dependency closed.
func (s *Snapshot) IsReady(id int64) bool {
	t, ok := s.tasks[id]
	return ok && t.Status == types.StatusOpen && !s.hasUnmet(id)
}

// Ready returns open tasks whose direct dependencies are all closed.
// Each task and edge in scope is visited once.
func (s *Snapshot) Ready(scope Scope) []*types.Task {
	var out []*types.Task
	for _, id := range s.order {
		t := s.tasks[id]
		if !scope.includes(t) || t.Status != types.StatusOpen {
			continue
		}
		if !s.hasUnmet(id) {
			out = append(out, t)
		}
	}
	return out
}

// Blocked returns non-closed tasks with at least one unmet dependency.
// In-progress tasks are included when a dependency is still open.
func (s *Snapshot) Blocked(scope Scope) []*BlockedTask {
	var out []*BlockedTask
	for _, id := range s.order {
		t := s.tasks[id]
		if !scope.includes(t) || t.Status == types.StatusClosed {
			continue
		}
		if unmet := s.UnmetDependencies(id); len(unmet) > 0 {
			out = append(out, &BlockedTask{Task: t, BlockedBy: unmet})
		}
	}
	return out
}

// InProgress returns the tasks currently being worked on.
func (s *Snapshot) InProgress(scope Scope) []*types.Task {
	var out []*types.Task
	for _, id := range s.order {
		if t := s.tasks[id]; scope.includes(t) && t.Status == types.StatusInProgress {
			out = append(out, t)
		}
	}
	return out
}

// NewlyUnblocked returns the dependents of closedID that are ready in this
// snapshot. Call it on a snapshot taken after the closure.
func (s *Snapshot) NewlyUnblocked(closedID int64) []*types.Task {
	var out []*types.Task
	for _, id := range s.dependents[closedID] {
		if s.IsReady(id) {
			out = append(out, s.tasks[id])
		}
	}
	return out
}
