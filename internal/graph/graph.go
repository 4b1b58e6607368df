// Package graph holds an in-memory snapshot of live tasks and the dependency
// edges between them, and classifies tasks as ready or blocked.
//
// Everything here is a pure function of the snapshot. The store decides what
// is live (tombstoned tasks, tasks in tombstoned epics and edges touching
// either are never loaded), so callers never filter deletions themselves.
package graph

import (
	"sort"

	"github.com/untoldecay/ccpm/internal/types"
)

// Snapshot is an immutable view of tasks and their dependency edges.
type Snapshot struct {
	tasks      map[int64]*types.Task
	order      []int64 // sorted by (epic id, task number)
	deps       map[int64][]int64
	dependents map[int64][]int64
	edges      int
}

// New builds a snapshot. Edges whose endpoints are not among tasks are
// dropped, as are self edges and duplicates.
func New(tasks []*types.Task, edges []types.Dependency) *Snapshot {
	s := &Snapshot{
		tasks:      make(map[int64]*types.Task, len(tasks)),
		order:      make([]int64, 0, len(tasks)),
		deps:       make(map[int64][]int64),
		dependents: make(map[int64][]int64),
	}
	for _, t := range tasks {
		if _, dup := s.tasks[t.ID]; dup {
			continue
		}
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	sort.Slice(s.order, func(i, j int) bool {
		a, b := s.tasks[s.order[i]], s.tasks[s.order[j]]
		if a.EpicID != b.EpicID {
			return a.EpicID < b.EpicID
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.ID < b.ID
	})

	seen := make(map[[2]int64]bool, len(edges))
	for _, e := range edges {
		if e.TaskID == e.DependsOnID {
			continue
		}
		if s.tasks[e.TaskID] == nil || s.tasks[e.DependsOnID] == nil {
			continue
		}
		key := [2]int64{e.TaskID, e.DependsOnID}
		if seen[key] {
			continue
		}
		seen[key] = true
		s.deps[e.TaskID] = append(s.deps[e.TaskID], e.DependsOnID)
		s.dependents[e.DependsOnID] = append(s.dependents[e.DependsOnID], e.TaskID)
		s.edges++
	}
	for _, m := range []map[int64][]int64{s.deps, s.dependents} {
		for id, list := range m {
			s.sortIDs(list)
			m[id] = list
		}
	}
	return s
}

func (s *Snapshot) sortIDs(ids []int64) {
	rank := func(id int64) (int64, int) {
		t := s.tasks[id]
		return t.EpicID, t.Number
	}
	sort.Slice(ids, func(i, j int) bool {
		ei, ni := rank(ids[i])
		ej, nj := rank(ids[j])
		if ei != ej {
			return ei < ej
		}
		return ni < nj
	})
}

// Len returns the number of tasks in the snapshot.
func (s *Snapshot) Len() int { return len(s.order) }

// EdgeCount returns the number of live edges in the snapshot.
func (s *Snapshot) EdgeCount() int { return s.edges }

// Task returns the task with the given id.
func (s *Snapshot) Task(id int64) (*types.Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns every task ordered by epic and task number.
func (s *Snapshot) Tasks() []*types.Task {
	return s.collect(s.order)
}

// EpicTasks returns the tasks of one epic ordered by task number.
func (s *Snapshot) EpicTasks(epicID int64) []*types.Task {
	var out []*types.Task
	for _, id := range s.order {
		if t := s.tasks[id]; t.EpicID == epicID {
			out = append(out, t)
		}
	}
	return out
}

// DependenciesOf returns the direct predecessors of a task.
func (s *Snapshot) DependenciesOf(id int64) []*types.Task {
	return s.collect(s.deps[id])
}

// DependentsOf returns the tasks that name id as a direct dependency.
func (s *Snapshot) DependentsOf(id int64) []*types.Task {
	return s.collect(s.dependents[id])
}

// Edges returns every live edge, ordered by dependent then dependency.
func (s *Snapshot) Edges() []types.Dependency {
	out := make([]types.Dependency, 0, s.edges)
	for _, id := range s.order {
		for _, dep := range s.deps[id] {
			out = append(out, types.Dependency{TaskID: id, DependsOnID: dep})
		}
	}
	return out
}

func (s *Snapshot) collect(ids []int64) []*types.Task {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tasks[id])
	}
	return out
}

// WouldCreateCycle reports whether adding "taskID depends on dependsOnID"
// would close a cycle, i.e. whether dependsOnID already depends on taskID
// directly or transitively. Self edges count as cycles.
func (s *Snapshot) WouldCreateCycle(taskID, dependsOnID int64) bool {
	if taskID == dependsOnID {
		return true
	}
	// Walk dependents of taskID; reaching dependsOnID means it already
	// depends on taskID.
	visited := map[int64]bool{taskID: true}
	stack := []int64{taskID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range s.dependents[cur] {
			if next == dependsOnID {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Cycles returns every strongly connected component with more than one task.
// A store that rejects cyclic edges never produces any; this exists for
// integrity checks over databases written by older versions.
func (s *Snapshot) Cycles() [][]*types.Task {
	index := 0
	indices := make(map[int64]int, len(s.order))
	lowlink := make(map[int64]int, len(s.order))
	onStack := make(map[int64]bool)
	var stack []int64
	var cycles [][]*types.Task

	var strongConnect func(v int64)
	strongConnect = func(v int64) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range s.deps[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var component []int64
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				s.sortIDs(component)
				cycles = append(cycles, s.collect(component))
			}
		}
	}

	for _, id := range s.order {
		if _, seen := indices[id]; !seen {
			strongConnect(id)
		}
	}
	return cycles
}
