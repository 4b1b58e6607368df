package progress

import (
	"context"
	"testing"

	"github.com/untoldecay/ccpm/internal/types"
)

func tasksWith(statuses ...types.TaskStatus) []*types.Task {
	out := make([]*types.Task, len(statuses))
	for i, s := range statuses {
		out[i] = &types.Task{ID: int64(i + 1), EpicID: 1, Number: i + 1, Name: "t", Status: s}
	}
	return out
}

func TestPercentFloors(t *testing.T) {
	tests := []struct {
		closed, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{1, 2, 50},
		{199, 200, 99},
	}
	for _, tt := range tests {
		if got := Percent(tt.closed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.closed, tt.total, got, tt.want)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	for pct, want := range map[int]types.EpicStatus{
		0:   types.EpicBacklog,
		1:   types.EpicActive,
		99:  types.EpicActive,
		100: types.EpicClosed,
	} {
		if got := DeriveStatus(pct); got != want {
			t.Errorf("DeriveStatus(%d) = %s, want %s", pct, got, want)
		}
	}
}

func TestCompute(t *testing.T) {
	s := Compute(tasksWith(types.StatusOpen, types.StatusInProgress, types.StatusClosed, types.StatusClosed))
	want := Summary{Total: 4, Open: 1, InProgress: 1, Closed: 2, Percent: 50, Status: types.EpicActive}
	if s != want {
		t.Errorf("Compute = %+v, want %+v", s, want)
	}
	if empty := Compute(nil); empty.Percent != 0 || empty.Status != types.EpicBacklog {
		t.Errorf("empty epic = %+v", empty)
	}
}

func TestClosingNeverDecreasesProgress(t *testing.T) {
	statuses := []types.TaskStatus{types.StatusOpen, types.StatusInProgress, types.StatusOpen, types.StatusClosed, types.StatusOpen}
	tasks := tasksWith(statuses...)
	prev := Compute(tasks).Percent
	for _, task := range tasks {
		if task.Status == types.StatusClosed {
			continue
		}
		task.Status = types.StatusClosed
		cur := Compute(tasks).Percent
		if cur < prev {
			t.Fatalf("closing %d lowered progress %d -> %d", task.ID, prev, cur)
		}
		if cur < 0 || cur > 100 {
			t.Fatalf("progress out of range: %d", cur)
		}
		prev = cur
	}
	for _, task := range tasks {
		task.Status = types.StatusOpen
		cur := Compute(tasks).Percent
		if cur > prev {
			t.Fatalf("reopening %d raised progress %d -> %d", task.ID, prev, cur)
		}
		prev = cur
	}
}

// fakeEpicStore is an in-memory EpicStore.
type fakeEpicStore struct {
	epics   map[int64]*types.Epic
	tasks   []*types.Task
	updates int
}

func (f *fakeEpicStore) GetEpicByID(_ context.Context, id int64) (*types.Epic, error) {
	e, ok := f.epics[id]
	if !ok {
		return nil, types.NotFound("epic", id)
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEpicStore) ListTasks(_ context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	var out []*types.Task
	for _, t := range f.tasks {
		if filter.EpicID == nil || t.EpicID == *filter.EpicID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeEpicStore) ListEpics(_ context.Context, _ types.EpicFilter) ([]*types.Epic, error) {
	var out []*types.Epic
	for id := int64(1); id <= int64(len(f.epics)); id++ {
		cp := *f.epics[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeEpicStore) UpdateEpic(_ context.Context, id int64, u types.EpicUpdate) error {
	f.updates++
	e := f.epics[id]
	if u.Progress != nil {
		e.Progress = *u.Progress
	}
	if u.Status != nil {
		e.Status = *u.Status
	}
	return nil
}

func TestRecompute(t *testing.T) {
	store := &fakeEpicStore{
		epics: map[int64]*types.Epic{1: {ID: 1, Name: "auth", Status: types.EpicActive}},
		tasks: tasksWith(types.StatusClosed, types.StatusOpen),
	}
	ctx := context.Background()

	res, err := Recompute(ctx, store, 1)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if !res.Changed || res.Epic.Progress != 50 || res.Epic.Status != types.EpicActive || res.PreviousPct != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	// Second run writes nothing.
	res, err = Recompute(ctx, store, 1)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if res.Changed || store.updates != 1 {
		t.Errorf("idempotent recompute wrote again: changed=%v updates=%d", res.Changed, store.updates)
	}

	// Reopening everything downgrades a manually active epic to backlog.
	store.tasks[0].Status = types.StatusOpen
	res, err = Recompute(ctx, store, 1)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if res.Epic.Status != types.EpicBacklog || res.Epic.Progress != 0 {
		t.Errorf("expected backlog/0, got %s/%d", res.Epic.Status, res.Epic.Progress)
	}
}

func TestDetectDriftIsReadOnly(t *testing.T) {
	store := &fakeEpicStore{
		epics: map[int64]*types.Epic{
			1: {ID: 1, Name: "auth", Progress: 10},
			2: {ID: 2, Name: "empty", Progress: 0},
		},
		tasks: tasksWith(types.StatusClosed, types.StatusClosed),
	}
	drift, err := DetectDrift(context.Background(), store)
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if len(drift) != 1 || drift[0].Epic.ID != 1 || drift[0].Stored != 10 || drift[0].Computed != 100 {
		t.Errorf("DetectDrift = %+v", drift)
	}
	if store.updates != 0 {
		t.Errorf("DetectDrift wrote %d updates", store.updates)
	}
}

func TestComputePRD(t *testing.T) {
	epic := func(pct int, st types.EpicStatus) *types.Epic {
		return &types.Epic{Name: "e", Progress: pct, Status: st}
	}
	tests := []struct {
		name  string
		epics []*types.Epic
		want  PRDSummary
	}{
		{"no epics", nil, PRDSummary{Status: types.PRDBacklog}},
		{"all backlog", []*types.Epic{epic(0, types.EpicBacklog), epic(0, types.EpicBacklog)},
			PRDSummary{Epics: 2, Status: types.PRDBacklog}},
		{"one started", []*types.Epic{epic(50, types.EpicActive), epic(0, types.EpicBacklog)},
			PRDSummary{Epics: 2, Active: 1, Percent: 25, Status: types.PRDActive}},
		{"one done", []*types.Epic{epic(100, types.EpicClosed), epic(33, types.EpicActive), epic(0, types.EpicBacklog)},
			PRDSummary{Epics: 3, Closed: 1, Active: 1, Percent: 44, Status: types.PRDActive}},
		{"all done", []*types.Epic{epic(100, types.EpicClosed)},
			PRDSummary{Epics: 1, Closed: 1, Percent: 100, Status: types.PRDComplete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputePRD(tt.epics); got != tt.want {
				t.Errorf("ComputePRD = %+v, want %+v", got, tt.want)
			}
		})
	}
}
