package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/ccpm/internal/types"
)

const taskColumns = `id, epic_id, task_number, name, description, status, estimated_hours, actual_hours,
	parallel, external_issue_id, external_synced_at, created_at, updated_at, epic_name`

func scanTask(row scanner) (*types.Task, error) {
	var t types.Task
	var estimated, actual sql.NullFloat64
	var issue sql.NullInt64
	var syncedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.EpicID, &t.Number, &t.Name, &t.Description, &t.Status,
		&estimated, &actual, &t.Parallel, &issue, &syncedAt,
		&t.CreatedAt, &t.UpdatedAt, &t.EpicName,
	)
	if err != nil {
		return nil, err
	}
	t.EstimatedHours = float64Ptr(estimated)
	t.ActualHours = float64Ptr(actual)
	t.ExternalIssue = int64Ptr(issue)
	t.ExternalSyncedAt = timePtr(syncedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*types.Task, error) {
	defer func() { _ = rows.Close() }()
	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTask inserts a task into a live epic, assigning the next task number.
// Callers outside a transaction go through SQLiteStorage.CreateTask, which
// wraps this in one.
func (qs *queries) CreateTask(ctx context.Context, task *types.Task) error {
	task.Name = strings.TrimSpace(task.Name)
	if task.Status == "" {
		task.Status = types.StatusOpen
	}
	if err := task.Validate(); err != nil {
		return err
	}
	epic, err := qs.GetEpicByID(ctx, task.EpicID)
	if err != nil {
		return err
	}

	// Numbers of tombstoned tasks are reusable; the unique index only covers
	// live rows.
	var next int
	err = qs.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(task_number), 0) + 1 FROM live_tasks WHERE epic_id = ?`,
		task.EpicID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to assign task number: %w", err)
	}

	now := qs.timestamp()
	res, err := qs.q.ExecContext(ctx, `
		INSERT INTO tasks (epic_id, task_number, name, description, status, estimated_hours,
			actual_hours, parallel, external_issue_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.EpicID, next, task.Name, task.Description, task.Status,
		nullFloat64(task.EstimatedHours), nullFloat64(task.ActualHours), task.Parallel,
		nullInt64(task.ExternalIssue), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get task id: %w", err)
	}
	task.ID = id
	task.Number = next
	task.EpicName = epic.Name
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// GetTask looks up a live task by its natural key.
func (qs *queries) GetTask(ctx context.Context, epicName string, number int) (*types.Task, error) {
	t, err := scanTask(qs.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM live_tasks WHERE epic_name = ? AND task_number = ?`,
		epicName, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("task", types.TaskRef{Epic: epicName, Number: number})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s#%d: %w", epicName, number, err)
	}
	return t, nil
}

// GetTaskByID looks up a live task by id.
func (qs *queries) GetTaskByID(ctx context.Context, id int64) (*types.Task, error) {
	t, err := scanTask(qs.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM live_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

// GetTaskByExternalIssue finds the live task linked to a tracker issue.
func (qs *queries) GetTaskByExternalIssue(ctx context.Context, issue int64) (*types.Task, error) {
	t, err := scanTask(qs.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM live_tasks WHERE external_issue_id = ? ORDER BY id LIMIT 1`, issue))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("task for issue", fmt.Sprintf("#%d", issue))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task for issue #%d: %w", issue, err)
	}
	return t, nil
}

// ListTasks returns live tasks matching filter, ordered by epic and number.
func (qs *queries) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	var where []string
	var args []any
	if filter.EpicID != nil {
		where = append(where, "epic_id = ?")
		args = append(args, *filter.EpicID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.HasExternalIssue != nil {
		if *filter.HasExternalIssue {
			where = append(where, "external_issue_id IS NOT NULL")
		} else {
			where = append(where, "external_issue_id IS NULL")
		}
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + taskColumns + ` FROM live_tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY epic_id, task_number`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return scanTasks(rows)
}

// UpdateTask applies a typed update to a live task. It does not enforce the
// status state machine; the lifecycle package does.
func (qs *queries) UpdateTask(ctx context.Context, id int64, update types.TaskUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	var set setClause
	if update.Name != nil {
		set.add("name", strings.TrimSpace(*update.Name))
	}
	if update.Description != nil {
		set.add("description", *update.Description)
	}
	if update.Status != nil {
		set.add("status", *update.Status)
	}
	if update.EstimatedHours != nil {
		set.add("estimated_hours", *update.EstimatedHours)
	}
	if update.ActualHours != nil {
		set.add("actual_hours", *update.ActualHours)
	}
	if update.Parallel != nil {
		set.add("parallel", *update.Parallel)
	}
	if update.ExternalIssue != nil {
		set.add("external_issue_id", nullInt64(nonZero(*update.ExternalIssue)))
	}
	if update.ExternalSyncedAt != nil {
		set.add("external_synced_at", update.ExternalSyncedAt.UTC())
	}
	set.add("updated_at", qs.timestamp())

	res, err := qs.q.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(set.cols, ", ")+` WHERE id IN (SELECT id FROM live_tasks WHERE id = ?)`,
		append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}
	return requireRow(res, "task", id)
}

// DeleteTask tombstones a task. Edges touching it stay in the table but drop
// out of live_task_dependencies.
func (qs *queries) DeleteTask(ctx context.Context, id int64) error {
	now := qs.timestamp()
	res, err := qs.q.ExecContext(ctx,
		`UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id IN (SELECT id FROM live_tasks WHERE id = ?)`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	return requireRow(res, "task", id)
}
