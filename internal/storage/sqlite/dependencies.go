package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/types"
)

// AddDependency records that taskID depends on dependsOnID.
func (qs *queries) AddDependency(ctx context.Context, taskID, dependsOnID int64) error {
	if taskID == dependsOnID {
		return &types.ValidationError{Field: "dependency", Reason: "a task cannot depend on itself"}
	}
	task, err := qs.GetTaskByID(ctx, taskID)
	if err != nil {
		return dependencyEndpointError(err, taskID)
	}
	dependsOn, err := qs.GetTaskByID(ctx, dependsOnID)
	if err != nil {
		return dependencyEndpointError(err, dependsOnID)
	}

	var exists bool
	err = qs.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM task_dependencies WHERE task_id = ? AND depends_on_task_id = ?)
	`, taskID, dependsOnID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing dependency: %w", err)
	}
	if exists {
		return nil
	}

	// Walk everything that already depends on taskID, directly or not. If
	// dependsOnID is among them the new edge would close a cycle. UNION (not
	// UNION ALL) stops the walk on legacy cycles.
	var cycle bool
	err = qs.q.QueryRowContext(ctx, `
		WITH RECURSIVE dependents(id) AS (
			SELECT task_id FROM live_task_dependencies WHERE depends_on_task_id = ?
			UNION
			SELECT d.task_id
			FROM live_task_dependencies d
			JOIN dependents ON d.depends_on_task_id = dependents.id
		)
		SELECT EXISTS(SELECT 1 FROM dependents WHERE id = ?)
	`, taskID, dependsOnID).Scan(&cycle)
	if err != nil {
		return fmt.Errorf("failed to check for dependency cycle: %w", err)
	}
	if cycle {
		return &types.ValidationError{
			Field:  "dependency",
			Reason: fmt.Sprintf("%s depending on %s would create a cycle", task.Ref(), dependsOn.Ref()),
		}
	}

	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO task_dependencies (task_id, depends_on_task_id, created_at)
		VALUES (?, ?, ?)
	`, taskID, dependsOnID, qs.timestamp())
	if err != nil {
		return fmt.Errorf("failed to add dependency: %w", err)
	}
	return nil
}

func dependencyEndpointError(err error, id int64) error {
	if errors.Is(err, types.ErrNotFound) {
		return &types.ValidationError{Field: "dependency", Reason: fmt.Sprintf("task %d does not exist or is deleted", id)}
	}
	return err
}

// RemoveDependency deletes the edge if present.
func (qs *queries) RemoveDependency(ctx context.Context, taskID, dependsOnID int64) error {
	_, err := qs.q.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_task_id = ?`,
		taskID, dependsOnID)
	if err != nil {
		return fmt.Errorf("failed to remove dependency: %w", err)
	}
	return nil
}

// GetDependencies returns the live direct dependencies of a task.
func (qs *queries) GetDependencies(ctx context.Context, taskID int64) ([]*types.Task, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM live_tasks
		WHERE id IN (SELECT depends_on_task_id FROM live_task_dependencies WHERE task_id = ?)
		ORDER BY epic_id, task_number
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies of task %d: %w", taskID, err)
	}
	return scanTasks(rows)
}

// GetDependents returns the live tasks that directly depend on taskID.
func (qs *queries) GetDependents(ctx context.Context, taskID int64) ([]*types.Task, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM live_tasks
		WHERE id IN (SELECT task_id FROM live_task_dependencies WHERE depends_on_task_id = ?)
		ORDER BY epic_id, task_number
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents of task %d: %w", taskID, err)
	}
	return scanTasks(rows)
}

// LoadGraph snapshots all live tasks and live edges in two scans.
func (qs *queries) LoadGraph(ctx context.Context) (*graph.Snapshot, error) {
	tasks, err := qs.ListTasks(ctx, types.TaskFilter{})
	if err != nil {
		return nil, err
	}

	rows, err := qs.q.QueryContext(ctx,
		`SELECT task_id, depends_on_task_id, created_at FROM live_task_dependencies`)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []types.Dependency
	for rows.Next() {
		var d types.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		edges = append(edges, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return graph.New(tasks, edges), nil
}
