package sqlite

import (
	"context"
	"fmt"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
)

// The queries in this file are the only ones that read base tables directly:
// they look for rows the live views hide.

// CheckIntegrity reports rows that break store invariants.
func (s *SQLiteStorage) CheckIntegrity(ctx context.Context) (*storage.IntegrityReport, error) {
	report := &storage.IntegrityReport{}

	orphans, err := s.orphanedTasks(ctx)
	if err != nil {
		return nil, err
	}
	report.OrphanedTasks = orphans

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+epicColumns+` FROM live_epics
		WHERE prd_id IS NOT NULL AND prd_id NOT IN (SELECT id FROM live_prds)
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to check orphaned epics: %w", err)
	}
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan epic: %w", err)
		}
		report.OrphanedEpics = append(report.OrphanedEpics, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	broken, err := s.brokenDependencies(ctx)
	if err != nil {
		return nil, err
	}
	report.BrokenDependencies = broken

	rows, err = s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM live_tasks
		WHERE external_issue_id IN (
			SELECT external_issue_id FROM live_tasks
			WHERE external_issue_id IS NOT NULL
			GROUP BY external_issue_id HAVING COUNT(*) > 1
		)
		ORDER BY external_issue_id, epic_id, task_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate issue links: %w", err)
	}
	dups, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range dups {
		if report.DuplicateIssues == nil {
			report.DuplicateIssues = make(map[int64][]*types.Task)
		}
		report.DuplicateIssues[*t.ExternalIssue] = append(report.DuplicateIssues[*t.ExternalIssue], t)
	}

	return report, nil
}

func (s *SQLiteStorage) orphanedTasks(ctx context.Context) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.epic_id, t.task_number, t.name, t.status
		FROM tasks t
		WHERE t.deleted_at IS NULL
		  AND t.epic_id NOT IN (SELECT id FROM live_epics)
		ORDER BY t.epic_id, t.task_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to check orphaned tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Task
	for rows.Next() {
		var t types.Task
		if err := rows.Scan(&t.ID, &t.EpicID, &t.Number, &t.Name, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned task: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) brokenDependencies(ctx context.Context) ([]types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_task_id, created_at FROM task_dependencies
		WHERE task_id NOT IN (SELECT id FROM live_tasks)
		   OR depends_on_task_id NOT IN (SELECT id FROM live_tasks)
		ORDER BY task_id, depends_on_task_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to check broken dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Dependency
	for rows.Next() {
		var d types.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PurgeBrokenDependencies deletes edges whose endpoints are not both live.
func (s *SQLiteStorage) PurgeBrokenDependencies(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM task_dependencies
		WHERE task_id NOT IN (SELECT id FROM live_tasks)
		   OR depends_on_task_id NOT IN (SELECT id FROM live_tasks)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge broken dependencies: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// TombstoneOrphanedTasks tombstones non-deleted tasks whose epic is gone.
func (s *SQLiteStorage) TombstoneOrphanedTasks(ctx context.Context) (int, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET deleted_at = ?, updated_at = ?
		WHERE deleted_at IS NULL AND epic_id NOT IN (SELECT id FROM live_epics)
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to tombstone orphaned tasks: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
