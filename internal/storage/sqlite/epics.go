package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/ccpm/internal/types"
)

const epicColumns = `id, prd_id, name, content, status, progress, external_issue_id, created_at, updated_at`

func scanEpic(row scanner) (*types.Epic, error) {
	var e types.Epic
	var prdID, issue sql.NullInt64
	if err := row.Scan(&e.ID, &prdID, &e.Name, &e.Content, &e.Status, &e.Progress, &issue, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.PRDID = int64Ptr(prdID)
	e.ExternalIssue = int64Ptr(issue)
	return &e, nil
}

// CreateEpic inserts an epic. A non-nil PRDID must reference a live PRD.
func (qs *queries) CreateEpic(ctx context.Context, epic *types.Epic) error {
	epic.Name = strings.TrimSpace(epic.Name)
	if epic.Status == "" {
		epic.Status = types.EpicBacklog
	}
	if err := epic.Validate(); err != nil {
		return err
	}
	if _, err := qs.GetEpic(ctx, epic.Name); err == nil {
		return &types.ValidationError{Field: "name", Reason: fmt.Sprintf("epic %q already exists", epic.Name)}
	} else if !errors.Is(err, types.ErrNotFound) {
		return err
	}
	if epic.PRDID != nil {
		if _, err := qs.GetPRDByID(ctx, *epic.PRDID); err != nil {
			return err
		}
	}

	now := qs.timestamp()
	res, err := qs.q.ExecContext(ctx, `
		INSERT INTO epics (prd_id, name, content, status, progress, external_issue_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullInt64(epic.PRDID), epic.Name, epic.Content, epic.Status, epic.Progress,
		nullInt64(epic.ExternalIssue), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert epic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get epic id: %w", err)
	}
	epic.ID = id
	epic.CreatedAt = now
	epic.UpdatedAt = now
	return nil
}

// GetEpic looks up a live epic by name.
func (qs *queries) GetEpic(ctx context.Context, name string) (*types.Epic, error) {
	e, err := scanEpic(qs.q.QueryRowContext(ctx,
		`SELECT `+epicColumns+` FROM live_epics WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("epic", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get epic %s: %w", name, err)
	}
	return e, nil
}

// GetEpicByID looks up a live epic by id.
func (qs *queries) GetEpicByID(ctx context.Context, id int64) (*types.Epic, error) {
	e, err := scanEpic(qs.q.QueryRowContext(ctx,
		`SELECT `+epicColumns+` FROM live_epics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("epic", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get epic %d: %w", id, err)
	}
	return e, nil
}

// GetEpicByExternalIssue finds the live epic linked to a tracker issue.
func (qs *queries) GetEpicByExternalIssue(ctx context.Context, issue int64) (*types.Epic, error) {
	e, err := scanEpic(qs.q.QueryRowContext(ctx,
		`SELECT `+epicColumns+` FROM live_epics WHERE external_issue_id = ? ORDER BY id LIMIT 1`, issue))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("epic for issue", fmt.Sprintf("#%d", issue))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get epic for issue #%d: %w", issue, err)
	}
	return e, nil
}

// ListEpics returns live epics ordered by creation.
func (qs *queries) ListEpics(ctx context.Context, filter types.EpicFilter) ([]*types.Epic, error) {
	var where []string
	var args []any
	if filter.PRDID != nil {
		where = append(where, "prd_id = ?")
		args = append(args, *filter.PRDID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	query := `SELECT ` + epicColumns + ` FROM live_epics`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list epics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan epic: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEpic applies a typed update to a live epic.
func (qs *queries) UpdateEpic(ctx context.Context, id int64, update types.EpicUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	var set setClause
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if existing, err := qs.GetEpic(ctx, name); err == nil && existing.ID != id {
			return &types.ValidationError{Field: "name", Reason: fmt.Sprintf("epic %q already exists", name)}
		}
		set.add("name", name)
	}
	if update.Content != nil {
		set.add("content", *update.Content)
	}
	if update.Status != nil {
		set.add("status", *update.Status)
	}
	if update.Progress != nil {
		set.add("progress", *update.Progress)
	}
	if update.PRDID != nil {
		if _, err := qs.GetPRDByID(ctx, *update.PRDID); err != nil {
			return err
		}
		set.add("prd_id", *update.PRDID)
	}
	if update.ExternalIssue != nil {
		set.add("external_issue_id", nullInt64(nonZero(*update.ExternalIssue)))
	}
	set.add("updated_at", qs.timestamp())

	res, err := qs.q.ExecContext(ctx,
		`UPDATE epics SET `+strings.Join(set.cols, ", ")+` WHERE id IN (SELECT id FROM live_epics WHERE id = ?)`,
		append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update epic %d: %w", id, err)
	}
	return requireRow(res, "epic", id)
}

// DeleteEpic tombstones an epic. Its tasks and their edges drop out of every
// live view without being touched.
func (qs *queries) DeleteEpic(ctx context.Context, id int64) error {
	now := qs.timestamp()
	res, err := qs.q.ExecContext(ctx,
		`UPDATE epics SET deleted_at = ?, updated_at = ? WHERE id IN (SELECT id FROM live_epics WHERE id = ?)`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete epic %d: %w", id, err)
	}
	return requireRow(res, "epic", id)
}
