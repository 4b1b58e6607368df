package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/ccpm/internal/types"
)

const prdColumns = `id, name, description, status, created_at, updated_at`

func scanPRD(row scanner) (*types.PRD, error) {
	var p types.PRD
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePRD inserts a PRD. Status defaults to backlog.
func (qs *queries) CreatePRD(ctx context.Context, prd *types.PRD) error {
	prd.Name = strings.TrimSpace(prd.Name)
	if prd.Status == "" {
		prd.Status = types.PRDBacklog
	}
	if err := prd.Validate(); err != nil {
		return err
	}
	if _, err := qs.GetPRD(ctx, prd.Name); err == nil {
		return &types.ValidationError{Field: "name", Reason: fmt.Sprintf("PRD %q already exists", prd.Name)}
	} else if !errors.Is(err, types.ErrNotFound) {
		return err
	}

	now := qs.timestamp()
	res, err := qs.q.ExecContext(ctx, `
		INSERT INTO prds (name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, prd.Name, prd.Description, prd.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert PRD: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get PRD id: %w", err)
	}
	prd.ID = id
	prd.CreatedAt = now
	prd.UpdatedAt = now
	return nil
}

// GetPRD looks up a live PRD by name.
func (qs *queries) GetPRD(ctx context.Context, name string) (*types.PRD, error) {
	p, err := scanPRD(qs.q.QueryRowContext(ctx,
		`SELECT `+prdColumns+` FROM live_prds WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("prd", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get PRD %s: %w", name, err)
	}
	return p, nil
}

// GetPRDByID looks up a live PRD by id.
func (qs *queries) GetPRDByID(ctx context.Context, id int64) (*types.PRD, error) {
	p, err := scanPRD(qs.q.QueryRowContext(ctx,
		`SELECT `+prdColumns+` FROM live_prds WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("prd", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get PRD %d: %w", id, err)
	}
	return p, nil
}

// ListPRDs returns live PRDs ordered by creation.
func (qs *queries) ListPRDs(ctx context.Context) ([]*types.PRD, error) {
	rows, err := qs.q.QueryContext(ctx, `SELECT `+prdColumns+` FROM live_prds ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list PRDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.PRD
	for rows.Next() {
		p, err := scanPRD(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan PRD: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePRD applies a typed update to a live PRD.
func (qs *queries) UpdatePRD(ctx context.Context, id int64, update types.PRDUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	var set setClause
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if existing, err := qs.GetPRD(ctx, name); err == nil && existing.ID != id {
			return &types.ValidationError{Field: "name", Reason: fmt.Sprintf("PRD %q already exists", name)}
		}
		set.add("name", name)
	}
	if update.Description != nil {
		set.add("description", *update.Description)
	}
	if update.Status != nil {
		set.add("status", *update.Status)
	}
	set.add("updated_at", qs.timestamp())

	args := append(set.args, id)
	res, err := qs.q.ExecContext(ctx,
		`UPDATE prds SET `+strings.Join(set.cols, ", ")+` WHERE id IN (SELECT id FROM live_prds WHERE id = ?)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to update PRD %d: %w", id, err)
	}
	return requireRow(res, "prd", id)
}

// DeletePRD tombstones a PRD. Its epics stay live with a dangling prd_id,
// which integrity checks report.
func (qs *queries) DeletePRD(ctx context.Context, id int64) error {
	now := qs.timestamp()
	res, err := qs.q.ExecContext(ctx,
		`UPDATE prds SET deleted_at = ?, updated_at = ? WHERE id IN (SELECT id FROM live_prds WHERE id = ?)`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete PRD %d: %w", id, err)
	}
	return requireRow(res, "prd", id)
}

func requireRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return types.NotFound(kind, id)
	}
	return nil
}
