package repository

import (
	"context"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

const escalationColumns = `id, item_id, raised_by, target_staff_ids, reason, status, resolved_by, resolved_at, created_at`

type escalationRepository struct {
	db querier
}

func (r *escalationRepository) Create(ctx context.Context, esc *domain.Escalation) error {
	const query = `
        INSERT INTO escalations (id, item_id, raised_by, target_staff_ids, reason, status, resolved_by, resolved_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		esc.ID,
		esc.ItemID,
		esc.RaisedBy,
		esc.TargetStaffIDs,
		esc.Reason,
		string(esc.Status),
		esc.ResolvedBy,
		esc.ResolvedAt,
		esc.CreatedAt,
	)
	return err
}

func (r *escalationRepository) Update(ctx context.Context, esc *domain.Escalation) error {
	const query = `
        UPDATE escalations SET item_id=$1, status=$2, resolved_by=$3, resolved_at=$4
        WHERE id=$5`
	cmd, err := r.db.Exec(ctx, query, esc.ItemID, string(esc.Status), esc.ResolvedBy, esc.ResolvedAt, esc.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *escalationRepository) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	esc, err := scanEscalation(r.db.QueryRow(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return esc, nil
}

func (r *escalationRepository) ListByItem(ctx context.Context, itemID string) ([]domain.Escalation, error) {
	return r.list(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE item_id=$1 ORDER BY created_at ASC`, itemID)
}

func (r *escalationRepository) ListPendingForStaff(ctx context.Context, staffID string) ([]domain.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations
        WHERE status='pending' AND $1 = ANY(target_staff_ids) ORDER BY created_at DESC`
	return r.list(ctx, query, staffID)
}

func (r *escalationRepository) Reassign(ctx context.Context, fromItemIDs []string, toItemID string) (int, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE escalations SET item_id=$1 WHERE item_id = ANY($2)`, toItemID, fromItemIDs)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *escalationRepository) list(ctx context.Context, query string, args ...any) ([]domain.Escalation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *esc)
	}
	return result, rows.Err()
}

func scanEscalation(row scanner) (*domain.Escalation, error) {
	var (
		esc    domain.Escalation
		status string
	)
	if err := row.Scan(
		&esc.ID,
		&esc.ItemID,
		&esc.RaisedBy,
		&esc.TargetStaffIDs,
		&esc.Reason,
		&status,
		&esc.ResolvedBy,
		&esc.ResolvedAt,
		&esc.CreatedAt,
	); err != nil {
		return nil, err
	}
	esc.Status = domain.EscalationStatus(status)
	return &esc, nil
}
