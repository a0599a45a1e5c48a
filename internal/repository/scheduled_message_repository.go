package repository

import (
	"context"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

const scheduledColumns = `id, item_id, content, scheduled_for, created_by, attempts, next_attempt_at,
       last_error, dispatch_started_at, created_at, updated_at`

type scheduledMessageRepository struct {
	db querier
}

func (r *scheduledMessageRepository) Create(ctx context.Context, msg *domain.ScheduledMessage) error {
	const query = `
        INSERT INTO scheduled_messages (id, item_id, content, scheduled_for, created_by, attempts, next_attempt_at,
            last_error, dispatch_started_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.ItemID,
		msg.Content,
		msg.ScheduledFor,
		msg.CreatedBy,
		msg.Attempts,
		msg.NextAttemptAt,
		msg.LastError,
		msg.DispatchStartedAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	return err
}

func (r *scheduledMessageRepository) Update(ctx context.Context, msg *domain.ScheduledMessage) error {
	const query = `
        UPDATE scheduled_messages SET content=$1, scheduled_for=$2, attempts=$3, next_attempt_at=$4,
            last_error=$5, dispatch_started_at=$6, updated_at=$7
        WHERE id=$8`
	cmd, err := r.db.Exec(ctx, query,
		msg.Content,
		msg.ScheduledFor,
		msg.Attempts,
		msg.NextAttemptAt,
		msg.LastError,
		msg.DispatchStartedAt,
		msg.UpdatedAt,
		msg.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduledMessageRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM scheduled_messages WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduledMessageRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledMessage, error) {
	msg, err := scanScheduled(r.db.QueryRow(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (r *scheduledMessageRepository) GetForUpdate(ctx context.Context, id string) (*domain.ScheduledMessage, error) {
	msg, err := scanScheduled(r.db.QueryRow(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (r *scheduledMessageRepository) ListByItem(ctx context.Context, itemID string) ([]domain.ScheduledMessage, error) {
	return r.list(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages WHERE item_id=$1 ORDER BY scheduled_for ASC`, itemID)
}

func (r *scheduledMessageRepository) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.ScheduledMessage, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_messages
        WHERE scheduled_for <= $1
          AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
          AND (dispatch_started_at IS NULL OR dispatch_started_at <= $2)
        ORDER BY scheduled_for ASC LIMIT $3`
	return r.list(ctx, query, now, staleBefore, limit)
}

func (r *scheduledMessageRepository) Reassign(ctx context.Context, fromItemIDs []string, toItemID string) (int, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE scheduled_messages SET item_id=$1 WHERE item_id = ANY($2)`, toItemID, fromItemIDs)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *scheduledMessageRepository) list(ctx context.Context, query string, args ...any) ([]domain.ScheduledMessage, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ScheduledMessage
	for rows.Next() {
		msg, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func scanScheduled(row scanner) (*domain.ScheduledMessage, error) {
	var msg domain.ScheduledMessage
	if err := row.Scan(
		&msg.ID,
		&msg.ItemID,
		&msg.Content,
		&msg.ScheduledFor,
		&msg.CreatedBy,
		&msg.Attempts,
		&msg.NextAttemptAt,
		&msg.LastError,
		&msg.DispatchStartedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	msg.ScheduledFor = msg.ScheduledFor.UTC()
	return &msg, nil
}
