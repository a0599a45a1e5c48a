package repository

import (
	"context"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

type messageRepository struct {
	db querier
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, item_id, sender_type, sender_id, content, was_scheduled, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING seq`
	return r.db.QueryRow(ctx, query,
		msg.ID,
		msg.ItemID,
		string(msg.SenderType),
		msg.SenderID,
		msg.Content,
		msg.WasScheduled,
		msg.CreatedAt,
	).Scan(&msg.Seq)
}

func (r *messageRepository) ListByItem(ctx context.Context, itemID string) ([]domain.Message, error) {
	const query = `
        SELECT id, seq, item_id, sender_type, sender_id, content, was_scheduled, created_at
        FROM messages WHERE item_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var (
			msg        domain.Message
			senderType string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.Seq,
			&msg.ItemID,
			&senderType,
			&msg.SenderID,
			&msg.Content,
			&msg.WasScheduled,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		msg.SenderType = domain.SenderType(senderType)
		msg.CreatedAt = msg.CreatedAt.UTC()
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Reassign moves messages keeping their original timestamps.
func (r *messageRepository) Reassign(ctx context.Context, fromItemIDs []string, toItemID string) (int, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE messages SET item_id=$1 WHERE item_id = ANY($2)`, toItemID, fromItemIDs)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}
