package repository

import (
	"context"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

type auditNoteRepository struct {
	db querier
}

func (r *auditNoteRepository) Create(ctx context.Context, note *domain.AuditNote) error {
	const query = `
        INSERT INTO audit_notes (id, item_id, kind, actor_type, actor_id, content, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		note.ID,
		note.ItemID,
		string(note.Kind),
		string(note.ActorType),
		note.ActorID,
		note.Content,
		note.OldValue,
		note.NewValue,
		note.CreatedAt,
	)
	return err
}

func (r *auditNoteRepository) ListByItem(ctx context.Context, itemID string) ([]domain.AuditNote, error) {
	const query = `
        SELECT id, item_id, kind, actor_type, actor_id, content, old_value, new_value, created_at
        FROM audit_notes WHERE item_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditNote
	for rows.Next() {
		var (
			note      domain.AuditNote
			kind      string
			actorType string
		)
		if err := rows.Scan(
			&note.ID,
			&note.ItemID,
			&kind,
			&actorType,
			&note.ActorID,
			&note.Content,
			&note.OldValue,
			&note.NewValue,
			&note.CreatedAt,
		); err != nil {
			return nil, err
		}
		note.Kind = domain.NoteKind(kind)
		note.ActorType = domain.ActorType(actorType)
		result = append(result, note)
	}
	return result, rows.Err()
}
