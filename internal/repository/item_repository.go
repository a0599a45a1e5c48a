package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

const itemColumns = `i.id, i.channel, i.customer_id, i.subject, i.status, i.priority, i.sentiment, i.assigned_to, i.vip,
       i.snoozed_until, i.snooze_reason, i.pre_snooze_status, i.resolution_type, i.merged_from, i.merged_into,
       i.version, i.created_at, i.last_activity_at, i.resolved_at, i.closed_at`

type itemRepository struct {
	db querier
}

func (r *itemRepository) Create(ctx context.Context, item *domain.Item) error {
	const query = `
        INSERT INTO items (id, channel, customer_id, subject, status, priority, sentiment, assigned_to, vip,
            snoozed_until, snooze_reason, pre_snooze_status, resolution_type, merged_from, merged_into,
            version, created_at, last_activity_at, resolved_at, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	args := append([]any{item.ID}, itemValues(item)...)
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

func (r *itemRepository) Update(ctx context.Context, item *domain.Item) error {
	const query = `
        UPDATE items SET channel=$2, customer_id=$3, subject=$4, status=$5, priority=$6, sentiment=$7,
            assigned_to=$8, vip=$9, snoozed_until=$10, snooze_reason=$11, pre_snooze_status=$12,
            resolution_type=$13, merged_from=$14, merged_into=$15, version=$16, created_at=$17,
            last_activity_at=$18, resolved_at=$19, closed_at=$20
        WHERE id=$1 AND version=$16 - 1`
	args := append([]any{item.ID}, itemValues(item)...)
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// itemValues returns columns 2..20 in insert order.
func itemValues(item *domain.Item) []any {
	var (
		snoozedUntil *time.Time
		reason       string
		preSnooze    *string
		resolution   *string
	)
	if item.Snooze != nil {
		until := item.Snooze.Until
		prev := string(item.Snooze.PreviousStatus)
		snoozedUntil, reason, preSnooze = &until, item.Snooze.Reason, &prev
	}
	if item.ResolutionType != nil {
		v := string(*item.ResolutionType)
		resolution = &v
	}
	mergedFrom := item.MergedFrom
	if mergedFrom == nil {
		mergedFrom = []string{}
	}
	return []any{
		string(item.Channel),
		item.CustomerID,
		item.Subject,
		string(item.Status),
		string(item.Priority),
		string(item.Sentiment),
		item.AssignedTo,
		item.VIP,
		snoozedUntil,
		reason,
		preSnooze,
		resolution,
		mergedFrom,
		item.MergedInto,
		item.Version,
		item.CreatedAt,
		item.LastActivityAt,
		item.ResolvedAt,
		item.ClosedAt,
	}
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i WHERE i.id=$1`
	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

func (r *itemRepository) GetForUpdate(ctx context.Context, ids []string) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i WHERE i.id = ANY($1) ORDER BY i.id FOR UPDATE`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

func (r *itemRepository) List(ctx context.Context, filter ItemFilter) ([]ItemSummary, error) {
	args := []any{filter.Viewer}
	base := `SELECT ` + itemColumns + `,
            (SELECT COUNT(*) FROM escalations e WHERE e.item_id = i.id AND e.status = 'pending') AS pending_escalations,
            EXISTS (SELECT 1 FROM escalations e WHERE e.item_id = i.id AND e.status = 'pending'
                    AND $1 = ANY(e.target_staff_ids)) AS escalated_to_viewer
        FROM items i`
	clauses := []string{"1=1"}

	if !filter.IncludeMerged {
		clauses = append(clauses, "i.merged_into IS NULL")
	}
	if len(filter.Channels) > 0 {
		values := make([]string, len(filter.Channels))
		for i, c := range filter.Channels {
			values[i] = string(c)
		}
		args = append(args, values)
		clauses = append(clauses, fmt.Sprintf("i.channel = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		args = append(args, values)
		clauses = append(clauses, fmt.Sprintf("i.status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		values := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			values[i] = string(p)
		}
		args = append(args, values)
		clauses = append(clauses, fmt.Sprintf("i.priority = ANY($%d)", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("i.assigned_to=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "i.assigned_to IS NULL")
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("i.customer_id=$%d", len(args)))
	}
	if filter.VIP != nil {
		args = append(args, *filter.VIP)
		clauses = append(clauses, fmt.Sprintf("i.vip=$%d", len(args)))
	}
	if filter.EscalatedOnly {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM escalations e WHERE e.item_id = i.id AND e.status = 'pending')")
	}
	if filter.EscalatedToMe {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM escalations e WHERE e.item_id = i.id AND e.status = 'pending' AND $1 = ANY(e.target_staff_ids))")
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		clauses = append(clauses, fmt.Sprintf("LOWER(i.subject) LIKE $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY i.last_activity_at DESC, i.id LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ItemSummary
	for rows.Next() {
		var summary ItemSummary
		item, err := scanItem(rows, &summary.PendingEscalations, &summary.EscalatedToViewer)
		if err != nil {
			return nil, err
		}
		summary.Item = *item
		result = append(result, summary)
	}
	return result, rows.Err()
}

func (r *itemRepository) ListSnoozeExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
        SELECT id FROM items
        WHERE status='snoozed' AND snoozed_until <= $1 AND merged_into IS NULL
        ORDER BY snoozed_until LIMIT $2`
	return r.listIDs(ctx, query, now, limit)
}

func (r *itemRepository) ListIdleChats(ctx context.Context, idleBefore time.Time, limit int) ([]string, error) {
	const query = `
        SELECT id FROM items
        WHERE channel='chat' AND status <> 'closed' AND last_activity_at < $1 AND merged_into IS NULL
        ORDER BY last_activity_at LIMIT $2`
	return r.listIDs(ctx, query, idleBefore, limit)
}

func (r *itemRepository) ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	const query = `
        SELECT id FROM items
        WHERE channel <> 'chat' AND status='resolved' AND resolved_at < $1 AND merged_into IS NULL
        ORDER BY resolved_at LIMIT $2`
	return r.listIDs(ctx, query, before, limit)
}

func (r *itemRepository) listIDs(ctx context.Context, query string, at time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, query, at, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanItem(row scanner, extra ...any) (*domain.Item, error) {
	var (
		item         domain.Item
		channel      string
		status       string
		priority     string
		sentiment    string
		snoozedUntil *time.Time
		reason       string
		preSnooze    *string
		resolution   *string
	)
	dest := []any{
		&item.ID,
		&channel,
		&item.CustomerID,
		&item.Subject,
		&status,
		&priority,
		&sentiment,
		&item.AssignedTo,
		&item.VIP,
		&snoozedUntil,
		&reason,
		&preSnooze,
		&resolution,
		&item.MergedFrom,
		&item.MergedInto,
		&item.Version,
		&item.CreatedAt,
		&item.LastActivityAt,
		&item.ResolvedAt,
		&item.ClosedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	item.Channel = domain.Channel(channel)
	item.Status = domain.ItemStatus(status)
	item.Priority = domain.Priority(priority)
	item.Sentiment = domain.Sentiment(sentiment)
	if snoozedUntil != nil {
		item.Snooze = &domain.SnoozeState{Until: snoozedUntil.UTC(), Reason: reason}
		if preSnooze != nil {
			item.Snooze.PreviousStatus = domain.ItemStatus(*preSnooze)
		}
	}
	if resolution != nil {
		rt := domain.ResolutionType(*resolution)
		item.ResolutionType = &rt
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.LastActivityAt = item.LastActivityAt.UTC()
	return &item, nil
}
