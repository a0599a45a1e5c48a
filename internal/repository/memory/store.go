// Package memory is an in-process Store for tests and single-node development.
// A transaction works on a copy of the data and swaps it in on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
)

type state struct {
	items       map[string]domain.Item
	messages    map[string][]domain.Message
	scheduled   map[string]domain.ScheduledMessage
	escalations map[string]domain.Escalation
	notes       map[string][]domain.AuditNote
	seq         int64
}

func newState() *state {
	return &state{
		items:       map[string]domain.Item{},
		messages:    map[string][]domain.Message{},
		scheduled:   map[string]domain.ScheduledMessage{},
		escalations: map[string]domain.Escalation{},
		notes:       map[string][]domain.AuditNote{},
	}
}

func (s *state) clone() *state {
	out := newState()
	out.seq = s.seq
	for k, v := range s.items {
		out.items[k] = v.Clone()
	}
	for k, v := range s.messages {
		out.messages[k] = append([]domain.Message(nil), v...)
	}
	for k, v := range s.scheduled {
		out.scheduled[k] = v
	}
	for k, v := range s.escalations {
		v.TargetStaffIDs = append([]string(nil), v.TargetStaffIDs...)
		out.escalations[k] = v
	}
	for k, v := range s.notes {
		out.notes[k] = append([]domain.AuditNote(nil), v...)
	}
	return out
}

// access yields the state to operate on and a func to call when done.
type access func() (*state, func())

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.RWMutex
	data  *state
	staff *StaffDirectory
}

// NewStore builds an empty store with the given staff directory.
func NewStore(staff *StaffDirectory) *Store {
	if staff == nil {
		staff = NewStaffDirectory()
	}
	return &Store{data: newState(), staff: staff}
}

func bind(get access) repository.Repositories {
	return repository.Repositories{
		Items:       &itemRepo{get: get},
		Messages:    &messageRepo{get: get},
		Scheduled:   &scheduledRepo{get: get},
		Escalations: &escalationRepo{get: get},
		Notes:       &noteRepo{get: get},
	}
}

// WithTx runs fn against a private copy and commits it only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.data.clone()
	if err := fn(bind(func() (*state, func()) { return working, func() {} })); err != nil {
		return err
	}
	s.data = working
	return nil
}

// Reader returns repositories reading committed data. Must not be used inside WithTx.
func (s *Store) Reader() repository.Repositories {
	return bind(func() (*state, func()) {
		s.mu.RLock()
		return s.data, s.mu.RUnlock
	})
}

// Staff returns the staff directory.
func (s *Store) Staff() repository.StaffRepository {
	return s.staff
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

type itemRepo struct{ get access }

func (r *itemRepo) Create(_ context.Context, item *domain.Item) error {
	st, done := r.get()
	defer done()
	st.items[item.ID] = item.Clone()
	return nil
}

func (r *itemRepo) Update(_ context.Context, item *domain.Item) error {
	st, done := r.get()
	defer done()
	current, ok := st.items[item.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != item.Version-1 {
		return repository.ErrStaleVersion
	}
	st.items[item.ID] = item.Clone()
	return nil
}

func (r *itemRepo) GetByID(_ context.Context, id string) (*domain.Item, error) {
	st, done := r.get()
	defer done()
	item, ok := st.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := item.Clone()
	return &out, nil
}

func (r *itemRepo) GetForUpdate(_ context.Context, ids []string) ([]domain.Item, error) {
	st, done := r.get()
	defer done()
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var result []domain.Item
	seen := map[string]bool{}
	for _, id := range sorted {
		if seen[id] {
			continue
		}
		seen[id] = true
		if item, ok := st.items[id]; ok {
			result = append(result, item.Clone())
		}
	}
	return result, nil
}

func (r *itemRepo) List(_ context.Context, filter repository.ItemFilter) ([]repository.ItemSummary, error) {
	st, done := r.get()
	defer done()

	var result []repository.ItemSummary
	for _, item := range st.items {
		if !matches(item, filter) {
			continue
		}
		summary := repository.ItemSummary{Item: item.Clone()}
		for _, esc := range st.escalations {
			if esc.ItemID != item.ID || esc.Status != domain.EscalationPending {
				continue
			}
			summary.PendingEscalations++
			if filter.Viewer != "" && esc.Targets(filter.Viewer) {
				summary.EscalatedToViewer = true
			}
		}
		if filter.EscalatedOnly && summary.PendingEscalations == 0 {
			continue
		}
		if filter.EscalatedToMe && !summary.EscalatedToViewer {
			continue
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Item, result[j].Item
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.ID < b.ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func matches(item domain.Item, f repository.ItemFilter) bool {
	if !f.IncludeMerged && item.MergedInto != nil {
		return false
	}
	if len(f.Channels) > 0 && !contains(f.Channels, item.Channel) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, item.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, item.Priority) {
		return false
	}
	if f.AssigneeID != nil && item.OwnerOrEmpty() != *f.AssigneeID {
		return false
	}
	if f.Unassigned && item.AssignedTo != nil {
		return false
	}
	if f.CustomerID != nil && item.CustomerID != *f.CustomerID {
		return false
	}
	if f.VIP != nil && item.VIP != *f.VIP {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(item.Subject), term) {
			return false
		}
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func (r *itemRepo) ListSnoozeExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	return r.collect(limit, func(item domain.Item) (time.Time, bool) {
		if item.Status != domain.StatusSnoozed || item.Snooze == nil || item.Snooze.Until.After(now) {
			return time.Time{}, false
		}
		return item.Snooze.Until, true
	})
}

func (r *itemRepo) ListIdleChats(_ context.Context, idleBefore time.Time, limit int) ([]string, error) {
	return r.collect(limit, func(item domain.Item) (time.Time, bool) {
		if !item.Channel.IsChat() || item.Status == domain.StatusClosed || !item.LastActivityAt.Before(idleBefore) {
			return time.Time{}, false
		}
		return item.LastActivityAt, true
	})
}

func (r *itemRepo) ListResolvedBefore(_ context.Context, before time.Time, limit int) ([]string, error) {
	return r.collect(limit, func(item domain.Item) (time.Time, bool) {
		if item.Channel.IsChat() || item.Status != domain.StatusResolved || item.ResolvedAt == nil || !item.ResolvedAt.Before(before) {
			return time.Time{}, false
		}
		return *item.ResolvedAt, true
	})
}

// collect returns ids of unmerged items selected by pick, ordered by the returned key.
func (r *itemRepo) collect(limit int, pick func(domain.Item) (time.Time, bool)) ([]string, error) {
	st, done := r.get()
	defer done()
	type keyed struct {
		id string
		at time.Time
	}
	var hits []keyed
	for _, item := range st.items {
		if item.MergedInto != nil {
			continue
		}
		if at, ok := pick(item); ok {
			hits = append(hits, keyed{id: item.ID, at: at})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].at.Equal(hits[j].at) {
			return hits[i].at.Before(hits[j].at)
		}
		return hits[i].id < hits[j].id
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

type messageRepo struct{ get access }

func (r *messageRepo) Create(_ context.Context, msg *domain.Message) error {
	st, done := r.get()
	defer done()
	st.seq++
	msg.Seq = st.seq
	st.messages[msg.ItemID] = append(st.messages[msg.ItemID], *msg)
	return nil
}

func (r *messageRepo) ListByItem(_ context.Context, itemID string) ([]domain.Message, error) {
	st, done := r.get()
	defer done()
	out := append([]domain.Message(nil), st.messages[itemID]...)
	sort.SliceStable(out, func(i, j int) bool { return domain.MessageLess(out[i], out[j]) })
	return out, nil
}

func (r *messageRepo) Reassign(_ context.Context, fromItemIDs []string, toItemID string) (int, error) {
	st, done := r.get()
	defer done()
	moved := 0
	for _, from := range fromItemIDs {
		for _, msg := range st.messages[from] {
			msg.ItemID = toItemID
			st.messages[toItemID] = append(st.messages[toItemID], msg)
			moved++
		}
		delete(st.messages, from)
	}
	return moved, nil
}

type scheduledRepo struct{ get access }

func (r *scheduledRepo) Create(_ context.Context, msg *domain.ScheduledMessage) error {
	st, done := r.get()
	defer done()
	st.scheduled[msg.ID] = *msg
	return nil
}

func (r *scheduledRepo) Update(_ context.Context, msg *domain.ScheduledMessage) error {
	st, done := r.get()
	defer done()
	if _, ok := st.scheduled[msg.ID]; !ok {
		return repository.ErrNotFound
	}
	st.scheduled[msg.ID] = *msg
	return nil
}

func (r *scheduledRepo) Delete(_ context.Context, id string) error {
	st, done := r.get()
	defer done()
	if _, ok := st.scheduled[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.scheduled, id)
	return nil
}

func (r *scheduledRepo) GetByID(_ context.Context, id string) (*domain.ScheduledMessage, error) {
	st, done := r.get()
	defer done()
	msg, ok := st.scheduled[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &msg, nil
}

func (r *scheduledRepo) GetForUpdate(ctx context.Context, id string) (*domain.ScheduledMessage, error) {
	return r.GetByID(ctx, id)
}

func (r *scheduledRepo) ListByItem(_ context.Context, itemID string) ([]domain.ScheduledMessage, error) {
	return r.filter(0, func(m domain.ScheduledMessage) bool { return m.ItemID == itemID }), nil
}

func (r *scheduledRepo) ListDue(_ context.Context, now, staleBefore time.Time, limit int) ([]domain.ScheduledMessage, error) {
	return r.filter(limit, func(m domain.ScheduledMessage) bool {
		if m.ScheduledFor.After(now) {
			return false
		}
		if m.NextAttemptAt != nil && m.NextAttemptAt.After(now) {
			return false
		}
		return !m.Claimed(staleBefore)
	}), nil
}

func (r *scheduledRepo) filter(limit int, keep func(domain.ScheduledMessage) bool) []domain.ScheduledMessage {
	st, done := r.get()
	defer done()
	var out []domain.ScheduledMessage
	for _, m := range st.scheduled {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *scheduledRepo) Reassign(_ context.Context, fromItemIDs []string, toItemID string) (int, error) {
	st, done := r.get()
	defer done()
	moved := 0
	for id, m := range st.scheduled {
		if contains(fromItemIDs, m.ItemID) {
			m.ItemID = toItemID
			st.scheduled[id] = m
			moved++
		}
	}
	return moved, nil
}

type escalationRepo struct{ get access }

func (r *escalationRepo) Create(_ context.Context, esc *domain.Escalation) error {
	st, done := r.get()
	defer done()
	st.escalations[esc.ID] = *esc
	return nil
}

func (r *escalationRepo) Update(_ context.Context, esc *domain.Escalation) error {
	st, done := r.get()
	defer done()
	if _, ok := st.escalations[esc.ID]; !ok {
		return repository.ErrNotFound
	}
	st.escalations[esc.ID] = *esc
	return nil
}

func (r *escalationRepo) GetByID(_ context.Context, id string) (*domain.Escalation, error) {
	st, done := r.get()
	defer done()
	esc, ok := st.escalations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &esc, nil
}

func (r *escalationRepo) ListByItem(_ context.Context, itemID string) ([]domain.Escalation, error) {
	return r.filter(func(e domain.Escalation) bool { return e.ItemID == itemID }, false), nil
}

func (r *escalationRepo) ListPendingForStaff(_ context.Context, staffID string) ([]domain.Escalation, error) {
	return r.filter(func(e domain.Escalation) bool {
		return e.Status == domain.EscalationPending && e.Targets(staffID)
	}, true), nil
}

func (r *escalationRepo) filter(keep func(domain.Escalation) bool, newestFirst bool) []domain.Escalation {
	st, done := r.get()
	defer done()
	var out []domain.Escalation
	for _, e := range st.escalations {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt) != newestFirst
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *escalationRepo) Reassign(_ context.Context, fromItemIDs []string, toItemID string) (int, error) {
	st, done := r.get()
	defer done()
	moved := 0
	for id, e := range st.escalations {
		if contains(fromItemIDs, e.ItemID) {
			e.ItemID = toItemID
			st.escalations[id] = e
			moved++
		}
	}
	return moved, nil
}

type noteRepo struct{ get access }

func (r *noteRepo) Create(_ context.Context, note *domain.AuditNote) error {
	st, done := r.get()
	defer done()
	st.notes[note.ItemID] = append(st.notes[note.ItemID], *note)
	return nil
}

func (r *noteRepo) ListByItem(_ context.Context, itemID string) ([]domain.AuditNote, error) {
	st, done := r.get()
	defer done()
	out := append([]domain.AuditNote(nil), st.notes[itemID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
