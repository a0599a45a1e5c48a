package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// LifecycleService coordinates item intake, messages and status workflows.
type LifecycleService struct {
	core
	presets *SnoozePresets
}

// CreateItemInput describes item intake.
type CreateItemInput struct {
	Channel        domain.Channel
	CustomerID     string
	Subject        string
	Priority       domain.Priority
	Sentiment      domain.Sentiment
	VIP            bool
	InitialMessage string
}

// ItemDetail is an item with its thread and side records.
type ItemDetail struct {
	Item        domain.Item
	Messages    []domain.Message
	Notes       []domain.AuditNote
	Escalations []domain.Escalation
	Scheduled   []domain.ScheduledMessage
}

// ItemListFilter describes staff listing filters.
type ItemListFilter struct {
	Channels      []domain.Channel
	Statuses      []domain.ItemStatus
	Priorities    []domain.Priority
	AssigneeID    *string
	Unassigned    bool
	CustomerID    *string
	EscalatedOnly bool
	EscalatedToMe bool
	SearchTerm    *string
	Limit         int
	Offset        int
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps Dependencies, presets *SnoozePresets) *LifecycleService {
	return &LifecycleService{core: newCore(deps), presets: presets}
}

// Create registers a new ticket or conversation. Conversations start owned by the AI agent.
func (s *LifecycleService) Create(ctx context.Context, actor domain.Actor, input CreateItemInput) (*domain.Item, error) {
	if !input.Channel.Valid() {
		return nil, apperrors.NewValidationError("unknown channel", map[string]any{"channel": input.Channel})
	}
	if strings.TrimSpace(input.CustomerID) == "" {
		return nil, apperrors.NewValidationError("customer id is required", nil)
	}
	if actor.Type == domain.ActorCustomer && actor.ID != strings.TrimSpace(input.CustomerID) {
		return nil, apperrors.NewForbidden("customers can only open their own items", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityNormal
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.Sentiment == "" {
		input.Sentiment = domain.SentimentNeutral
	}
	if !input.Sentiment.Valid() {
		return nil, apperrors.NewValidationError("unknown sentiment", map[string]any{"sentiment": input.Sentiment})
	}

	now := s.now()
	item := domain.Item{
		ID:             uuid.NewString(),
		Channel:        input.Channel,
		CustomerID:     strings.TrimSpace(input.CustomerID),
		Subject:        strings.TrimSpace(input.Subject),
		Status:         lifecycle.InitialStatus(input.Channel),
		Priority:       input.Priority,
		Sentiment:      input.Sentiment,
		VIP:            input.VIP,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if item.Channel.IsChat() {
		owner := s.machine.AIAgentID
		item.AssignedTo = &owner
	}

	err := s.mutate(ctx, []string{item.ID}, func(ctx context.Context, u *unit) error {
		item.CreatedAt, item.LastActivityAt = u.now, u.now
		if err := u.repos.Items.Create(ctx, &item); err != nil {
			return err
		}
		u.emit(events.EventItemCreated, item.ID, actor, events.CreatedPayload{
			Channel:    item.Channel,
			Status:     item.Status,
			Priority:   item.Priority,
			CustomerID: item.CustomerID,
			AssignedTo: item.AssignedTo,
		})
		if content := strings.TrimSpace(input.InitialMessage); content != "" {
			customer := domain.Actor{Type: domain.ActorCustomer, ID: item.CustomerID}
			if _, err := appendMessage(ctx, u, item.ID, customer, content, u.now, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Get returns the item with messages in thread order and its audit trail.
func (s *LifecycleService) Get(ctx context.Context, id string) (*ItemDetail, error) {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	repos := s.store.Reader()
	detail := &ItemDetail{Item: *item}
	if detail.Messages, err = repos.Messages.ListByItem(ctx, id); err != nil {
		return nil, apperrors.MapError(err)
	}
	if detail.Notes, err = repos.Notes.ListByItem(ctx, id); err != nil {
		return nil, apperrors.MapError(err)
	}
	if detail.Escalations, err = repos.Escalations.ListByItem(ctx, id); err != nil {
		return nil, apperrors.MapError(err)
	}
	if detail.Scheduled, err = repos.Scheduled.ListByItem(ctx, id); err != nil {
		return nil, apperrors.MapError(err)
	}
	return detail, nil
}

// List returns items with escalation projections computed for viewer.
func (s *LifecycleService) List(ctx context.Context, viewer string, filter ItemListFilter) ([]repository.ItemSummary, error) {
	rows, err := s.store.Reader().Items.List(ctx, repository.ItemFilter{
		Viewer:        viewer,
		Channels:      filter.Channels,
		Statuses:      filter.Statuses,
		Priorities:    filter.Priorities,
		AssigneeID:    filter.AssigneeID,
		Unassigned:    filter.Unassigned,
		CustomerID:    filter.CustomerID,
		EscalatedOnly: filter.EscalatedOnly,
		EscalatedToMe: filter.EscalatedToMe,
		SearchTerm:    filter.SearchTerm,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rows, nil
}

// PostMessage appends a message authored by actor. A customer message wakes a snoozed ticket.
func (s *LifecycleService) PostMessage(ctx context.Context, actor domain.Actor, itemID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("message content is required", nil)
	}
	var msg *domain.Message
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if actor.Type == domain.ActorCustomer && actor.ID != item.CustomerID {
			return apperrors.NewForbidden("item belongs to another customer", map[string]any{"item_id": item.ID})
		}
		if item.Frozen() {
			return apperrors.NewItemFrozen(item.ID, *item.MergedInto)
		}
		if item.Status == domain.StatusClosed {
			return apperrors.NewInvalidTransition(item.ID, item.Status, "message", "item is closed")
		}
		action := lifecycle.Action{Kind: lifecycle.ActionTouch}
		if actor.Type == domain.ActorCustomer && item.Status == domain.StatusSnoozed {
			action = lifecycle.Action{Kind: lifecycle.ActionWake}
		}
		if item, err = s.apply(ctx, u, item, action, actor); err != nil {
			return err
		}
		msg, err = appendMessage(ctx, u, item.ID, actor, content, u.now, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func senderFor(actor domain.Actor) domain.SenderType {
	switch actor.Type {
	case domain.ActorStaff:
		return domain.SenderStaff
	case domain.ActorAI:
		return domain.SenderAI
	case domain.ActorCustomer:
		return domain.SenderCustomer
	}
	return domain.SenderSystem
}

// appendMessage inserts a message row and queues its event. It never changes item state.
func appendMessage(ctx context.Context, u *unit, itemID string, actor domain.Actor, content string, at time.Time, scheduled bool) (*domain.Message, error) {
	msg := &domain.Message{
		ID:           uuid.NewString(),
		ItemID:       itemID,
		SenderType:   senderFor(actor),
		SenderID:     actor.IDPtr(),
		Content:      content,
		WasScheduled: scheduled,
		CreatedAt:    at,
	}
	if err := u.repos.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	u.emit(events.EventMessageAdded, itemID, actor, events.MessageAddedPayload{
		MessageID:    msg.ID,
		SenderType:   msg.SenderType,
		SenderID:     msg.SenderID,
		WasScheduled: scheduled,
		BodyPreview:  stringPreview(content, 120),
	})
	return msg, nil
}

// transition loads, applies and persists a single action.
func (s *LifecycleService) transition(ctx context.Context, actor domain.Actor, itemID string, action lifecycle.Action) (*domain.Item, error) {
	var result domain.Item
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		result, err = s.apply(ctx, u, item, action, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateStatus moves a ticket along its status graph.
func (s *LifecycleService) UpdateStatus(ctx context.Context, actor domain.Actor, itemID string, status domain.ItemStatus) (*domain.Item, error) {
	return s.transition(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionSetStatus, Status: status})
}

// SnoozeInput selects a deadline either explicitly or through a preset.
type SnoozeInput struct {
	Until  *time.Time
	Preset string
	Reason string
}

// Snooze parks a ticket until a deadline.
func (s *LifecycleService) Snooze(ctx context.Context, actor domain.Actor, itemID string, input SnoozeInput) (*domain.Item, error) {
	var until time.Time
	switch {
	case input.Until != nil:
		until = input.Until.UTC()
	case input.Preset != "" && s.presets != nil:
		resolved, err := s.presets.Resolve(input.Preset, s.now())
		if err != nil {
			return nil, err
		}
		until = resolved
	default:
		return nil, apperrors.NewValidationError("snoozedUntil or preset is required", nil)
	}
	return s.transition(ctx, actor, itemID, lifecycle.Action{
		Kind:   lifecycle.ActionSnooze,
		Until:  until,
		Reason: strings.TrimSpace(input.Reason),
	})
}

// SnoozePresets resolves every preset against the current time.
func (s *LifecycleService) SnoozePresets() []SnoozePreset {
	if s.presets == nil {
		return nil
	}
	return s.presets.List(s.now())
}

// Unsnooze restores a snoozed ticket to its pre-snooze status.
func (s *LifecycleService) Unsnooze(ctx context.Context, actor domain.Actor, itemID string) (*domain.Item, error) {
	return s.transition(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionUnsnooze})
}

// ExpireSnooze wakes the ticket if its deadline has passed. It reports whether anything changed.
func (s *LifecycleService) ExpireSnooze(ctx context.Context, itemID string) (bool, error) {
	changed := false
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Frozen() {
			return nil
		}
		next, err := s.apply(ctx, u, item, lifecycle.Action{Kind: lifecycle.ActionExpireSnooze}, domain.SystemActor())
		if err != nil {
			return err
		}
		changed = next.Version != item.Version
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// AutoClose closes an idle conversation or a long-resolved ticket.
func (s *LifecycleService) AutoClose(ctx context.Context, itemID string, idleBefore time.Time) (bool, error) {
	changed := false
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Frozen() || item.Status == domain.StatusClosed {
			return nil
		}
		// activity may have happened since the sweep listed this item
		if item.Channel.IsChat() && !item.LastActivityAt.Before(idleBefore) {
			return nil
		}
		if !item.Channel.IsChat() && (item.ResolvedAt == nil || !item.ResolvedAt.Before(idleBefore)) {
			return nil
		}
		next, err := s.apply(ctx, u, item, lifecycle.Action{Kind: lifecycle.ActionAutoClose}, domain.SystemActor())
		if err != nil {
			return err
		}
		changed = next.Version != item.Version
		return nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeInvalidTransition) || apperrors.HasCode(err, apperrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return changed, nil
}

// Queue hands an AI conversation to the staff queue.
func (s *LifecycleService) Queue(ctx context.Context, actor domain.Actor, itemID string) (*domain.Item, error) {
	return s.transition(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionQueue})
}

// Takeover lets a staff member grab a conversation from the AI or the queue.
func (s *LifecycleService) Takeover(ctx context.Context, actor domain.Actor, itemID string) (*domain.Item, error) {
	return s.transition(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionTakeover})
}

// Pickup claims a queued conversation, or starts handling one assigned to the caller.
func (s *LifecycleService) Pickup(ctx context.Context, actor domain.Actor, itemID string) (*domain.Item, error) {
	return s.transition(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionPickup})
}

// Close ends a conversation with the requested resolution.
func (s *LifecycleService) Close(ctx context.Context, actor domain.Actor, itemID, resolution string) (*domain.Item, error) {
	return s.transition(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionClose, Resolution: strings.TrimSpace(resolution)})
}
