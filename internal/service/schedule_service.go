package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// Dispatch outcomes reported to metrics.
const (
	DispatchDelivered = "delivered"
	DispatchFailed    = "failed"
	DispatchSkipped   = "skipped"
)

// ScheduleService stores replies for delayed delivery and converts them into messages when due.
type ScheduleService struct {
	core
	deliverer Deliverer
	cfg       config.SchedulerConfig
}

// NewScheduleService constructs the service.
func NewScheduleService(deps Dependencies, deliverer Deliverer, cfg config.SchedulerConfig) *ScheduleService {
	c := newCore(deps)
	if deliverer == nil {
		deliverer = LogDeliverer{Logger: c.logger}
	}
	return &ScheduleService{core: c, deliverer: deliverer, cfg: cfg}
}

// Schedule stores a reply to be posted at the given instant.
func (s *ScheduleService) Schedule(ctx context.Context, actor domain.Actor, itemID, content string, at time.Time) (*domain.ScheduledMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", nil)
	}
	if at.IsZero() {
		return nil, apperrors.NewInvalidSchedule("scheduledFor is required", nil)
	}
	var rec domain.ScheduledMessage
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		if err := requireFuture(at, u.now); err != nil {
			return err
		}
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Frozen() {
			return apperrors.NewItemFrozen(item.ID, *item.MergedInto)
		}
		if item.Status == domain.StatusClosed {
			return apperrors.NewInvalidTransition(item.ID, item.Status, "schedule_reply", "item is closed")
		}
		rec = domain.ScheduledMessage{
			ID:           uuid.NewString(),
			ItemID:       item.ID,
			Content:      content,
			ScheduledFor: at.UTC(),
			CreatedBy:    actor.ID,
			CreatedAt:    u.now,
			UpdatedAt:    u.now,
		}
		if err := u.repos.Scheduled.Create(ctx, &rec); err != nil {
			return err
		}
		if err := u.addNote(ctx, domain.AuditNote{
			ItemID:    item.ID,
			Kind:      domain.NoteSchedule,
			ActorType: actor.Type,
			ActorID:   actor.IDPtr(),
			Content:   fmt.Sprintf("Reply scheduled for %s", rec.ScheduledFor.Format(time.RFC3339)),
			NewValue:  map[string]any{"scheduled_message_id": rec.ID, "scheduled_for": rec.ScheduledFor},
		}); err != nil {
			return err
		}
		u.emit(events.EventScheduledCreated, item.ID, actor, events.ScheduledPayload{
			ScheduledMessageID: rec.ID,
			ScheduledFor:       rec.ScheduledFor,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Reschedule edits content and/or time of a pending scheduled reply.
func (s *ScheduleService) Reschedule(ctx context.Context, actor domain.Actor, id string, content *string, at *time.Time) (*domain.ScheduledMessage, error) {
	if content == nil && at == nil {
		return nil, apperrors.NewValidationError("content or scheduledFor is required", nil)
	}
	if content != nil && strings.TrimSpace(*content) == "" {
		return nil, apperrors.NewValidationError("content must not be empty", nil)
	}
	itemID, err := s.ownerOf(ctx, id)
	if err != nil {
		return nil, err
	}
	var result domain.ScheduledMessage
	err = s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		rec, err := s.lockEditable(ctx, u, itemID, id)
		if err != nil {
			return err
		}
		old := map[string]any{"content": rec.Content, "scheduled_for": rec.ScheduledFor}
		if at != nil {
			if err := requireFuture(*at, u.now); err != nil {
				return err
			}
			rec.ScheduledFor = at.UTC()
		}
		if content != nil {
			rec.Content = strings.TrimSpace(*content)
		}
		rec.UpdatedAt = u.now
		if err := u.repos.Scheduled.Update(ctx, rec); err != nil {
			return err
		}
		if err := u.addNote(ctx, domain.AuditNote{
			ItemID:    rec.ItemID,
			Kind:      domain.NoteSchedule,
			ActorType: actor.Type,
			ActorID:   actor.IDPtr(),
			Content:   fmt.Sprintf("Scheduled reply updated, now due %s", rec.ScheduledFor.Format(time.RFC3339)),
			OldValue:  old,
			NewValue:  map[string]any{"content": rec.Content, "scheduled_for": rec.ScheduledFor},
		}); err != nil {
			return err
		}
		u.emit(events.EventScheduledUpdated, rec.ItemID, actor, events.ScheduledPayload{
			ScheduledMessageID: rec.ID,
			ScheduledFor:       rec.ScheduledFor,
		})
		result = *rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel removes a pending scheduled reply.
func (s *ScheduleService) Cancel(ctx context.Context, actor domain.Actor, id string) error {
	itemID, err := s.ownerOf(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		rec, err := s.lockEditable(ctx, u, itemID, id)
		if err != nil {
			return err
		}
		if err := u.repos.Scheduled.Delete(ctx, rec.ID); err != nil {
			return err
		}
		if err := u.addNote(ctx, domain.AuditNote{
			ItemID:    rec.ItemID,
			Kind:      domain.NoteSchedule,
			ActorType: actor.Type,
			ActorID:   actor.IDPtr(),
			Content:   "Scheduled reply cancelled",
			OldValue:  map[string]any{"scheduled_message_id": rec.ID, "scheduled_for": rec.ScheduledFor},
		}); err != nil {
			return err
		}
		u.emit(events.EventScheduledCancelled, rec.ItemID, actor, events.ScheduledPayload{
			ScheduledMessageID: rec.ID,
			ScheduledFor:       rec.ScheduledFor,
		})
		return nil
	})
}

// ListForItem returns pending scheduled replies of an item ordered by due time.
func (s *ScheduleService) ListForItem(ctx context.Context, itemID string) ([]domain.ScheduledMessage, error) {
	if _, err := s.getItem(ctx, itemID); err != nil {
		return nil, err
	}
	list, err := s.store.Reader().Scheduled.ListByItem(ctx, itemID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// DispatchDue converts every due scheduled reply that holds no live claim. It returns the number delivered.
func (s *ScheduleService) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.Reader().Scheduled.ListDue(ctx, now, now.Add(-s.cfg.ClaimTTL()), s.batchSize())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	delivered := 0
	for _, rec := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		ok, err := s.Dispatch(ctx, rec.ID)
		if err != nil {
			s.logger.Warn("scheduled dispatch failed",
				zap.String("scheduled_message_id", rec.ID),
				zap.String("item_id", rec.ItemID),
				zap.Error(err))
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

// Dispatch claims, delivers and converts one scheduled reply. A record that is gone, not yet
// due, or claimed by another worker is skipped and reported as not delivered.
func (s *ScheduleService) Dispatch(ctx context.Context, id string) (bool, error) {
	claimed, item, err := s.claim(ctx, id)
	if err != nil || claimed == nil {
		return false, err
	}

	if deliverErr := s.deliverer.Deliver(ctx, item, *claimed); deliverErr != nil {
		if err := s.recordFailure(ctx, *claimed, deliverErr); err != nil {
			return false, err
		}
		return false, deliverErr
	}

	done, err := s.complete(ctx, *claimed)
	if err != nil {
		return false, err
	}
	if done {
		s.metrics.RecordDispatch(DispatchDelivered)
	} else {
		s.metrics.RecordDispatch(DispatchSkipped)
	}
	return done, nil
}

func (s *ScheduleService) claim(ctx context.Context, id string) (*domain.ScheduledMessage, domain.Item, error) {
	itemID, err := s.ownerOf(ctx, id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, domain.Item{}, nil
		}
		return nil, domain.Item{}, err
	}
	var (
		claimed *domain.ScheduledMessage
		item    domain.Item
	)
	err = s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		rec, err := u.repos.Scheduled.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if rec.ItemID != itemID {
			return nil
		}
		if rec.ScheduledFor.After(u.now) || (rec.NextAttemptAt != nil && rec.NextAttemptAt.After(u.now)) {
			return nil
		}
		if rec.Claimed(u.now.Add(-s.cfg.ClaimTTL())) {
			return nil
		}
		if item, err = u.loadItem(ctx, rec.ItemID); err != nil {
			return err
		}
		started := u.now
		rec.DispatchStartedAt = &started
		rec.UpdatedAt = u.now
		if err := u.repos.Scheduled.Update(ctx, rec); err != nil {
			return err
		}
		claimed = rec
		return nil
	})
	if err != nil {
		return nil, domain.Item{}, err
	}
	return claimed, item, nil
}

// complete deletes the record and inserts the message in one transaction.
func (s *ScheduleService) complete(ctx context.Context, rec domain.ScheduledMessage) (bool, error) {
	done := false
	author := domain.StaffActor(rec.CreatedBy)
	err := s.mutate(ctx, []string{rec.ItemID}, func(ctx context.Context, u *unit) error {
		current, err := u.repos.Scheduled.GetForUpdate(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := u.repos.Scheduled.Delete(ctx, current.ID); err != nil {
			return err
		}
		item, err := u.loadItem(ctx, current.ItemID)
		if err != nil {
			return err
		}
		if !item.Frozen() {
			if _, err := s.apply(ctx, u, item, lifecycle.Action{Kind: lifecycle.ActionTouch}, author); err != nil {
				return err
			}
		}
		msg, err := appendMessage(ctx, u, current.ItemID, author, current.Content, current.ScheduledFor, true)
		if err != nil {
			return err
		}
		if err := u.addNote(ctx, domain.AuditNote{
			ItemID:    current.ItemID,
			Kind:      domain.NoteDispatch,
			ActorType: domain.ActorSystem,
			Content:   "Scheduled reply sent",
			NewValue:  map[string]any{"scheduled_message_id": current.ID, "message_id": msg.ID, "attempts": current.Attempts + 1},
		}); err != nil {
			return err
		}
		u.emit(events.EventScheduledDispatched, current.ItemID, domain.SystemActor(), events.ScheduledPayload{
			ScheduledMessageID: current.ID,
			ScheduledFor:       current.ScheduledFor,
			Attempts:           current.Attempts + 1,
		})
		done = true
		return nil
	})
	return done, err
}

// recordFailure releases the claim and schedules the next attempt with backoff.
func (s *ScheduleService) recordFailure(ctx context.Context, rec domain.ScheduledMessage, cause error) error {
	var attempts int
	err := s.mutate(ctx, []string{rec.ItemID}, func(ctx context.Context, u *unit) error {
		current, err := u.repos.Scheduled.GetForUpdate(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		current.Attempts++
		next := u.now.Add(s.cfg.Backoff(current.Attempts))
		current.NextAttemptAt = &next
		current.LastError = stringPreview(cause.Error(), 500)
		current.DispatchStartedAt = nil
		current.UpdatedAt = u.now
		if err := u.repos.Scheduled.Update(ctx, current); err != nil {
			return err
		}
		attempts = current.Attempts
		if s.cfg.AlertAfterAttempts > 0 && attempts == s.cfg.AlertAfterAttempts {
			u.emit(events.EventDispatchFailing, current.ItemID, domain.SystemActor(), events.ScheduledPayload{
				ScheduledMessageID: current.ID,
				ScheduledFor:       current.ScheduledFor,
				Attempts:           attempts,
				LastError:          current.LastError,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.RecordDispatch(DispatchFailed)
	if s.cfg.AlertAfterAttempts > 0 && attempts >= s.cfg.AlertAfterAttempts {
		s.metrics.RecordDispatchAlert()
		s.logger.Error("scheduled message keeps failing",
			zap.String("scheduled_message_id", rec.ID),
			zap.String("item_id", rec.ItemID),
			zap.Int("attempts", attempts),
			zap.Error(cause))
	}
	return nil
}

func (s *ScheduleService) lockEditable(ctx context.Context, u *unit, itemID, id string) (*domain.ScheduledMessage, error) {
	rec, err := u.repos.Scheduled.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("scheduled message", map[string]any{"scheduled_message_id": id})
		}
		return nil, err
	}
	if rec.ItemID != itemID {
		// moved by a merge after the owner lookup
		return nil, apperrors.NewConcurrentUpdate(itemID)
	}
	if !rec.Editable(u.now) {
		return nil, apperrors.NewAlreadyDispatching(rec.ID, map[string]any{
			"item_id":             rec.ItemID,
			"scheduled_for":       rec.ScheduledFor,
			"dispatch_started_at": rec.DispatchStartedAt,
		})
	}
	return rec, nil
}

func (s *ScheduleService) ownerOf(ctx context.Context, id string) (string, error) {
	rec, err := s.store.Reader().Scheduled.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.NewNotFound("scheduled message", map[string]any{"scheduled_message_id": id})
		}
		return "", apperrors.MapError(err)
	}
	return rec.ItemID, nil
}

func (s *ScheduleService) batchSize() int {
	if s.cfg.BatchSize <= 0 {
		return 100
	}
	return s.cfg.BatchSize
}

func requireFuture(at, now time.Time) error {
	if !at.After(now) {
		return apperrors.NewInvalidSchedule("scheduled time must be in the future", map[string]any{
			"scheduled_for": at.UTC(),
			"now":           now,
		})
	}
	return nil
}
