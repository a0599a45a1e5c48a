package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// EscalationService raises and resolves help requests. Escalations never touch item status
// or ownership.
type EscalationService struct {
	core
	staff repository.StaffDirectory
}

// NewEscalationService constructs the service.
func NewEscalationService(deps Dependencies, staff repository.StaffDirectory) *EscalationService {
	c := newCore(deps)
	if staff == nil && c.store != nil {
		staff = c.store.Staff()
	}
	return &EscalationService{core: c, staff: staff}
}

// Raise records a pending escalation and notifies every target.
func (s *EscalationService) Raise(ctx context.Context, actor domain.Actor, itemID string, targets []string, reason string) (*domain.Escalation, error) {
	targets = dedupe(targets)
	if len(targets) == 0 {
		return nil, apperrors.NewValidationError("at least one staff id is required", nil)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("reason is required", nil)
	}
	for _, id := range targets {
		if err := s.requireActiveStaff(ctx, id); err != nil {
			return nil, err
		}
	}

	var esc domain.Escalation
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Frozen() {
			return apperrors.NewItemFrozen(item.ID, *item.MergedInto)
		}
		esc = domain.Escalation{
			ID:             uuid.NewString(),
			ItemID:         item.ID,
			RaisedBy:       actor.ID,
			TargetStaffIDs: targets,
			Reason:         reason,
			Status:         domain.EscalationPending,
			CreatedAt:      u.now,
		}
		if err := u.repos.Escalations.Create(ctx, &esc); err != nil {
			return err
		}
		if err := u.addNote(ctx, domain.AuditNote{
			ItemID:    item.ID,
			Kind:      domain.NoteEscalation,
			ActorType: actor.Type,
			ActorID:   actor.IDPtr(),
			Content:   fmt.Sprintf("Escalated to %s. Reason: %s", strings.Join(targets, ", "), reason),
			NewValue:  map[string]any{"escalation_id": esc.ID, "target_staff_ids": targets},
		}); err != nil {
			return err
		}
		for _, target := range targets {
			u.emit(events.EventEscalationRaised, item.ID, actor, events.EscalationPayload{
				EscalationID: esc.ID,
				Targets:      targets,
				Recipient:    target,
				Reason:       reason,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &esc, nil
}

// Resolve marks a pending escalation resolved. Only a target may resolve it; resolving an
// already resolved escalation returns the stored record unchanged.
func (s *EscalationService) Resolve(ctx context.Context, actor domain.Actor, itemID, escalationID string) (*domain.Escalation, error) {
	var result domain.Escalation
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		esc, err := u.repos.Escalations.GetByID(ctx, escalationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("escalation", map[string]any{"escalation_id": escalationID})
			}
			return err
		}
		if esc.ItemID != item.ID {
			return apperrors.NewNotFound("escalation", map[string]any{"escalation_id": escalationID, "item_id": itemID})
		}
		if esc.Status == domain.EscalationResolved {
			result = *esc
			return nil
		}
		if !esc.Targets(actor.ID) {
			return apperrors.NewForbidden("only an escalation target can resolve it", map[string]any{
				"escalation_id":    esc.ID,
				"target_staff_ids": esc.TargetStaffIDs,
			})
		}
		resolver := actor.ID
		resolvedAt := u.now
		esc.Status = domain.EscalationResolved
		esc.ResolvedBy = &resolver
		esc.ResolvedAt = &resolvedAt
		if err := u.repos.Escalations.Update(ctx, esc); err != nil {
			return err
		}
		if err := u.addNote(ctx, domain.AuditNote{
			ItemID:    item.ID,
			Kind:      domain.NoteEscalation,
			ActorType: actor.Type,
			ActorID:   actor.IDPtr(),
			Content:   "Escalation resolved by " + resolver,
			OldValue:  map[string]any{"status": domain.EscalationPending},
			NewValue:  map[string]any{"status": domain.EscalationResolved, "escalation_id": esc.ID},
		}); err != nil {
			return err
		}
		u.emit(events.EventEscalationResolved, item.ID, actor, events.EscalationPayload{
			EscalationID: esc.ID,
			Targets:      esc.TargetStaffIDs,
			Recipient:    esc.RaisedBy,
		})
		result = *esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListForItem returns every escalation raised on an item, newest first.
func (s *EscalationService) ListForItem(ctx context.Context, itemID string) ([]domain.Escalation, error) {
	if _, err := s.getItem(ctx, itemID); err != nil {
		return nil, err
	}
	list, err := s.store.Reader().Escalations.ListByItem(ctx, itemID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Mentions returns pending escalations targeting staffID.
func (s *EscalationService) Mentions(ctx context.Context, staffID string) ([]domain.Escalation, error) {
	list, err := s.store.Reader().Escalations.ListPendingForStaff(ctx, staffID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

func (s *EscalationService) requireActiveStaff(ctx context.Context, id string) error {
	if s.staff == nil {
		return apperrors.NewNotFound("staff", map[string]any{"staff_id": id})
	}
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("staff", map[string]any{"staff_id": id})
		}
		return apperrors.MapError(err)
	}
	if !member.Active {
		return apperrors.NewValidationError("escalation target is inactive", map[string]any{"staff_id": id})
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
