package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// AssignmentService resolves item ownership.
type AssignmentService struct {
	core
	staff repository.StaffDirectory
}

// BulkAssignResult is the outcome for one item of a bulk request.
type BulkAssignResult struct {
	ItemID string
	Item   *domain.Item
	Err    error
}

// NewAssignmentService creates the service. staff defaults to the store's directory.
func NewAssignmentService(deps Dependencies, staff repository.StaffDirectory) *AssignmentService {
	c := newCore(deps)
	if staff == nil && c.store != nil {
		staff = c.store.Staff()
	}
	return &AssignmentService{core: c, staff: staff}
}

// Assign sets the owner of an item. A nil owner unassigns a ticket. When expectedVersion is
// set and the item has moved on, the request fails instead of overwriting.
func (s *AssignmentService) Assign(ctx context.Context, actor domain.Actor, itemID string, owner *string, expectedVersion *int64) (*domain.Item, error) {
	owner = normalizeOwner(owner)
	if err := s.validateOwner(ctx, owner); err != nil {
		return nil, err
	}
	return s.assign(ctx, actor, itemID, lifecycle.Action{Kind: lifecycle.ActionAssign, Owner: owner}, expectedVersion)
}

// Reassign hands a conversation to the AI agent or a staff member with an optional reason.
func (s *AssignmentService) Reassign(ctx context.Context, actor domain.Actor, itemID string, owner *string, reason string) (*domain.Item, error) {
	owner = normalizeOwner(owner)
	if owner == nil {
		return nil, apperrors.NewValidationError("assign_to is required", nil)
	}
	if err := s.validateOwner(ctx, owner); err != nil {
		return nil, err
	}
	return s.assign(ctx, actor, itemID, lifecycle.Action{
		Kind:   lifecycle.ActionReassign,
		Owner:  owner,
		Reason: strings.TrimSpace(reason),
	}, nil)
}

// BulkAssign assigns each item independently. Failures do not roll back earlier successes.
func (s *AssignmentService) BulkAssign(ctx context.Context, actor domain.Actor, itemIDs []string, owner *string) ([]BulkAssignResult, error) {
	if len(itemIDs) == 0 {
		return nil, apperrors.NewValidationError("ticketIds must not be empty", nil)
	}
	owner = normalizeOwner(owner)
	if err := s.validateOwner(ctx, owner); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(itemIDs))
	results := make([]BulkAssignResult, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		item, err := s.assign(ctx, actor, id, lifecycle.Action{Kind: lifecycle.ActionAssign, Owner: owner}, nil)
		if err != nil {
			s.logger.Debug("bulk assign item failed", zap.String("item_id", id), zap.Error(err))
		}
		results = append(results, BulkAssignResult{ItemID: id, Item: item, Err: err})
	}
	return results, nil
}

func (s *AssignmentService) assign(ctx context.Context, actor domain.Actor, itemID string, action lifecycle.Action, expectedVersion *int64) (*domain.Item, error) {
	var result domain.Item
	err := s.mutate(ctx, []string{itemID}, func(ctx context.Context, u *unit) error {
		item, err := u.loadItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Frozen() {
			return apperrors.NewItemFrozen(item.ID, *item.MergedInto)
		}
		if expectedVersion != nil && *expectedVersion != item.Version {
			return apperrors.NewAssignmentError("item was changed since it was read", map[string]any{
				"item_id":          item.ID,
				"expected_version": *expectedVersion,
				"current_version":  item.Version,
				"assigned_to":      item.AssignedTo,
			})
		}
		result, err = s.apply(ctx, u, item, action, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *AssignmentService) validateOwner(ctx context.Context, owner *string) error {
	if owner == nil || s.machine.IsAI(*owner) {
		return nil
	}
	if s.staff == nil {
		return apperrors.NewNotFound("staff", map[string]any{"staff_id": *owner})
	}
	member, err := s.staff.GetByID(ctx, *owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("staff", map[string]any{"staff_id": *owner})
		}
		return apperrors.MapError(err)
	}
	if !member.Active {
		return apperrors.NewAssignmentError("assignee is inactive", map[string]any{"staff_id": *owner})
	}
	return nil
}

func normalizeOwner(owner *string) *string {
	if owner == nil {
		return nil
	}
	v := strings.TrimSpace(*owner)
	if v == "" {
		return nil
	}
	return &v
}
