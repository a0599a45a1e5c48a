package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// MergeService folds items from the same customer into one primary item.
type MergeService struct {
	core
}

// NewMergeService constructs the service.
func NewMergeService(deps Dependencies) *MergeService {
	return &MergeService{core: newCore(deps)}
}

// Merge absorbs secondaryIDs into primaryID. Either every secondary is merged or nothing changes.
func (s *MergeService) Merge(ctx context.Context, actor domain.Actor, primaryID string, secondaryIDs []string) (*domain.Item, error) {
	primaryID = strings.TrimSpace(primaryID)
	if err := validateMergeRequest(primaryID, secondaryIDs); err != nil {
		return nil, err
	}
	keys := append([]string{primaryID}, secondaryIDs...)

	var result domain.Item
	err := s.mutate(ctx, keys, func(ctx context.Context, u *unit) error {
		locked, err := u.repos.Items.GetForUpdate(ctx, keys)
		if err != nil {
			return err
		}
		byID := make(map[string]domain.Item, len(locked))
		for _, item := range locked {
			byID[item.ID] = item
		}
		var missing []string
		for _, id := range keys {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return apperrors.NewMergeAborted("items not found", map[string]any{"missing_ids": missing})
		}

		primary := byID[primaryID]
		if primary.Frozen() {
			return apperrors.NewMergeAborted("primary was already merged", map[string]any{
				"item_id":     primary.ID,
				"merged_into": *primary.MergedInto,
			})
		}
		for _, id := range secondaryIDs {
			secondary := byID[id]
			if secondary.Frozen() {
				return apperrors.NewMergeAborted("item was already merged", map[string]any{
					"item_id":     secondary.ID,
					"merged_into": *secondary.MergedInto,
				})
			}
			if secondary.Channel.IsChat() != primary.Channel.IsChat() {
				return apperrors.NewMergeAborted("tickets and conversations cannot be merged", map[string]any{
					"item_id":         secondary.ID,
					"channel":         secondary.Channel,
					"primary_channel": primary.Channel,
				})
			}
			if secondary.CustomerID != primary.CustomerID {
				return apperrors.NewMergeAborted("items belong to different customers", map[string]any{
					"item_id":             secondary.ID,
					"customer_id":         secondary.CustomerID,
					"primary_customer_id": primary.CustomerID,
				})
			}
		}

		merged, err := s.apply(ctx, u, primary, lifecycle.Action{Kind: lifecycle.ActionAttachMerged, Absorbed: secondaryIDs}, actor)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
				return apperrors.NewMergeAborted("primary cannot absorb items", map[string]any{
					"item_id":        primary.ID,
					"current_status": primary.Status,
				})
			}
			return err
		}

		moved, err := u.repos.Messages.Reassign(ctx, secondaryIDs, primaryID)
		if err != nil {
			return err
		}
		if _, err := u.repos.Scheduled.Reassign(ctx, secondaryIDs, primaryID); err != nil {
			return err
		}
		if _, err := u.repos.Escalations.Reassign(ctx, secondaryIDs, primaryID); err != nil {
			return err
		}
		for _, id := range secondaryIDs {
			if _, err := s.apply(ctx, u, byID[id], lifecycle.Action{Kind: lifecycle.ActionAbsorb, MergeInto: primaryID}, actor); err != nil {
				return err
			}
		}

		u.emit(events.EventItemsMerged, primaryID, actor, events.MergedPayload{
			SecondaryIDs:  append([]string(nil), secondaryIDs...),
			MovedMessages: moved,
		})
		result = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("items merged",
		zap.String("item_id", primaryID),
		zap.Strings("secondary_ids", secondaryIDs))
	return &result, nil
}

func validateMergeRequest(primaryID string, secondaryIDs []string) error {
	if primaryID == "" {
		return apperrors.NewValidationError("primary item id is required", nil)
	}
	if len(secondaryIDs) == 0 {
		return apperrors.NewMergeAborted("no secondary items given", nil)
	}
	seen := make(map[string]struct{}, len(secondaryIDs))
	for _, id := range secondaryIDs {
		if id == primaryID {
			return apperrors.NewMergeAborted("an item cannot be merged into itself", map[string]any{"item_id": id})
		}
		if strings.TrimSpace(id) == "" {
			return apperrors.NewMergeAborted("empty secondary item id", nil)
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewMergeAborted("duplicate secondary item", map[string]any{"item_id": id})
		}
		seen[id] = struct{}{}
	}
	return nil
}
