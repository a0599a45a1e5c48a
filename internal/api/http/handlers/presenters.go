package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lifecycle-engine/internal/api/dto"
	"github.com/spec-kit/lifecycle-engine/internal/auth"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	"github.com/spec-kit/lifecycle-engine/internal/service"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

func principal(c *fiber.Ctx) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p, nil
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	p, err := principal(c)
	if err != nil {
		return domain.Actor{}, err
	}
	return p.Actor, nil
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	p, err := principal(c)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required", nil)
	}
	return p.Staff, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return nil
}

// parseInstant reads an optional RFC 3339 timestamp. A malformed value is a schedule error.
func parseInstant(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*raw))
	if err != nil {
		return nil, apperrors.NewInvalidSchedule("malformed time", map[string]any{field: *raw})
	}
	at = at.UTC()
	return &at, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func parseBoolQuery(c *fiber.Ctx, key string) bool {
	parsed, err := strconv.ParseBool(c.Query(key))
	return err == nil && parsed
}

func splitQuery(c *fiber.Ctx, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func itemResponse(item *domain.Item) dto.ItemResponse {
	resp := dto.ItemResponse{
		ID:             item.ID,
		Channel:        item.Channel,
		CustomerID:     item.CustomerID,
		Subject:        item.Subject,
		Status:         item.Status,
		Priority:       item.Priority,
		Sentiment:      item.Sentiment,
		AssignedTo:     item.AssignedTo,
		VIP:            item.VIP,
		ResolutionType: item.ResolutionType,
		MergedFrom:     item.MergedFrom,
		MergedInto:     item.MergedInto,
		Version:        item.Version,
		CreatedAt:      item.CreatedAt,
		LastActivityAt: item.LastActivityAt,
		ResolvedAt:     item.ResolvedAt,
		ClosedAt:       item.ClosedAt,
	}
	if resp.MergedFrom == nil {
		resp.MergedFrom = []string{}
	}
	if item.Snooze != nil {
		resp.Snooze = &dto.SnoozeResponse{
			SnoozedUntil:   item.Snooze.Until,
			Reason:         item.Snooze.Reason,
			PreviousStatus: item.Snooze.PreviousStatus,
		}
	}
	return resp
}

func itemSummary(row *repository.ItemSummary) dto.ItemSummary {
	return dto.ItemSummary{
		ItemResponse:       itemResponse(&row.Item),
		HasEscalation:      row.PendingEscalations > 0,
		EscalatedToMe:      row.EscalatedToViewer,
		PendingEscalations: row.PendingEscalations,
	}
}

func itemDetail(detail *service.ItemDetail) dto.ItemDetailResponse {
	resp := dto.ItemDetailResponse{
		ItemResponse: itemResponse(&detail.Item),
		Messages:     make([]dto.MessageResponse, 0, len(detail.Messages)),
		History:      make([]dto.AuditNoteResponse, 0, len(detail.Notes)),
		Escalations:  escalationResponses(detail.Escalations),
		Scheduled:    scheduledResponses(detail.Scheduled),
	}
	for i := range detail.Messages {
		resp.Messages = append(resp.Messages, messageResponse(&detail.Messages[i]))
	}
	for _, note := range detail.Notes {
		resp.History = append(resp.History, dto.AuditNoteResponse{
			ID:        note.ID,
			Kind:      note.Kind,
			ActorType: note.ActorType,
			ActorID:   note.ActorID,
			Content:   note.Content,
			OldValue:  note.OldValue,
			NewValue:  note.NewValue,
			CreatedAt: note.CreatedAt,
		})
	}
	return resp
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:           msg.ID,
		ItemID:       msg.ItemID,
		SenderType:   msg.SenderType,
		SenderID:     msg.SenderID,
		Content:      msg.Content,
		WasScheduled: msg.WasScheduled,
		CreatedAt:    msg.CreatedAt,
	}
}

func escalationResponse(esc *domain.Escalation) dto.EscalationResponse {
	return dto.EscalationResponse{
		ID:             esc.ID,
		ItemID:         esc.ItemID,
		RaisedBy:       esc.RaisedBy,
		TargetStaffIDs: esc.TargetStaffIDs,
		Reason:         esc.Reason,
		Status:         esc.Status,
		ResolvedBy:     esc.ResolvedBy,
		ResolvedAt:     esc.ResolvedAt,
		CreatedAt:      esc.CreatedAt,
	}
}

func escalationResponses(list []domain.Escalation) []dto.EscalationResponse {
	resp := make([]dto.EscalationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, escalationResponse(&list[i]))
	}
	return resp
}

func scheduledResponse(rec *domain.ScheduledMessage) dto.ScheduledMessageResponse {
	return dto.ScheduledMessageResponse{
		ID:            rec.ID,
		ItemID:        rec.ItemID,
		Content:       rec.Content,
		ScheduledFor:  rec.ScheduledFor,
		CreatedBy:     rec.CreatedBy,
		Attempts:      rec.Attempts,
		NextAttemptAt: rec.NextAttemptAt,
		LastError:     rec.LastError,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func scheduledResponses(list []domain.ScheduledMessage) []dto.ScheduledMessageResponse {
	resp := make([]dto.ScheduledMessageResponse, 0, len(list))
	for i := range list {
		resp = append(resp, scheduledResponse(&list[i]))
	}
	return resp
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:        staff.ID,
		FirstName: staff.FirstName,
		LastName:  staff.LastName,
		Email:     staff.Email,
		Role:      staff.Role,
		Active:    staff.Active,
		CreatedAt: staff.CreatedAt,
		UpdatedAt: staff.UpdatedAt,
	}
}

func errorBody(err error) *dto.ErrorBody {
	domainErr := apperrors.ToDomainError(err)
	return &dto.ErrorBody{Code: domainErr.Code, Message: domainErr.Message, Details: domainErr.Details}
}
