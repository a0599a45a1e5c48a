package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lifecycle-engine/internal/api/dto"
	"github.com/spec-kit/lifecycle-engine/internal/service"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// ScheduledMessagesHandler edits and cancels pending scheduled replies.
type ScheduledMessagesHandler struct {
	schedule *service.ScheduleService
}

// NewScheduledMessagesHandler constructs handler.
func NewScheduledMessagesHandler(schedule *service.ScheduleService) *ScheduledMessagesHandler {
	return &ScheduledMessagesHandler{schedule: schedule}
}

// Update PUT /scheduled-messages/:id.
func (h *ScheduledMessagesHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateScheduledMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Content == nil && req.ScheduledFor == nil {
		return apperrors.NewValidationError("content or scheduledFor required", nil)
	}
	at, err := parseInstant("scheduled_for", req.ScheduledFor)
	if err != nil {
		return err
	}
	rec, err := h.schedule.Reschedule(c.UserContext(), actor, c.Params("id"), req.Content, at)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": scheduledResponse(rec)})
}

// Cancel DELETE /scheduled-messages/:id.
func (h *ScheduledMessagesHandler) Cancel(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.schedule.Cancel(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
