package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"

	"github.com/spec-kit/lifecycle-engine/internal/api/dto"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/service"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// ChatHandler serves the conversation handoff endpoints.
type ChatHandler struct {
	lifecycle  *service.LifecycleService
	assignment *service.AssignmentService
}

// NewChatHandler constructs handler.
func NewChatHandler(lifecycle *service.LifecycleService, assignment *service.AssignmentService) *ChatHandler {
	return &ChatHandler{lifecycle: lifecycle, assignment: assignment}
}

// GetConversation GET /chat/conversation/:id.
func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	detail, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if !detail.Item.Channel.IsChat() {
		return apperrors.NewNotFound("conversation", map[string]any{"id": detail.Item.ID})
	}
	return c.JSON(fiber.Map{"data": itemDetail(detail)})
}

// Queue POST /chat/conversation/:id/queue.
func (h *ChatHandler) Queue(c *fiber.Ctx) error {
	return h.handoff(c, h.lifecycle.Queue)
}

// Takeover POST /chat/conversation/:id/takeover.
func (h *ChatHandler) Takeover(c *fiber.Ctx) error {
	return h.handoff(c, h.lifecycle.Takeover)
}

// Pickup POST /chat/conversation/:id/pickup.
func (h *ChatHandler) Pickup(c *fiber.Ctx) error {
	return h.handoff(c, h.lifecycle.Pickup)
}

// Reassign POST /chat/conversation/:id/reassign.
func (h *ChatHandler) Reassign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	item, err := h.assignment.Reassign(c.UserContext(), actor, c.Params("id"), req.AssignTo, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

// Close POST /chat/conversation/:id/close. The body is optional; an absent
// resolution_type closes the conversation as inactive.
func (h *ChatHandler) Close(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	resolution := ""
	if body := c.Body(); len(body) > 0 {
		if !gjson.ValidBytes(body) {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		resolution = gjson.GetBytes(body, "resolution_type").String()
	}
	item, err := h.lifecycle.Close(c.UserContext(), actor, c.Params("id"), resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

func (h *ChatHandler) handoff(c *fiber.Ctx, op func(ctx context.Context, actor domain.Actor, id string) (*domain.Item, error)) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	item, err := op(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}
