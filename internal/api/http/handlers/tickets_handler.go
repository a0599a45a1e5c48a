package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lifecycle-engine/internal/api/dto"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/service"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// TicketsHandler serves the item endpoints shared by tickets and chats.
type TicketsHandler struct {
	lifecycle   *service.LifecycleService
	assignment  *service.AssignmentService
	escalations *service.EscalationService
	schedule    *service.ScheduleService
	merge       *service.MergeService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(
	lifecycle *service.LifecycleService,
	assignment *service.AssignmentService,
	escalations *service.EscalationService,
	schedule *service.ScheduleService,
	merge *service.MergeService,
) *TicketsHandler {
	return &TicketsHandler{
		lifecycle:   lifecycle,
		assignment:  assignment,
		escalations: escalations,
		schedule:    schedule,
		merge:       merge,
	}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	item, err := h.lifecycle.Create(c.UserContext(), actor, service.CreateItemInput{
		Channel:        req.Channel,
		CustomerID:     req.CustomerID,
		Subject:        req.Subject,
		Priority:       req.Priority,
		Sentiment:      req.Sentiment,
		VIP:            req.VIP,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": itemResponse(item)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	filter, page, pageSize := parseItemQuery(c, p.Actor.ID)
	rows, err := h.lifecycle.List(c.UserContext(), p.Actor.ID, filter)
	if err != nil {
		return err
	}
	items := make([]dto.ItemSummary, 0, len(rows))
	for i := range rows {
		items = append(items, itemSummary(&rows[i]))
	}
	return c.JSON(fiber.Map{"data": items, "meta": fiber.Map{"page": page, "page_size": pageSize}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemDetail(detail)})
}

// PostMessage POST /tickets/:id/messages.
func (h *TicketsHandler) PostMessage(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	msg, err := h.lifecycle.PostMessage(c.UserContext(), actor, c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// UpdateStatus PUT /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	item, err := h.lifecycle.UpdateStatus(c.UserContext(), actor, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

// Assign PUT /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	item, err := h.assignment.Assign(c.UserContext(), actor, c.Params("id"), req.AssignedTo, req.Version)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

// BulkAssign POST /tickets/bulk-assign.
func (h *TicketsHandler) BulkAssign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.BulkAssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	results, err := h.assignment.BulkAssign(c.UserContext(), actor, req.TicketIDs, req.AssignedTo)
	if err != nil {
		return err
	}
	resp := make([]dto.BulkAssignItemResult, 0, len(results))
	succeeded := 0
	for _, res := range results {
		row := dto.BulkAssignItemResult{TicketID: res.ItemID, Success: res.Err == nil}
		if res.Err != nil {
			row.Error = errorBody(res.Err)
		} else {
			succeeded++
			item := itemResponse(res.Item)
			row.Item = &item
		}
		resp = append(resp, row)
	}
	return c.JSON(fiber.Map{"data": resp, "meta": fiber.Map{"total": len(resp), "succeeded": succeeded}})
}

// Snooze POST /tickets/:id/snooze.
func (h *TicketsHandler) Snooze(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SnoozeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	until, err := parseInstant("snoozed_until", req.SnoozedUntil)
	if err != nil {
		return err
	}
	item, err := h.lifecycle.Snooze(c.UserContext(), actor, c.Params("id"), service.SnoozeInput{
		Until:  until,
		Preset: req.Preset,
		Reason: req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

// Unsnooze POST /tickets/:id/unsnooze.
func (h *TicketsHandler) Unsnooze(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	item, err := h.lifecycle.Unsnooze(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

// SnoozePresets GET /snooze-presets.
func (h *TicketsHandler) SnoozePresets(c *fiber.Ctx) error {
	presets := h.lifecycle.SnoozePresets()
	resp := make([]dto.SnoozePresetResponse, 0, len(presets))
	for _, p := range presets {
		resp = append(resp, dto.SnoozePresetResponse{Key: p.Key, Label: p.Label, SnoozedUntil: p.Until})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	esc, err := h.escalations.Raise(c.UserContext(), actor, c.Params("id"), req.StaffIDs, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": escalationResponse(esc)})
}

// ResolveEscalation POST /tickets/:id/resolve-escalation.
func (h *TicketsHandler) ResolveEscalation(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ResolveEscalationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.EscalationID) == "" {
		return apperrors.NewValidationError("escalationId required", nil)
	}
	esc, err := h.escalations.Resolve(c.UserContext(), actor, c.Params("id"), req.EscalationID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(esc)})
}

// Mentions GET /mentions.
func (h *TicketsHandler) Mentions(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	list, err := h.escalations.Mentions(c.UserContext(), staff.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponses(list)})
}

// ScheduleReply POST /tickets/:id/schedule-reply.
func (h *TicketsHandler) ScheduleReply(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ScheduleReplyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.ScheduledFor == nil {
		return apperrors.NewValidationError("scheduledFor required", nil)
	}
	at, err := parseInstant("scheduled_for", req.ScheduledFor)
	if err != nil {
		return err
	}
	rec, err := h.schedule.Schedule(c.UserContext(), actor, c.Params("id"), req.Content, *at)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": scheduledResponse(rec)})
}

// ListScheduled GET /tickets/:id/scheduled-messages.
func (h *TicketsHandler) ListScheduled(c *fiber.Ctx) error {
	list, err := h.schedule.ListForItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": scheduledResponses(list)})
}

// Merge POST /tickets/:id/merge.
func (h *TicketsHandler) Merge(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.MergeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	item, err := h.merge.Merge(c.UserContext(), actor, c.Params("id"), req.SecondaryTicketIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": itemResponse(item)})
}

// parseItemQuery maps query parameters onto a list filter. assigned_to accepts
// a staff id, "me" or "unassigned".
func parseItemQuery(c *fiber.Ctx, viewer string) (service.ItemListFilter, int, int) {
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}
	filter := service.ItemListFilter{
		EscalatedOnly: parseBoolQuery(c, "has_escalation"),
		EscalatedToMe: parseBoolQuery(c, "escalated_to_me"),
		Limit:         pageSize,
		Offset:        (page - 1) * pageSize,
	}
	for _, v := range splitQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, domain.ItemStatus(v))
	}
	for _, v := range splitQuery(c, "channel") {
		filter.Channels = append(filter.Channels, domain.Channel(v))
	}
	for _, v := range splitQuery(c, "priority") {
		filter.Priorities = append(filter.Priorities, domain.Priority(v))
	}
	switch assignee := c.Query("assigned_to"); assignee {
	case "":
	case "unassigned":
		filter.Unassigned = true
	case "me":
		filter.AssigneeID = &viewer
	default:
		filter.AssigneeID = &assignee
	}
	if customer := c.Query("customer_id"); customer != "" {
		filter.CustomerID = &customer
	}
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		filter.SearchTerm = &term
	}
	return filter, page, pageSize
}
