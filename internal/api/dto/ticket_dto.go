package dto

import (
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

// CreateItemRequest payload for item intake.
type CreateItemRequest struct {
	Channel        domain.Channel   `json:"channel"`
	CustomerID     string           `json:"customerId"`
	Subject        string           `json:"subject"`
	Priority       domain.Priority  `json:"priority"`
	Sentiment      domain.Sentiment `json:"sentiment"`
	VIP            bool             `json:"vip"`
	InitialMessage string           `json:"initialMessage"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.ItemStatus `json:"status"`
}

// AssignRequest payload. A null assignedTo unassigns a ticket.
type AssignRequest struct {
	AssignedTo *string `json:"assignedTo"`
	Version    *int64  `json:"version"`
}

// BulkAssignRequest payload.
type BulkAssignRequest struct {
	TicketIDs  []string `json:"ticketIds"`
	AssignedTo *string  `json:"assignedTo"`
}

// SnoozeRequest payload. Either snoozedUntil or preset is required.
type SnoozeRequest struct {
	SnoozedUntil *string `json:"snoozedUntil"`
	Preset       string  `json:"preset"`
	Reason       string  `json:"reason"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	StaffIDs []string `json:"staffIds"`
	Reason   string   `json:"reason"`
}

// ResolveEscalationRequest payload.
type ResolveEscalationRequest struct {
	EscalationID string `json:"escalationId"`
}

// ScheduleReplyRequest payload.
type ScheduleReplyRequest struct {
	Content      string  `json:"content"`
	ScheduledFor *string `json:"scheduledFor"`
}

// UpdateScheduledMessageRequest payload. Omitted fields stay unchanged.
type UpdateScheduledMessageRequest struct {
	Content      *string `json:"content"`
	ScheduledFor *string `json:"scheduledFor"`
}

// MergeRequest payload.
type MergeRequest struct {
	SecondaryTicketIDs []string `json:"secondaryTicketIds"`
}

// ReassignRequest payload for conversations.
type ReassignRequest struct {
	AssignTo *string `json:"assignTo"`
	Reason   string  `json:"reason"`
}

// SnoozeResponse describes an active snooze.
type SnoozeResponse struct {
	SnoozedUntil   time.Time         `json:"snoozed_until"`
	Reason         string            `json:"reason,omitempty"`
	PreviousStatus domain.ItemStatus `json:"previous_status"`
}

// ItemResponse represents a ticket or conversation.
type ItemResponse struct {
	ID             string                 `json:"id"`
	Channel        domain.Channel         `json:"channel"`
	CustomerID     string                 `json:"customer_id"`
	Subject        string                 `json:"subject"`
	Status         domain.ItemStatus      `json:"status"`
	Priority       domain.Priority        `json:"priority"`
	Sentiment      domain.Sentiment       `json:"sentiment"`
	AssignedTo     *string                `json:"assigned_to"`
	VIP            bool                   `json:"vip"`
	Snooze         *SnoozeResponse        `json:"snooze,omitempty"`
	ResolutionType *domain.ResolutionType `json:"resolution_type,omitempty"`
	MergedFrom     []string               `json:"merged_from"`
	MergedInto     *string                `json:"merged_into"`
	Version        int64                  `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	LastActivityAt time.Time              `json:"last_activity_at"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	ClosedAt       *time.Time             `json:"closed_at,omitempty"`
}

// ItemSummary is a listing row with the caller's escalation flags.
type ItemSummary struct {
	ItemResponse
	HasEscalation      bool `json:"has_escalation"`
	EscalatedToMe      bool `json:"escalated_to_me"`
	PendingEscalations int  `json:"pending_escalations"`
}

// ItemDetailResponse provides full item info.
type ItemDetailResponse struct {
	ItemResponse
	Messages    []MessageResponse          `json:"messages"`
	History     []AuditNoteResponse        `json:"history"`
	Escalations []EscalationResponse       `json:"escalations"`
	Scheduled   []ScheduledMessageResponse `json:"scheduled_messages"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID           string            `json:"id"`
	ItemID       string            `json:"item_id"`
	SenderType   domain.SenderType `json:"sender_type"`
	SenderID     *string           `json:"sender_id"`
	Content      string            `json:"content"`
	WasScheduled bool              `json:"was_scheduled"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AuditNoteResponse represents an audit trail entry.
type AuditNoteResponse struct {
	ID        string           `json:"id"`
	Kind      domain.NoteKind  `json:"kind"`
	ActorType domain.ActorType `json:"actor_type"`
	ActorID   *string          `json:"actor_id"`
	Content   string           `json:"content"`
	OldValue  map[string]any   `json:"old_value,omitempty"`
	NewValue  map[string]any   `json:"new_value,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// EscalationResponse represents a help request.
type EscalationResponse struct {
	ID             string                  `json:"id"`
	ItemID         string                  `json:"item_id"`
	RaisedBy       string                  `json:"raised_by"`
	TargetStaffIDs []string                `json:"target_staff_ids"`
	Reason         string                  `json:"reason"`
	Status         domain.EscalationStatus `json:"status"`
	ResolvedBy     *string                 `json:"resolved_by"`
	ResolvedAt     *time.Time              `json:"resolved_at"`
	CreatedAt      time.Time               `json:"created_at"`
}

// ScheduledMessageResponse represents a pending scheduled reply.
type ScheduledMessageResponse struct {
	ID            string     `json:"id"`
	ItemID        string     `json:"item_id"`
	Content       string     `json:"content"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	CreatedBy     string     `json:"created_by"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SnoozePresetResponse is one preset with its resolved deadline.
type SnoozePresetResponse struct {
	Key          string    `json:"key"`
	Label        string    `json:"label"`
	SnoozedUntil time.Time `json:"snoozed_until"`
}

// BulkAssignItemResult reports the outcome for one id.
type BulkAssignItemResult struct {
	TicketID string        `json:"ticket_id"`
	Success  bool          `json:"success"`
	Item     *ItemResponse `json:"item,omitempty"`
	Error    *ErrorBody    `json:"error,omitempty"`
}

// ErrorBody mirrors the error envelope used by the middleware.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
