package events

import (
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventItemCreated          EventType = "item_created"
	EventItemStatusChanged    EventType = "item_status_changed"
	EventItemAssigned         EventType = "item_assigned"
	EventItemSnoozed          EventType = "item_snoozed"
	EventItemUnsnoozed        EventType = "item_unsnoozed"
	EventItemsMerged          EventType = "items_merged"
	EventMessageAdded         EventType = "message_added"
	EventEscalationRaised     EventType = "escalation_raised"
	EventEscalationResolved   EventType = "escalation_resolved"
	EventScheduledCreated     EventType = "scheduled_message_created"
	EventScheduledUpdated     EventType = "scheduled_message_updated"
	EventScheduledCancelled   EventType = "scheduled_message_cancelled"
	EventScheduledDispatched  EventType = "scheduled_message_dispatched"
	EventDispatchFailing      EventType = "dispatch_failing"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   *string          `json:"id,omitempty"`
}

// ActorFrom converts an engine actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{Type: a.Type, ID: a.IDPtr()}
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ItemID    string      `json:"item_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CreatedPayload payload.
type CreatedPayload struct {
	Channel    domain.Channel    `json:"channel"`
	Status     domain.ItemStatus `json:"status"`
	Priority   domain.Priority   `json:"priority"`
	CustomerID string            `json:"customer_id"`
	AssignedTo *string           `json:"assigned_to,omitempty"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus      domain.ItemStatus      `json:"old_status"`
	NewStatus      domain.ItemStatus      `json:"new_status"`
	ResolutionType *domain.ResolutionType `json:"resolution_type,omitempty"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	OldAssignee *string `json:"old_assignee,omitempty"`
	NewAssignee *string `json:"new_assignee,omitempty"`
}

// SnoozedPayload payload.
type SnoozedPayload struct {
	SnoozedUntil time.Time `json:"snoozed_until"`
	Reason       string    `json:"reason,omitempty"`
}

// UnsnoozedPayload payload.
type UnsnoozedPayload struct {
	RestoredStatus domain.ItemStatus `json:"restored_status"`
	Expired        bool              `json:"expired"`
}

// MergedPayload payload.
type MergedPayload struct {
	SecondaryIDs  []string `json:"secondary_ids"`
	MovedMessages int      `json:"moved_messages"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	MessageID    string            `json:"message_id"`
	SenderType   domain.SenderType `json:"sender_type"`
	SenderID     *string           `json:"sender_id,omitempty"`
	WasScheduled bool              `json:"was_scheduled"`
	BodyPreview  string            `json:"body_preview"`
}

// EscalationPayload payload. Recipient is set on per-target notifications.
type EscalationPayload struct {
	EscalationID string   `json:"escalation_id"`
	Targets      []string `json:"targets"`
	Recipient    string   `json:"recipient,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// ScheduledPayload payload.
type ScheduledPayload struct {
	ScheduledMessageID string    `json:"scheduled_message_id"`
	ScheduledFor       time.Time `json:"scheduled_for"`
	Attempts           int       `json:"attempts,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
}
