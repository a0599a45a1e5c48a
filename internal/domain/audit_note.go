package domain

import "time"

// NoteKind captures what an audit note records.
type NoteKind string

const (
	NoteStatus     NoteKind = "status"
	NoteAssignment NoteKind = "assignment"
	NoteSnooze     NoteKind = "snooze"
	NoteEscalation NoteKind = "escalation"
	NoteMerge      NoteKind = "merge"
	NoteSchedule   NoteKind = "schedule"
	NoteDispatch   NoteKind = "dispatch"
)

// AuditNote is an immutable audit trail entry.
type AuditNote struct {
	ID        string
	ItemID    string
	Kind      NoteKind
	ActorType ActorType
	ActorID   *string
	Content   string
	OldValue  map[string]any
	NewValue  map[string]any
	CreatedAt time.Time
}
