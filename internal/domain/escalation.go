package domain

import "time"

// EscalationStatus is the resolution state of a help request.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationResolved EscalationStatus = "resolved"
)

// Escalation is an advisory help request raised against an item.
type Escalation struct {
	ID             string
	ItemID         string
	RaisedBy       string
	TargetStaffIDs []string
	Reason         string
	Status         EscalationStatus
	ResolvedBy     *string
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

// Targets reports whether staffID is one of the escalation targets.
func (e *Escalation) Targets(staffID string) bool {
	for _, id := range e.TargetStaffIDs {
		if id == staffID {
			return true
		}
	}
	return false
}
