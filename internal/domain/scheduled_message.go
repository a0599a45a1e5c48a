package domain

import "time"

// ScheduledMessage is staff-authored content held for delayed delivery.
type ScheduledMessage struct {
	ID                string
	ItemID            string
	Content           string
	ScheduledFor      time.Time
	CreatedBy         string
	Attempts          int
	NextAttemptAt     *time.Time
	LastError         string
	DispatchStartedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Editable reports whether staff may still change or remove the record at now.
func (m *ScheduledMessage) Editable(now time.Time) bool {
	return m.DispatchStartedAt == nil && now.Before(m.ScheduledFor)
}

// Claimed reports whether a dispatch claim newer than staleBefore is held.
func (m *ScheduledMessage) Claimed(staleBefore time.Time) bool {
	return m.DispatchStartedAt != nil && m.DispatchStartedAt.After(staleBefore)
}
