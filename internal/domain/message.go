package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderStaff    SenderType = "staff"
	SenderAI       SenderType = "ai"
	SenderSystem   SenderType = "system"
)

// Valid reports whether s is a known sender type.
func (s SenderType) Valid() bool {
	switch s {
	case SenderCustomer, SenderStaff, SenderAI, SenderSystem:
		return true
	}
	return false
}

// Message is an immutable entry in an item's thread. Seq breaks CreatedAt ties.
type Message struct {
	ID           string
	ItemID       string
	SenderType   SenderType
	SenderID     *string
	Content      string
	WasScheduled bool
	Seq          int64
	CreatedAt    time.Time
}

// MessageLess orders messages by creation time, then insertion sequence.
func MessageLess(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}
