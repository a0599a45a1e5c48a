package domain

import "time"

// Channel identifies where a support item originated.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelChat      Channel = "chat"
	ChannelPhone     Channel = "phone"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelFacebook  Channel = "facebook"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelChat, ChannelPhone, ChannelWhatsApp, ChannelInstagram, ChannelFacebook:
		return true
	}
	return false
}

// IsChat reports whether the channel follows the conversation lifecycle.
func (c Channel) IsChat() bool {
	return c == ChannelChat
}

// ItemStatus enumerates lifecycle states for tickets and conversations.
type ItemStatus string

// Ticket statuses.
const (
	StatusOpen       ItemStatus = "open"
	StatusInProgress ItemStatus = "in-progress"
	StatusPending    ItemStatus = "pending"
	StatusSnoozed    ItemStatus = "snoozed"
	StatusResolved   ItemStatus = "resolved"
	StatusClosed     ItemStatus = "closed"
)

// Conversation statuses. Closed is shared with tickets.
const (
	StatusAIHandling    ItemStatus = "ai_handling"
	StatusQueued        ItemStatus = "queued"
	StatusAssigned      ItemStatus = "assigned"
	StatusStaffHandling ItemStatus = "staff_handling"
)

// Priority enumerates urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical:
		return true
	}
	return false
}

// Sentiment is the detected customer mood.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentAngry    Sentiment = "angry"
)

// Valid reports whether s is a known sentiment.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentAngry:
		return true
	}
	return false
}

// ResolutionType records how a conversation was closed.
type ResolutionType string

const (
	ResolutionAIResolved     ResolutionType = "ai_resolved"
	ResolutionStaffResolved  ResolutionType = "staff_resolved"
	ResolutionInactiveClosed ResolutionType = "inactive_closed"
)

// SnoozeState is present while an item is snoozed.
type SnoozeState struct {
	Until          time.Time
	Reason         string
	PreviousStatus ItemStatus
}

// Item is the aggregate for a ticket or chat conversation.
type Item struct {
	ID             string
	Channel        Channel
	CustomerID     string
	Subject        string
	Status         ItemStatus
	Priority       Priority
	Sentiment      Sentiment
	AssignedTo     *string
	VIP            bool
	Snooze         *SnoozeState
	ResolutionType *ResolutionType
	MergedFrom     []string
	MergedInto     *string
	Version        int64
	CreatedAt      time.Time
	LastActivityAt time.Time
	ResolvedAt     *time.Time
	ClosedAt       *time.Time
}

// Frozen reports whether the item was absorbed by a merge.
func (i *Item) Frozen() bool {
	return i.MergedInto != nil
}

// Terminal reports whether the item is in a terminal status.
func (i *Item) Terminal() bool {
	return i.Status == StatusClosed || (!i.Channel.IsChat() && i.Status == StatusResolved)
}

// OwnerOrEmpty returns the current owner id or "".
func (i *Item) OwnerOrEmpty() string {
	if i.AssignedTo == nil {
		return ""
	}
	return *i.AssignedTo
}

// Clone returns a deep copy safe to mutate.
func (i Item) Clone() Item {
	out := i
	if i.AssignedTo != nil {
		v := *i.AssignedTo
		out.AssignedTo = &v
	}
	if i.Snooze != nil {
		s := *i.Snooze
		out.Snooze = &s
	}
	if i.ResolutionType != nil {
		r := *i.ResolutionType
		out.ResolutionType = &r
	}
	if i.MergedInto != nil {
		m := *i.MergedInto
		out.MergedInto = &m
	}
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		out.ResolvedAt = &t
	}
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		out.ClosedAt = &t
	}
	out.MergedFrom = append([]string(nil), i.MergedFrom...)
	return out
}
