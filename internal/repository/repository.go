package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when an item update lost a version race.
	ErrStaleVersion = errors.New("item version changed concurrently")
)

// ItemFilter captures staff search parameters for the item listing.
type ItemFilter struct {
	Viewer        string
	Channels      []domain.Channel
	Statuses      []domain.ItemStatus
	Priorities    []domain.Priority
	AssigneeID    *string
	Unassigned    bool
	CustomerID    *string
	VIP           *bool
	EscalatedOnly bool
	EscalatedToMe bool
	IncludeMerged bool
	SearchTerm    *string
	Limit         int
	Offset        int
}

// ItemSummary is an item row plus the escalation projection for the viewer.
type ItemSummary struct {
	Item               domain.Item
	PendingEscalations int
	EscalatedToViewer  bool
}

// ItemRepository persists tickets and conversations.
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) error
	// Update writes item when the stored version is item.Version-1.
	Update(ctx context.Context, item *domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	// GetForUpdate returns the rows for ids that exist, row-locked until commit.
	GetForUpdate(ctx context.Context, ids []string) ([]domain.Item, error)
	List(ctx context.Context, filter ItemFilter) ([]ItemSummary, error)
	ListSnoozeExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListIdleChats(ctx context.Context, idleBefore time.Time, limit int) ([]string, error)
	ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// MessageRepository manages item thread messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByItem(ctx context.Context, itemID string) ([]domain.Message, error)
	Reassign(ctx context.Context, fromItemIDs []string, toItemID string) (int, error)
}

// ScheduledMessageRepository manages messages waiting for delivery.
type ScheduledMessageRepository interface {
	Create(ctx context.Context, msg *domain.ScheduledMessage) error
	Update(ctx context.Context, msg *domain.ScheduledMessage) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledMessage, error)
	GetForUpdate(ctx context.Context, id string) (*domain.ScheduledMessage, error)
	ListByItem(ctx context.Context, itemID string) ([]domain.ScheduledMessage, error)
	// ListDue returns records whose time and retry delay have passed and that hold no fresh claim.
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.ScheduledMessage, error)
	Reassign(ctx context.Context, fromItemIDs []string, toItemID string) (int, error)
}

// EscalationRepository stores help requests.
type EscalationRepository interface {
	Create(ctx context.Context, esc *domain.Escalation) error
	Update(ctx context.Context, esc *domain.Escalation) error
	GetByID(ctx context.Context, id string) (*domain.Escalation, error)
	ListByItem(ctx context.Context, itemID string) ([]domain.Escalation, error)
	ListPendingForStaff(ctx context.Context, staffID string) ([]domain.Escalation, error)
	Reassign(ctx context.Context, fromItemIDs []string, toItemID string) (int, error)
}

// AuditNoteRepository stores the audit trail.
type AuditNoteRepository interface {
	Create(ctx context.Context, note *domain.AuditNote) error
	ListByItem(ctx context.Context, itemID string) ([]domain.AuditNote, error)
}

// StaffDirectory resolves staff ids for assignment and escalation targets.
type StaffDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}

// Repositories bundles the repositories bound to one transaction or to the read path.
type Repositories struct {
	Items       ItemRepository
	Messages    MessageRepository
	Scheduled   ScheduledMessageRepository
	Escalations EscalationRepository
	Notes       AuditNoteRepository
}

// Store is the engine's persistence boundary. Writes inside WithTx commit atomically or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(Repositories) error) error
	Reader() Repositories
	Staff() StaffRepository
	Ping(ctx context.Context) error
}
