package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/clock"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/locking"
	"github.com/spec-kit/lifecycle-engine/internal/observability"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// Dependencies bundles what every engine service needs.
type Dependencies struct {
	Store      repository.Store
	Locker     locking.Locker
	Machine    lifecycle.Machine
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

type core struct {
	store      repository.Store
	locker     locking.Locker
	machine    lifecycle.Machine
	clock      clock.Clock
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func newCore(deps Dependencies) core {
	c := core{
		store:      deps.Store,
		locker:     deps.Locker,
		machine:    deps.Machine,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if c.locker == nil {
		c.locker = locking.NewKeyedMutex()
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *core) now() time.Time {
	return c.clock.Now().UTC()
}

// unit is one locked transaction. Events and transitions are released only after commit.
type unit struct {
	repos       repository.Repositories
	now         time.Time
	events      []events.Event
	transitions [][2]domain.ItemStatus
}

// mutate takes the per-item locks for keys, runs fn in a transaction and publishes the
// collected events once the transaction has committed.
func (c *core) mutate(ctx context.Context, keys []string, fn func(ctx context.Context, u *unit) error) error {
	release, err := c.locker.Acquire(ctx, keys...)
	if err != nil {
		return apperrors.MapError(err)
	}
	defer release()

	var committed *unit
	err = c.store.WithTx(ctx, func(repos repository.Repositories) error {
		u := &unit{repos: repos, now: c.now()}
		if err := fn(ctx, u); err != nil {
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		return translate(err)
	}

	for _, t := range committed.transitions {
		c.metrics.RecordTransition(string(t[0]), string(t[1]))
	}
	c.publish(ctx, committed.events...)
	return nil
}

func translate(err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrStaleVersion):
		return apperrors.NewConcurrentUpdate("")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewInternalError(err)
	}
	return apperrors.MapError(err)
}

// loadItem reads and row-locks one item.
func (u *unit) loadItem(ctx context.Context, id string) (domain.Item, error) {
	items, err := u.repos.Items.GetForUpdate(ctx, []string{id})
	if err != nil {
		return domain.Item{}, err
	}
	if len(items) == 0 {
		return domain.Item{}, apperrors.NewNotFound("item", map[string]any{"item_id": id})
	}
	return items[0], nil
}

// apply runs the state machine and persists the outcome within the unit.
func (c *core) apply(ctx context.Context, u *unit, item domain.Item, action lifecycle.Action, actor domain.Actor) (domain.Item, error) {
	out, err := c.machine.Apply(item, action, actor, u.now)
	if err != nil {
		return item, err
	}
	if !out.Changed {
		return item, nil
	}
	if err := u.repos.Items.Update(ctx, &out.Item); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return item, apperrors.NewConcurrentUpdate(item.ID)
		}
		return item, err
	}
	for i := range out.Notes {
		if err := u.addNote(ctx, out.Notes[i]); err != nil {
			return item, err
		}
	}
	if item.Status != out.Item.Status {
		u.transitions = append(u.transitions, [2]domain.ItemStatus{item.Status, out.Item.Status})
	}
	u.events = append(u.events, out.Events...)
	return out.Item, nil
}

func (u *unit) addNote(ctx context.Context, note domain.AuditNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = u.now
	}
	return u.repos.Notes.Create(ctx, &note)
}

func (u *unit) emit(eventType events.EventType, itemID string, actor domain.Actor, payload any) {
	u.events = append(u.events, events.Event{
		Type:      eventType,
		ItemID:    itemID,
		Actor:     events.ActorFrom(actor),
		Timestamp: u.now,
		Payload:   payload,
	})
}

func (c *core) publish(ctx context.Context, evts ...events.Event) {
	if c.dispatcher == nil {
		return
	}
	for _, event := range evts {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = c.now()
		}
		_ = c.dispatcher.Publish(ctx, event)
	}
}

// getItem reads committed state outside any transaction.
func (c *core) getItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := c.store.Reader().Items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("item", map[string]any{"item_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return item, nil
}

func stringPreview(body string, max int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
