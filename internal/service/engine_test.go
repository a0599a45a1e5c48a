package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/clock"
	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/observability"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	"github.com/spec-kit/lifecycle-engine/internal/repository/memory"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

const testAIAgent = "ai-agent-001"

// Wednesday.
var testStart = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEngine struct {
	store       *memory.Store
	clock       *clock.Fake
	events      *eventLog
	metrics     *observability.Metrics
	lifecycle   *LifecycleService
	assignment  *AssignmentService
	escalations *EscalationService
	merges      *MergeService
	schedule    *ScheduleService
}

type engineOption func(*Dependencies, *Deliverer, *config.SchedulerConfig)

func withStore(store repository.Store) engineOption {
	return func(d *Dependencies, _ *Deliverer, _ *config.SchedulerConfig) { d.Store = store }
}

func withDeliverer(del Deliverer) engineOption {
	return func(_ *Dependencies, out *Deliverer, _ *config.SchedulerConfig) { *out = del }
}

func newTestEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()
	staff := memory.NewStaffDirectory(
		domain.StaffMember{ID: "S1", FirstName: "Sam", Email: "sam@example.com", Role: domain.StaffRoleAgent, Active: true},
		domain.StaffMember{ID: "S2", FirstName: "Kim", Email: "kim@example.com", Role: domain.StaffRoleAgent, Active: true},
		domain.StaffMember{ID: "S3", FirstName: "Old", Email: "old@example.com", Role: domain.StaffRoleAgent, Active: false},
		domain.StaffMember{ID: "ADM", FirstName: "Ada", Email: "ada@example.com", Role: domain.StaffRoleAdmin, Active: true},
	)
	store := memory.NewStore(staff)
	fake := clock.NewFake(testStart)
	log := &eventLog{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.SubscribeAll(log.record)
	metrics := observability.NewMetrics()

	deps := Dependencies{
		Store:      store,
		Machine:    lifecycle.NewMachine(testAIAgent),
		Clock:      fake,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}
	var deliverer Deliverer
	sched := config.SchedulerConfig{
		BatchSize:          50,
		BackoffBaseSeconds: 60,
		BackoffMaxSeconds:  3600,
		AlertAfterAttempts: 2,
		ClaimTTLSeconds:    300,
	}
	for _, opt := range opts {
		opt(&deps, &deliverer, &sched)
	}

	return &testEngine{
		store:       store,
		clock:       fake,
		events:      log,
		metrics:     metrics,
		lifecycle:   NewLifecycleService(deps, NewSnoozePresets(time.UTC)),
		assignment:  NewAssignmentService(deps, staff),
		escalations: NewEscalationService(deps, staff),
		merges:      NewMergeService(deps),
		schedule:    NewScheduleService(deps, deliverer, sched),
	}
}

func (e *testEngine) createTicket(t *testing.T, customer string) *domain.Item {
	t.Helper()
	item, err := e.lifecycle.Create(context.Background(), domain.Actor{Type: domain.ActorCustomer, ID: customer}, CreateItemInput{
		Channel:    domain.ChannelEmail,
		CustomerID: customer,
		Subject:    "Order question",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return item
}

func (e *testEngine) createChat(t *testing.T, customer string) *domain.Item {
	t.Helper()
	item, err := e.lifecycle.Create(context.Background(), domain.Actor{Type: domain.ActorCustomer, ID: customer}, CreateItemInput{
		Channel:        domain.ChannelChat,
		CustomerID:     customer,
		InitialMessage: "hello",
	})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return item
}

func (e *testEngine) item(t *testing.T, id string) *domain.Item {
	t.Helper()
	item, err := e.store.Reader().Items.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item
}

func (e *testEngine) messages(t *testing.T, id string) []domain.Message {
	t.Helper()
	msgs, err := e.store.Reader().Messages.ListByItem(context.Background(), id)
	if err != nil {
		t.Fatalf("list messages %s: %v", id, err)
	}
	return msgs
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func strPtr(s string) *string { return &s }
