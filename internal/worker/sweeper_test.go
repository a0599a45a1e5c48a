package worker

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/clock"
	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/observability"
	"github.com/spec-kit/lifecycle-engine/internal/repository/memory"
	"github.com/spec-kit/lifecycle-engine/internal/service"
)

type sweepFixture struct {
	store     *memory.Store
	clock     *clock.Fake
	metrics   *observability.Metrics
	lifecycle *service.LifecycleService
	schedule  *service.ScheduleService
	sweeper   *Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	staff := memory.NewStaffDirectory(domain.StaffMember{ID: "S1", FirstName: "Sam", Role: domain.StaffRoleAgent, Active: true})
	store := memory.NewStore(staff)
	fake := clock.NewFake(time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))
	metrics := observability.NewMetrics()
	deps := service.Dependencies{
		Store:      store,
		Machine:    lifecycle.NewMachine("ai-agent-001"),
		Clock:      fake,
		Dispatcher: events.NewInMemoryDispatcher(nil),
		Metrics:    metrics,
	}
	sched := config.SchedulerConfig{SweepIntervalSeconds: 30, BatchSize: 10, BackoffBaseSeconds: 30, BackoffMaxSeconds: 600, AlertAfterAttempts: 3, ClaimTTLSeconds: 120}
	lc := service.NewLifecycleService(deps, service.NewSnoozePresets(time.UTC))
	sc := service.NewScheduleService(deps, nil, sched)
	sw := NewSweeper(SweeperDependencies{
		Lifecycle: lc,
		Schedule:  sc,
		Store:     store,
		Clock:     fake,
		Metrics:   metrics,
	}, sched, config.EngineConfig{ChatInactivityMinutes: 30, TicketAutoCloseHours: 24})
	return &sweepFixture{store: store, clock: fake, metrics: metrics, lifecycle: lc, schedule: sc, sweeper: sw}
}

func (f *sweepFixture) create(t *testing.T, channel domain.Channel) *domain.Item {
	t.Helper()
	item, err := f.lifecycle.Create(context.Background(), domain.Actor{Type: domain.ActorCustomer, ID: "C1"}, service.CreateItemInput{
		Channel:        channel,
		CustomerID:     "C1",
		InitialMessage: "hi",
	})
	if err != nil {
		t.Fatalf("create %s: %v", channel, err)
	}
	return item
}

func (f *sweepFixture) status(t *testing.T, id string) domain.ItemStatus {
	t.Helper()
	item, err := f.store.Reader().Items.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return item.Status
}

func TestRunOnceHandlesEveryTimer(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	staff := domain.StaffActor("S1")

	snoozed := f.create(t, domain.ChannelEmail)
	if _, err := f.lifecycle.Snooze(ctx, staff, snoozed.ID, service.SnoozeInput{Preset: service.Preset30Minutes}); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if _, err := f.schedule.Schedule(ctx, staff, snoozed.ID, "checking in", f.clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	resolved := f.create(t, domain.ChannelEmail)
	if _, err := f.lifecycle.UpdateStatus(ctx, staff, resolved.ID, domain.StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	chat := f.create(t, domain.ChannelChat)

	f.clock.Advance(25 * time.Hour)
	result, err := f.sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	want := SweepResult{Dispatched: 1, Woken: 1, ChatsClosed: 1, TicketsClosed: 1}
	if result != want {
		t.Fatalf("want %+v, got %+v", want, result)
	}

	if got := f.status(t, snoozed.ID); got != domain.StatusOpen {
		t.Fatalf("snoozed ticket: expected open, got %s", got)
	}
	if got := f.status(t, resolved.ID); got != domain.StatusClosed {
		t.Fatalf("resolved ticket: expected closed, got %s", got)
	}
	if got := f.status(t, chat.ID); got != domain.StatusClosed {
		t.Fatalf("idle chat: expected closed, got %s", got)
	}

	again, err := f.sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again != (SweepResult{}) {
		t.Fatalf("second sweep must find nothing, got %+v", again)
	}

	sweeps := f.metrics.Snapshot().Sweeps
	for _, phase := range []string{PhaseDispatch, PhaseSnoozeExpiry, PhaseChatIdle, PhaseTicketResolve} {
		if sweeps[phase] != 1 {
			t.Fatalf("phase %s: expected 1, got %d", phase, sweeps[phase])
		}
	}
}

func TestRunOnceLeavesFreshItems(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	chat := f.create(t, domain.ChannelChat)
	ticket := f.create(t, domain.ChannelEmail)
	if _, err := f.lifecycle.UpdateStatus(ctx, domain.StaffActor("S1"), ticket.ID, domain.StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	f.clock.Advance(10 * time.Minute)
	result, err := f.sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if result != (SweepResult{}) {
		t.Fatalf("nothing should be due yet, got %+v", result)
	}
	if got := f.status(t, chat.ID); got != domain.StatusAIHandling {
		t.Fatalf("chat closed too early: %s", got)
	}
	if got := f.status(t, ticket.ID); got != domain.StatusResolved {
		t.Fatalf("ticket closed too early: %s", got)
	}
}

func TestStartAndStop(t *testing.T) {
	f := newSweepFixture(t)
	if err := f.sweeper.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.sweeper.Start(); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
