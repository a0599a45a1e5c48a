package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

func TestDispatchConvertsExactlyOnce(t *testing.T) {
	var deliveries int32
	e := newTestEngine(t, withDeliverer(DeliveryFunc(func(context.Context, domain.Item, domain.ScheduledMessage) error {
		atomic.AddInt32(&deliveries, 1)
		return nil
	})))
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	due := testStart.Add(time.Hour)

	rec, err := e.schedule.Schedule(ctx, domain.StaffActor("S1"), item.ID, "We shipped it", due)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ok, err := e.schedule.Dispatch(ctx, rec.ID); err != nil || ok {
		t.Fatalf("dispatch before due: ok=%v err=%v", ok, err)
	}

	e.clock.Advance(time.Hour + 5*time.Second)
	ok, err := e.schedule.Dispatch(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("dispatch: ok=%v err=%v", ok, err)
	}
	ok, err = e.schedule.Dispatch(ctx, rec.ID)
	if err != nil || ok {
		t.Fatalf("second dispatch must be a no-op: ok=%v err=%v", ok, err)
	}
	if n := atomic.LoadInt32(&deliveries); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}

	msgs := e.messages(t, item.ID)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	msg := msgs[0]
	if !msg.WasScheduled || !msg.CreatedAt.Equal(due) || msg.SenderType != domain.SenderStaff || msg.Content != "We shipped it" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if pending, _ := e.schedule.ListForItem(ctx, item.ID); len(pending) != 0 {
		t.Fatalf("scheduled record left behind: %+v", pending)
	}
	if n := len(e.events.ofType(events.EventScheduledDispatched)); n != 1 {
		t.Fatalf("expected one dispatched event, got %d", n)
	}
	if got := e.metrics.Snapshot().Dispatches[DispatchDelivered]; got != 1 {
		t.Fatalf("expected 1 delivered dispatch, got %d", got)
	}
}

func TestScheduleRequiresFutureTime(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")

	_, err := e.schedule.Schedule(ctx, domain.StaffActor("S1"), item.ID, "hi", testStart)
	expectCode(t, err, apperrors.CodeInvalidSchedule)
	_, err = e.schedule.Schedule(ctx, domain.StaffActor("S1"), item.ID, "  ", testStart.Add(time.Hour))
	expectCode(t, err, apperrors.CodeValidation)
}

func TestRescheduleAndCancel(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	staff := domain.StaffActor("S1")
	item := e.createTicket(t, "C1")

	rec, err := e.schedule.Schedule(ctx, staff, item.ID, "draft", testStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	later := testStart.Add(2 * time.Hour)
	updated, err := e.schedule.Reschedule(ctx, staff, rec.ID, strPtr("final"), &later)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.Content != "final" || !updated.ScheduledFor.Equal(later) {
		t.Fatalf("unexpected update %+v", updated)
	}

	past := testStart.Add(-time.Minute)
	_, err = e.schedule.Reschedule(ctx, staff, rec.ID, nil, &past)
	expectCode(t, err, apperrors.CodeInvalidSchedule)

	if err := e.schedule.Cancel(ctx, staff, rec.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err = e.schedule.Cancel(ctx, staff, rec.ID)
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestEditAfterDueIsRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	staff := domain.StaffActor("S1")
	item := e.createTicket(t, "C1")

	rec, err := e.schedule.Schedule(ctx, staff, item.ID, "soon", testStart.Add(time.Minute))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	e.clock.Advance(time.Minute)

	_, err = e.schedule.Reschedule(ctx, staff, rec.ID, strPtr("changed"), nil)
	expectCode(t, err, apperrors.CodeAlreadyDispatching)
	err = e.schedule.Cancel(ctx, staff, rec.ID)
	expectCode(t, err, apperrors.CodeAlreadyDispatching)

	n, err := e.schedule.DispatchDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("dispatch due: n=%d err=%v", n, err)
	}
	if msgs := e.messages(t, item.ID); len(msgs) != 1 || msgs[0].Content != "soon" {
		t.Fatalf("original content must be sent, got %+v", msgs)
	}
}

func TestDispatchRetriesWithBackoff(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	e := newTestEngine(t, withDeliverer(DeliveryFunc(func(context.Context, domain.Item, domain.ScheduledMessage) error {
		if failing.Load() {
			return errors.New("gateway unavailable")
		}
		return nil
	})))
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	rec, err := e.schedule.Schedule(ctx, domain.StaffActor("S1"), item.ID, "retry me", testStart.Add(time.Minute))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	e.clock.Advance(time.Minute)
	if n, err := e.schedule.DispatchDue(ctx); err != nil || n != 0 {
		t.Fatalf("first attempt: n=%d err=%v", n, err)
	}
	stored, _ := e.store.Reader().Scheduled.GetByID(ctx, rec.ID)
	if stored.Attempts != 1 || stored.NextAttemptAt == nil || stored.DispatchStartedAt != nil || stored.LastError == "" {
		t.Fatalf("unexpected record after failure %+v", stored)
	}
	if !stored.NextAttemptAt.Equal(e.clock.Now().Add(time.Minute)) {
		t.Fatalf("expected 60s backoff, next attempt at %v", stored.NextAttemptAt)
	}

	e.clock.Advance(30 * time.Second)
	if n, _ := e.schedule.DispatchDue(ctx); n != 0 {
		t.Fatal("record in backoff must not be dispatched")
	}
	if stored, _ := e.store.Reader().Scheduled.GetByID(ctx, rec.ID); stored.Attempts != 1 {
		t.Fatalf("backoff window was not honoured, attempts=%d", stored.Attempts)
	}

	e.clock.Advance(31 * time.Second)
	if _, err := e.schedule.DispatchDue(ctx); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	failingEvents := e.events.ofType(events.EventDispatchFailing)
	if len(failingEvents) != 1 {
		t.Fatalf("expected an alert after the second failure, got %d", len(failingEvents))
	}
	if payload := failingEvents[0].Payload.(events.ScheduledPayload); payload.Attempts != 2 {
		t.Fatalf("unexpected alert payload %+v", payload)
	}
	if snap := e.metrics.Snapshot(); snap.Alerts != 1 || snap.Dispatches[DispatchFailed] != 2 {
		t.Fatalf("unexpected metrics %+v", snap)
	}

	failing.Store(false)
	e.clock.Advance(2 * time.Minute)
	if n, err := e.schedule.DispatchDue(ctx); err != nil || n != 1 {
		t.Fatalf("recovery: n=%d err=%v", n, err)
	}
	if msgs := e.messages(t, item.ID); len(msgs) != 1 || !msgs[0].WasScheduled {
		t.Fatalf("expected the scheduled message, got %+v", msgs)
	}
}

func TestScheduleOnClosedItemFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	if _, err := e.lifecycle.UpdateStatus(ctx, domain.StaffActor("S1"), item.ID, domain.StatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := e.schedule.Schedule(ctx, domain.StaffActor("S1"), item.ID, "too late", testStart.Add(time.Hour))
	expectCode(t, err, apperrors.CodeInvalidTransition)
}
