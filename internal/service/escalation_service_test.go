package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

func TestRaiseLeavesStatusAndOwnerAlone(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	if _, err := e.assignment.Assign(ctx, domain.StaffActor("ADM"), item.ID, strPtr("S1"), nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	before := e.item(t, item.ID)

	esc, err := e.escalations.Raise(ctx, domain.StaffActor("S1"), item.ID, []string{"S2", "ADM", "S2"}, "refund over limit")
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if esc.Status != domain.EscalationPending || len(esc.TargetStaffIDs) != 2 {
		t.Fatalf("unexpected escalation %+v", esc)
	}

	after := e.item(t, item.ID)
	if after.Status != before.Status || after.OwnerOrEmpty() != before.OwnerOrEmpty() || after.Version != before.Version {
		t.Fatalf("escalation changed item: %+v -> %+v", before, after)
	}

	raised := e.events.ofType(events.EventEscalationRaised)
	if len(raised) != 2 {
		t.Fatalf("expected one notification per target, got %d", len(raised))
	}
	recipients := map[string]bool{}
	for _, ev := range raised {
		recipients[ev.Payload.(events.EscalationPayload).Recipient] = true
	}
	if !recipients["S2"] || !recipients["ADM"] {
		t.Fatalf("unexpected recipients %v", recipients)
	}

	rows, err := e.store.Reader().Items.List(ctx, repository.ItemFilter{Viewer: "S2", EscalatedToMe: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || !rows[0].EscalatedToViewer || rows[0].PendingEscalations != 1 {
		t.Fatalf("unexpected projection %+v", rows)
	}
}

func TestRaiseValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	staff := domain.StaffActor("S1")

	_, err := e.escalations.Raise(ctx, staff, item.ID, nil, "help")
	expectCode(t, err, apperrors.CodeValidation)
	_, err = e.escalations.Raise(ctx, staff, item.ID, []string{"S2"}, "  ")
	expectCode(t, err, apperrors.CodeValidation)
	_, err = e.escalations.Raise(ctx, staff, item.ID, []string{"ghost"}, "help")
	expectCode(t, err, apperrors.CodeNotFound)
	_, err = e.escalations.Raise(ctx, staff, "missing", []string{"S2"}, "help")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestResolveIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	esc, err := e.escalations.Raise(ctx, domain.StaffActor("S1"), item.ID, []string{"S2"}, "second opinion")
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	_, err = e.escalations.Resolve(ctx, domain.StaffActor("S1"), item.ID, esc.ID)
	expectCode(t, err, apperrors.CodeForbidden)

	first, err := e.escalations.Resolve(ctx, domain.StaffActor("S2"), item.ID, esc.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Status != domain.EscalationResolved || first.ResolvedAt == nil {
		t.Fatalf("unexpected resolution %+v", first)
	}

	e.clock.Advance(time.Hour)
	second, err := e.escalations.Resolve(ctx, domain.StaffActor("S2"), item.ID, esc.ID)
	if err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Fatalf("resolved_at moved: %v -> %v", first.ResolvedAt, second.ResolvedAt)
	}
	if n := len(e.events.ofType(events.EventEscalationResolved)); n != 1 {
		t.Fatalf("expected a single resolved event, got %d", n)
	}

	mentions, err := e.escalations.Mentions(ctx, "S2")
	if err != nil {
		t.Fatalf("mentions: %v", err)
	}
	if len(mentions) != 0 {
		t.Fatalf("resolved escalation still listed: %+v", mentions)
	}

	other := e.createTicket(t, "C1")
	_, err = e.escalations.Resolve(ctx, domain.StaffActor("S2"), other.ID, esc.ID)
	expectCode(t, err, apperrors.CodeNotFound)
}
