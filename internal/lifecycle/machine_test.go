package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

const aiAgent = "ai-agent-001"

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func ticket(status domain.ItemStatus) domain.Item {
	return domain.Item{
		ID:             "T1",
		Channel:        domain.ChannelEmail,
		CustomerID:     "C1",
		Status:         status,
		Priority:       domain.PriorityNormal,
		CreatedAt:      t0,
		LastActivityAt: t0,
	}
}

func chat(status domain.ItemStatus, owner string) domain.Item {
	item := ticket(status)
	item.ID = "CH1"
	item.Channel = domain.ChannelChat
	if owner != "" {
		item.AssignedTo = ptr(owner)
	}
	return item
}

func TestApplySetStatusFollowsTicketGraph(t *testing.T) {
	m := NewMachine(aiAgent)
	staff := domain.StaffActor("S1")

	cases := []struct {
		name    string
		from    domain.ItemStatus
		to      domain.ItemStatus
		wantErr string
	}{
		{"open to in-progress", domain.StatusOpen, domain.StatusInProgress, ""},
		{"pending to resolved", domain.StatusPending, domain.StatusResolved, ""},
		{"resolved to closed", domain.StatusResolved, domain.StatusClosed, ""},
		{"closed is terminal", domain.StatusClosed, domain.StatusOpen, apperrors.CodeInvalidTransition},
		{"resolved cannot reopen", domain.StatusResolved, domain.StatusOpen, apperrors.CodeInvalidTransition},
		{"in-progress back to open", domain.StatusInProgress, domain.StatusOpen, apperrors.CodeInvalidTransition},
		{"snooze needs deadline", domain.StatusOpen, domain.StatusSnoozed, apperrors.CodeInvalidTransition},
		{"unknown status", domain.StatusOpen, domain.StatusQueued, apperrors.CodeValidation},
		{"snoozed needs unsnooze", domain.StatusSnoozed, domain.StatusInProgress, apperrors.CodeInvalidTransition},
		{"snoozed may resolve", domain.StatusSnoozed, domain.StatusResolved, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := ticket(tc.from)
			out, err := m.Apply(item, Action{Kind: ActionSetStatus, Status: tc.to}, staff, t0.Add(time.Minute))
			if tc.wantErr != "" {
				if !apperrors.HasCode(err, tc.wantErr) {
					t.Fatalf("expected %s, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Item.Status != tc.to {
				t.Fatalf("status = %s, want %s", out.Item.Status, tc.to)
			}
			if !out.Changed || out.Item.Version != item.Version+1 {
				t.Fatalf("expected version bump, got changed=%v version=%d", out.Changed, out.Item.Version)
			}
			if len(out.Events) == 0 || out.Events[0].Type != events.EventItemStatusChanged {
				t.Fatalf("expected status changed event, got %+v", out.Events)
			}
		})
	}
}

func TestApplyInvalidTransitionCarriesState(t *testing.T) {
	m := NewMachine(aiAgent)
	_, err := m.Apply(ticket(domain.StatusClosed), Action{Kind: ActionSetStatus, Status: domain.StatusOpen}, domain.StaffActor("S1"), t0)
	de := apperrors.ToDomainError(err)
	if de.Code != apperrors.CodeInvalidTransition {
		t.Fatalf("code = %s", de.Code)
	}
	if de.Details["current_status"] != domain.StatusClosed || de.Details["attempted_state"] != domain.StatusOpen {
		t.Fatalf("details = %+v", de.Details)
	}
}

func TestApplySameStatusIsNoop(t *testing.T) {
	m := NewMachine(aiAgent)
	item := ticket(domain.StatusPending)
	out, err := m.Apply(item, Action{Kind: ActionSetStatus, Status: domain.StatusPending}, domain.StaffActor("S1"), t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed || len(out.Events) != 0 || len(out.Notes) != 0 {
		t.Fatalf("expected no-op, got %+v", out)
	}
}

func TestApplySnoozeAndRestore(t *testing.T) {
	m := NewMachine(aiAgent)
	staff := domain.StaffActor("S1")
	item := ticket(domain.StatusInProgress)
	until := t0.Add(2 * time.Hour)

	out, err := m.Apply(item, Action{Kind: ActionSnooze, Until: until, Reason: "waiting on vendor"}, staff, t0)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	snoozed := out.Item
	if snoozed.Status != domain.StatusSnoozed || snoozed.Snooze == nil {
		t.Fatalf("expected snoozed item, got %+v", snoozed)
	}
	if snoozed.Snooze.PreviousStatus != domain.StatusInProgress || !snoozed.Snooze.Until.Equal(until) {
		t.Fatalf("snooze state = %+v", snoozed.Snooze)
	}
	if item.Status != domain.StatusInProgress || item.Snooze != nil {
		t.Fatal("input item was mutated")
	}

	// before the deadline nothing happens
	out, err = m.Apply(snoozed, Action{Kind: ActionExpireSnooze}, domain.SystemActor(), until.Add(-time.Second))
	if err != nil || out.Changed {
		t.Fatalf("early expiry changed=%v err=%v", out.Changed, err)
	}

	out, err = m.Apply(snoozed, Action{Kind: ActionExpireSnooze}, domain.SystemActor(), until)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if out.Item.Status != domain.StatusInProgress || out.Item.Snooze != nil {
		t.Fatalf("restored item = %+v", out.Item)
	}
	if !out.Item.LastActivityAt.Equal(snoozed.LastActivityAt) {
		t.Fatal("system actor must not bump activity")
	}
	var sawUnsnoozed bool
	for _, ev := range out.Events {
		if ev.Type == events.EventItemUnsnoozed {
			sawUnsnoozed = ev.Payload.(events.UnsnoozedPayload).Expired
		}
	}
	if !sawUnsnoozed {
		t.Fatalf("expected expired unsnooze event, got %+v", out.Events)
	}
}

func TestApplySnoozeRejectsPastDeadline(t *testing.T) {
	m := NewMachine(aiAgent)
	_, err := m.Apply(ticket(domain.StatusOpen), Action{Kind: ActionSnooze, Until: t0}, domain.StaffActor("S1"), t0)
	if !apperrors.HasCode(err, apperrors.CodeInvalidSchedule) {
		t.Fatalf("expected invalid schedule, got %v", err)
	}
}

func TestApplyResnoozeKeepsOriginalStatus(t *testing.T) {
	m := NewMachine(aiAgent)
	staff := domain.StaffActor("S1")
	first, err := m.Apply(ticket(domain.StatusPending), Action{Kind: ActionSnooze, Until: t0.Add(time.Hour)}, staff, t0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Apply(first.Item, Action{Kind: ActionSnooze, Until: t0.Add(3 * time.Hour)}, staff, t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if second.Item.Snooze.PreviousStatus != domain.StatusPending {
		t.Fatalf("previous status = %s", second.Item.Snooze.PreviousStatus)
	}
	if !second.Item.Snooze.Until.Equal(t0.Add(3 * time.Hour)) {
		t.Fatalf("until = %s", second.Item.Snooze.Until)
	}
}

func TestApplyChatCannotSnooze(t *testing.T) {
	m := NewMachine(aiAgent)
	_, err := m.Apply(chat(domain.StatusAIHandling, aiAgent), Action{Kind: ActionSnooze, Until: t0.Add(time.Hour)}, domain.StaffActor("S1"), t0)
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestApplyChatHandoffs(t *testing.T) {
	m := NewMachine(aiAgent)

	cases := []struct {
		name      string
		item      domain.Item
		action    Action
		actor     domain.Actor
		wantState domain.ItemStatus
		wantOwner string
		wantErr   string
	}{
		{
			name:      "takeover from ai",
			item:      chat(domain.StatusAIHandling, aiAgent),
			action:    Action{Kind: ActionTakeover},
			actor:     domain.StaffActor("S1"),
			wantState: domain.StatusStaffHandling,
			wantOwner: "S1",
		},
		{
			name:    "takeover owned by other staff",
			item:    chat(domain.StatusStaffHandling, "S2"),
			action:  Action{Kind: ActionTakeover},
			actor:   domain.StaffActor("S1"),
			wantErr: apperrors.CodeAssignment,
		},
		{
			name:      "queue keeps ai owner",
			item:      chat(domain.StatusAIHandling, aiAgent),
			action:    Action{Kind: ActionQueue},
			actor:     domain.Actor{Type: domain.ActorAI, ID: aiAgent},
			wantState: domain.StatusQueued,
			wantOwner: aiAgent,
		},
		{
			name:      "pickup from queue",
			item:      chat(domain.StatusQueued, aiAgent),
			action:    Action{Kind: ActionPickup},
			actor:     domain.StaffActor("S1"),
			wantState: domain.StatusStaffHandling,
			wantOwner: "S1",
		},
		{
			name:    "pickup from ai handling",
			item:    chat(domain.StatusAIHandling, aiAgent),
			action:  Action{Kind: ActionPickup},
			actor:   domain.StaffActor("S1"),
			wantErr: apperrors.CodeInvalidTransition,
		},
		{
			name:    "pickup assigned to someone else",
			item:    chat(domain.StatusAssigned, "S2"),
			action:  Action{Kind: ActionPickup},
			actor:   domain.StaffActor("S1"),
			wantErr: apperrors.CodeAssignment,
		},
		{
			name:      "reassign queued to staff",
			item:      chat(domain.StatusQueued, aiAgent),
			action:    Action{Kind: ActionReassign, Owner: ptr("S3")},
			actor:     domain.StaffActor("S1"),
			wantState: domain.StatusAssigned,
			wantOwner: "S3",
		},
		{
			name:      "reassign ai handling to staff hands off directly",
			item:      chat(domain.StatusAIHandling, aiAgent),
			action:    Action{Kind: ActionReassign, Owner: ptr("S3")},
			actor:     domain.StaffActor("S1"),
			wantState: domain.StatusStaffHandling,
			wantOwner: "S3",
		},
		{
			name:      "reassign back to ai",
			item:      chat(domain.StatusStaffHandling, "S1"),
			action:    Action{Kind: ActionReassign, Owner: ptr(aiAgent)},
			actor:     domain.StaffActor("S1"),
			wantState: domain.StatusAIHandling,
			wantOwner: aiAgent,
		},
		{
			name:    "chat can never be unassigned",
			item:    chat(domain.StatusStaffHandling, "S1"),
			action:  Action{Kind: ActionAssign},
			actor:   domain.StaffActor("S1"),
			wantErr: apperrors.CodeAssignment,
		},
		{
			name:    "closed chat rejects reassign",
			item:    chat(domain.StatusClosed, "S1"),
			action:  Action{Kind: ActionReassign, Owner: ptr("S2")},
			actor:   domain.StaffActor("S1"),
			wantErr: apperrors.CodeInvalidTransition,
		},
		{
			name:    "customer cannot take over",
			item:    chat(domain.StatusAIHandling, aiAgent),
			action:  Action{Kind: ActionTakeover},
			actor:   domain.Actor{Type: domain.ActorCustomer, ID: "C1"},
			wantErr: apperrors.CodeForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := m.Apply(tc.item, tc.action, tc.actor, t0.Add(time.Minute))
			if tc.wantErr != "" {
				if !apperrors.HasCode(err, tc.wantErr) {
					t.Fatalf("expected %s, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Item.Status != tc.wantState {
				t.Fatalf("status = %s, want %s", out.Item.Status, tc.wantState)
			}
			if out.Item.OwnerOrEmpty() != tc.wantOwner {
				t.Fatalf("owner = %s, want %s", out.Item.OwnerOrEmpty(), tc.wantOwner)
			}
		})
	}
}

func TestApplyRepeatedTakeoverIsIdempotent(t *testing.T) {
	m := NewMachine(aiAgent)
	out, err := m.Apply(chat(domain.StatusStaffHandling, "S1"), Action{Kind: ActionTakeover}, domain.StaffActor("S1"), t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed {
		t.Fatal("expected no change on repeated takeover")
	}
}

func TestApplyCloseResolution(t *testing.T) {
	m := NewMachine(aiAgent)
	cases := []struct {
		requested string
		actor     domain.Actor
		want      domain.ResolutionType
	}{
		{"resolved", domain.StaffActor("S1"), domain.ResolutionStaffResolved},
		{"resolved", domain.Actor{Type: domain.ActorAI, ID: aiAgent}, domain.ResolutionAIResolved},
		{"closed", domain.StaffActor("S1"), domain.ResolutionInactiveClosed},
		{"", domain.SystemActor(), domain.ResolutionInactiveClosed},
		{"ai_resolved", domain.StaffActor("S1"), domain.ResolutionAIResolved},
	}
	for _, tc := range cases {
		out, err := m.Apply(chat(domain.StatusStaffHandling, "S1"), Action{Kind: ActionClose, Resolution: tc.requested}, tc.actor, t0)
		if err != nil {
			t.Fatalf("%q: %v", tc.requested, err)
		}
		if out.Item.Status != domain.StatusClosed || out.Item.ClosedAt == nil {
			t.Fatalf("%q: item not closed: %+v", tc.requested, out.Item)
		}
		if out.Item.ResolutionType == nil || *out.Item.ResolutionType != tc.want {
			t.Fatalf("%q: resolution = %v, want %s", tc.requested, out.Item.ResolutionType, tc.want)
		}
		if out.Item.OwnerOrEmpty() != "S1" {
			t.Fatal("close must keep the owner")
		}
	}

	_, err := m.Apply(chat(domain.StatusQueued, aiAgent), Action{Kind: ActionClose, Resolution: "bogus"}, domain.StaffActor("S1"), t0)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyFrozenItemRejectsEverything(t *testing.T) {
	m := NewMachine(aiAgent)
	item := ticket(domain.StatusClosed)
	item.MergedInto = ptr("T9")
	for _, kind := range []ActionKind{ActionSetStatus, ActionSnooze, ActionAssign, ActionTouch, ActionAttachMerged} {
		_, err := m.Apply(item, Action{Kind: kind, Status: domain.StatusOpen}, domain.StaffActor("S1"), t0)
		if !apperrors.HasCode(err, apperrors.CodeItemFrozen) {
			t.Fatalf("%s: expected frozen, got %v", kind, err)
		}
	}
}

func TestApplyAbsorbAndAttach(t *testing.T) {
	m := NewMachine(aiAgent)
	staff := domain.StaffActor("S1")

	secondary := ticket(domain.StatusPending)
	secondary.ID = "T2"
	out, err := m.Apply(secondary, Action{Kind: ActionAbsorb, MergeInto: "T1"}, staff, t0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Item.Status != domain.StatusClosed || !out.Item.Frozen() || *out.Item.MergedInto != "T1" {
		t.Fatalf("absorbed = %+v", out.Item)
	}
	if out.Item.ResolutionType != nil {
		t.Fatalf("absorbed ticket got a resolution type: %v", *out.Item.ResolutionType)
	}

	conv, err := m.Apply(chat(domain.StatusStaffHandling, "S1"), Action{Kind: ActionAbsorb, MergeInto: "CH0"}, staff, t0)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Item.ResolutionType == nil || *conv.Item.ResolutionType != domain.ResolutionInactiveClosed {
		t.Fatalf("absorbed conversation must record inactive_closed, got %+v", conv.Item.ResolutionType)
	}

	primary := ticket(domain.StatusOpen)
	out, err = m.Apply(primary, Action{Kind: ActionAttachMerged, Absorbed: []string{"T2", "T3"}}, staff, t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Item.MergedFrom) != 2 || len(out.Notes) != 2 {
		t.Fatalf("merged from = %v notes = %d", out.Item.MergedFrom, len(out.Notes))
	}

	_, err = m.Apply(ticket(domain.StatusResolved), Action{Kind: ActionAttachMerged, Absorbed: []string{"T2"}}, staff, t0)
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition for terminal primary, got %v", err)
	}
}

func TestApplyAutoClose(t *testing.T) {
	m := NewMachine(aiAgent)
	out, err := m.Apply(chat(domain.StatusQueued, aiAgent), Action{Kind: ActionAutoClose}, domain.SystemActor(), t0)
	if err != nil {
		t.Fatal(err)
	}
	if *out.Item.ResolutionType != domain.ResolutionInactiveClosed {
		t.Fatalf("resolution = %s", *out.Item.ResolutionType)
	}
	_, err = m.Apply(ticket(domain.StatusOpen), Action{Kind: ActionAutoClose}, domain.SystemActor(), t0)
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("open ticket must not auto close, got %v", err)
	}
}

// Random action sequences never leave the status graph and never lose a chat owner.
func TestApplyRandomSequencesStayOnGraph(t *testing.T) {
	m := NewMachine(aiAgent)
	rng := rand.New(rand.NewSource(42))
	staffIDs := []string{"S1", "S2", "S3", aiAgent}
	ticketStatuses := []domain.ItemStatus{domain.StatusOpen, domain.StatusInProgress, domain.StatusPending, domain.StatusSnoozed, domain.StatusResolved, domain.StatusClosed}
	kinds := []ActionKind{
		ActionSetStatus, ActionSnooze, ActionUnsnooze, ActionExpireSnooze, ActionWake, ActionAssign,
		ActionQueue, ActionTakeover, ActionPickup, ActionReassign, ActionClose, ActionAutoClose,
	}

	for run := 0; run < 200; run++ {
		item := ticket(domain.StatusOpen)
		if run%2 == 1 {
			item = chat(domain.StatusAIHandling, aiAgent)
		}
		now := t0
		for step := 0; step < 40; step++ {
			now = now.Add(time.Duration(rng.Intn(90)) * time.Minute)
			owner := staffIDs[rng.Intn(len(staffIDs))]
			action := Action{
				Kind:   kinds[rng.Intn(len(kinds))],
				Status: ticketStatuses[rng.Intn(len(ticketStatuses))],
				Owner:  &owner,
				Until:  now.Add(time.Duration(rng.Intn(120)-30) * time.Minute),
			}
			actor := domain.StaffActor(staffIDs[rng.Intn(3)])
			out, err := m.Apply(item, action, actor, now)
			if err != nil {
				continue
			}
			if out.Changed && out.Item.Status != item.Status && !Allowed(item.Channel, item.Status, out.Item.Status) {
				t.Fatalf("run %d step %d: %s -> %s via %s", run, step, item.Status, out.Item.Status, action.Kind)
			}
			if item.Channel.IsChat() && out.Item.AssignedTo == nil {
				t.Fatalf("run %d step %d: chat lost its owner", run, step)
			}
			if out.Item.Status == domain.StatusSnoozed && out.Item.Snooze == nil {
				t.Fatalf("run %d step %d: snoozed without deadline", run, step)
			}
			if out.Item.Status != domain.StatusSnoozed && out.Item.Snooze != nil {
				t.Fatalf("run %d step %d: stale snooze state", run, step)
			}
			if out.Changed && out.Item.Version != item.Version+1 {
				t.Fatalf("run %d step %d: version not bumped", run, step)
			}
			item = out.Item
		}
	}
}
