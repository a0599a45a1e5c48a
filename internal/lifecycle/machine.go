package lifecycle

import (
	"fmt"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// ActionKind names a request against the state machine.
type ActionKind string

const (
	ActionSetStatus    ActionKind = "set_status"
	ActionSnooze       ActionKind = "snooze"
	ActionUnsnooze     ActionKind = "unsnooze"
	ActionExpireSnooze ActionKind = "expire_snooze"
	ActionWake         ActionKind = "wake"
	ActionAssign       ActionKind = "assign"
	ActionQueue        ActionKind = "queue"
	ActionTakeover     ActionKind = "takeover"
	ActionPickup       ActionKind = "pickup"
	ActionReassign     ActionKind = "reassign"
	ActionClose        ActionKind = "close"
	ActionAutoClose    ActionKind = "auto_close"
	ActionAbsorb       ActionKind = "absorb"
	ActionAttachMerged ActionKind = "attach_merged"
	ActionTouch        ActionKind = "touch"
)

// Action is the parameter object for one transition request.
type Action struct {
	Kind       ActionKind
	Status     domain.ItemStatus
	Owner      *string
	Until      time.Time
	Reason     string
	Resolution string
	MergeInto  string
	Absorbed   []string
}

// Outcome is the result of applying an action. Notes and Events are side effects the
// caller persists/publishes only once the item write commits.
type Outcome struct {
	Item    domain.Item
	Changed bool
	Notes   []domain.AuditNote
	Events  []events.Event
}

// Machine applies actions to items. It holds no state besides configuration.
type Machine struct {
	AIAgentID string
}

// NewMachine builds a machine with the reserved AI agent id.
func NewMachine(aiAgentID string) Machine {
	return Machine{AIAgentID: aiAgentID}
}

// IsAI reports whether owner is the reserved AI agent.
func (m Machine) IsAI(owner string) bool {
	return owner != "" && owner == m.AIAgentID
}

// Apply computes the next state of item for action. It never mutates its input and
// returns an error without side effects when the transition is illegal.
func (m Machine) Apply(item domain.Item, action Action, actor domain.Actor, now time.Time) (Outcome, error) {
	now = now.UTC()
	if item.Frozen() {
		return Outcome{}, apperrors.NewItemFrozen(item.ID, *item.MergedInto)
	}
	t := &transition{m: m, before: item, next: item.Clone(), actor: actor, now: now}

	var err error
	switch action.Kind {
	case ActionSetStatus:
		err = t.setStatus(action.Status)
	case ActionSnooze:
		err = t.snooze(action.Until, action.Reason)
	case ActionUnsnooze:
		err = t.unsnooze(false)
	case ActionExpireSnooze:
		if item.Status == domain.StatusSnoozed && item.Snooze != nil && !now.Before(item.Snooze.Until) {
			err = t.unsnooze(true)
		}
	case ActionWake:
		if item.Status == domain.StatusSnoozed {
			err = t.unsnooze(false)
		}
	case ActionAssign:
		err = t.assign(action.Owner, action.Reason)
	case ActionQueue:
		err = t.queue()
	case ActionTakeover:
		err = t.takeover()
	case ActionPickup:
		err = t.pickup()
	case ActionReassign:
		if action.Owner == nil || *action.Owner == "" {
			return Outcome{}, apperrors.NewValidationError("reassign requires a target owner", nil)
		}
		err = t.assign(action.Owner, action.Reason)
	case ActionClose:
		err = t.closeConversation(action.Resolution)
	case ActionAutoClose:
		err = t.autoClose()
	case ActionAbsorb:
		err = t.absorb(action.MergeInto)
	case ActionAttachMerged:
		err = t.attachMerged(action.Absorbed)
	case ActionTouch:
		t.changed = true
	default:
		return Outcome{}, apperrors.NewValidationError("unknown action", map[string]any{"action": action.Kind})
	}
	if err != nil {
		return Outcome{}, err
	}
	return t.outcome(), nil
}

type transition struct {
	m       Machine
	before  domain.Item
	next    domain.Item
	actor   domain.Actor
	now     time.Time
	changed bool
	notes   []domain.AuditNote
	events  []events.Event
}

func (t *transition) outcome() Outcome {
	if !t.changed {
		return Outcome{Item: t.before, Changed: false}
	}
	t.next.Version = t.before.Version + 1
	if t.actor.Type != domain.ActorSystem {
		t.next.LastActivityAt = t.now
	}
	return Outcome{Item: t.next, Changed: true, Notes: t.notes, Events: t.events}
}

func (t *transition) invalid(attempted any, reason string) error {
	return apperrors.NewInvalidTransition(t.before.ID, t.before.Status, attempted, reason)
}

func (t *transition) note(kind domain.NoteKind, content string, oldValue, newValue map[string]any) {
	t.notes = append(t.notes, domain.AuditNote{
		ItemID:    t.before.ID,
		Kind:      kind,
		ActorType: t.actor.Type,
		ActorID:   t.actor.IDPtr(),
		Content:   content,
		OldValue:  oldValue,
		NewValue:  newValue,
		CreatedAt: t.now,
	})
}

func (t *transition) emit(eventType events.EventType, payload any) {
	t.events = append(t.events, events.Event{
		Type:      eventType,
		ItemID:    t.before.ID,
		Actor:     events.ActorFrom(t.actor),
		Timestamp: t.now,
		Payload:   payload,
	})
}

// moveTo changes status along a graph edge and records the side effects.
func (t *transition) moveTo(status domain.ItemStatus, comment string) error {
	from := t.next.Status
	if from == status {
		return nil
	}
	if !Allowed(t.next.Channel, from, status) {
		return t.invalid(status, "")
	}
	t.next.Status = status
	switch status {
	case domain.StatusResolved:
		ts := t.now
		t.next.ResolvedAt = &ts
	case domain.StatusClosed:
		ts := t.now
		t.next.ClosedAt = &ts
	}
	if status != domain.StatusSnoozed {
		t.next.Snooze = nil
	}
	t.changed = true
	newValue := map[string]any{"status": status}
	if comment != "" {
		newValue["comment"] = comment
	}
	t.note(domain.NoteStatus, fmt.Sprintf("Status changed from %s to %s", from, status), map[string]any{"status": from}, newValue)
	t.emit(events.EventItemStatusChanged, events.StatusChangedPayload{
		OldStatus:      from,
		NewStatus:      status,
		ResolutionType: t.next.ResolutionType,
	})
	return nil
}

func (t *transition) setOwner(owner *string, reason string) {
	old := t.next.AssignedTo
	if sameOwner(old, owner) {
		return
	}
	var copied *string
	if owner != nil {
		v := *owner
		copied = &v
	}
	t.next.AssignedTo = copied
	t.changed = true
	content := "Unassigned"
	if copied != nil {
		content = "Assigned to " + *copied
	}
	if reason != "" {
		content += ". Reason: " + reason
	}
	t.note(domain.NoteAssignment, content,
		map[string]any{"assigned_to": old},
		map[string]any{"assigned_to": copied})
	t.emit(events.EventItemAssigned, events.AssignedPayload{OldAssignee: old, NewAssignee: copied})
}

func (t *transition) setStatus(target domain.ItemStatus) error {
	if t.before.Channel.IsChat() {
		return t.invalid(target, "conversation status follows takeover, pickup, reassign and close")
	}
	if !KnownStatus(t.before.Channel, target) {
		return apperrors.NewValidationError("unknown ticket status", map[string]any{"status": target})
	}
	if target == t.before.Status {
		return nil
	}
	if target == domain.StatusSnoozed {
		return t.invalid(target, "use snooze with a deadline")
	}
	if t.before.Status == domain.StatusSnoozed && target != domain.StatusResolved && target != domain.StatusClosed {
		return t.invalid(target, "use unsnooze to resume a snoozed ticket")
	}
	return t.moveTo(target, "")
}

func (t *transition) snooze(until time.Time, reason string) error {
	if t.before.Channel.IsChat() {
		return t.invalid(domain.StatusSnoozed, "conversations cannot be snoozed")
	}
	if t.before.Terminal() {
		return t.invalid(domain.StatusSnoozed, "terminal items cannot be snoozed")
	}
	until = until.UTC()
	if !until.After(t.now) {
		return apperrors.NewInvalidSchedule("snooze deadline must be in the future", map[string]any{
			"snoozed_until": until,
			"now":           t.now,
		})
	}
	previous := t.before.Status
	if t.before.Snooze != nil {
		previous = t.before.Snooze.PreviousStatus
	}
	if previous == "" || previous == domain.StatusSnoozed {
		previous = domain.StatusOpen
	}
	if t.before.Status != domain.StatusSnoozed {
		if err := t.moveTo(domain.StatusSnoozed, reason); err != nil {
			return err
		}
	}
	t.next.Snooze = &domain.SnoozeState{Until: until, Reason: reason, PreviousStatus: previous}
	t.changed = true
	if reason == "" {
		reason = "No reason provided"
	}
	t.note(domain.NoteSnooze, fmt.Sprintf("Snoozed until %s. Reason: %s", until.Format(time.RFC3339), reason),
		nil, map[string]any{"snoozed_until": until, "previous_status": previous})
	t.emit(events.EventItemSnoozed, events.SnoozedPayload{SnoozedUntil: until, Reason: t.next.Snooze.Reason})
	return nil
}

func (t *transition) unsnooze(expired bool) error {
	if t.before.Status != domain.StatusSnoozed {
		return t.invalid("unsnoozed", "item is not snoozed")
	}
	restore := domain.StatusOpen
	if t.before.Snooze != nil && t.before.Snooze.PreviousStatus != "" {
		restore = t.before.Snooze.PreviousStatus
	}
	if err := t.moveTo(restore, ""); err != nil {
		return err
	}
	content := "Snooze removed, item is active again"
	if expired {
		content = "Snooze expired, item is active again"
	}
	t.note(domain.NoteSnooze, content, nil, map[string]any{"restored_status": restore})
	t.emit(events.EventItemUnsnoozed, events.UnsnoozedPayload{RestoredStatus: restore, Expired: expired})
	return nil
}

func (t *transition) assign(owner *string, reason string) error {
	if owner != nil && *owner == "" {
		owner = nil
	}
	if !t.before.Channel.IsChat() {
		t.setOwner(owner, reason)
		return nil
	}
	if t.before.Status == domain.StatusClosed {
		return t.invalid("reassigned", "conversation is closed")
	}
	if owner == nil {
		return apperrors.NewAssignmentError("a conversation must always have an owner", map[string]any{
			"item_id":        t.before.ID,
			"current_status": t.before.Status,
			"assigned_to":    t.before.AssignedTo,
		})
	}
	target := domain.StatusAssigned
	switch {
	case t.m.IsAI(*owner):
		target = domain.StatusAIHandling
	case t.before.Status == domain.StatusAIHandling:
		// direct handoff bypasses the queue
		target = domain.StatusStaffHandling
	case t.before.Status == domain.StatusStaffHandling && sameOwner(t.before.AssignedTo, owner):
		target = domain.StatusStaffHandling
	}
	if sameOwner(t.before.AssignedTo, owner) && t.before.Status == target {
		return nil
	}
	if target != t.before.Status {
		if err := t.moveTo(target, reason); err != nil {
			return err
		}
	}
	t.setOwner(owner, reason)
	return nil
}

func (t *transition) queue() error {
	if !t.before.Channel.IsChat() {
		return t.invalid(domain.StatusQueued, "only conversations can be queued")
	}
	if t.before.Status == domain.StatusQueued {
		return nil
	}
	if t.before.Status != domain.StatusAIHandling {
		return t.invalid(domain.StatusQueued, "only AI-handled conversations enter the queue")
	}
	return t.moveTo(domain.StatusQueued, "waiting for staff")
}

func (t *transition) requireStaffActor() error {
	if t.actor.Type != domain.ActorStaff || t.actor.ID == "" {
		return apperrors.NewForbidden("staff actor required", map[string]any{"item_id": t.before.ID})
	}
	return nil
}

func (t *transition) takeover() error {
	if !t.before.Channel.IsChat() {
		return t.invalid(domain.StatusStaffHandling, "only conversations can be taken over")
	}
	if err := t.requireStaffActor(); err != nil {
		return err
	}
	owner := t.before.OwnerOrEmpty()
	switch t.before.Status {
	case domain.StatusClosed:
		return t.invalid(domain.StatusStaffHandling, "conversation is closed")
	case domain.StatusStaffHandling, domain.StatusAssigned:
		if owner == t.actor.ID {
			break
		}
		return apperrors.NewAssignmentError("conversation is owned by another staff member", map[string]any{
			"item_id":        t.before.ID,
			"current_status": t.before.Status,
			"assigned_to":    owner,
			"requested_by":   t.actor.ID,
		})
	}
	if err := t.moveTo(domain.StatusStaffHandling, "takeover"); err != nil {
		return err
	}
	actorID := t.actor.ID
	t.setOwner(&actorID, "")
	return nil
}

func (t *transition) pickup() error {
	if !t.before.Channel.IsChat() {
		return t.invalid(domain.StatusStaffHandling, "only conversations can be picked up")
	}
	if err := t.requireStaffActor(); err != nil {
		return err
	}
	owner := t.before.OwnerOrEmpty()
	switch t.before.Status {
	case domain.StatusQueued:
	case domain.StatusAssigned, domain.StatusStaffHandling:
		if owner != t.actor.ID {
			return apperrors.NewAssignmentError("conversation was already picked up", map[string]any{
				"item_id":        t.before.ID,
				"current_status": t.before.Status,
				"assigned_to":    owner,
				"requested_by":   t.actor.ID,
			})
		}
	default:
		return t.invalid(domain.StatusStaffHandling, "conversation is not waiting for staff")
	}
	if err := t.moveTo(domain.StatusStaffHandling, "pickup"); err != nil {
		return err
	}
	actorID := t.actor.ID
	t.setOwner(&actorID, "")
	return nil
}

func (t *transition) resolutionFor(requested string) (domain.ResolutionType, error) {
	switch domain.ResolutionType(requested) {
	case domain.ResolutionAIResolved, domain.ResolutionStaffResolved, domain.ResolutionInactiveClosed:
		return domain.ResolutionType(requested), nil
	}
	switch requested {
	case "resolved":
		if t.actor.Type == domain.ActorStaff {
			return domain.ResolutionStaffResolved, nil
		}
		return domain.ResolutionAIResolved, nil
	case "", "closed":
		return domain.ResolutionInactiveClosed, nil
	}
	return "", apperrors.NewValidationError("unknown resolution type", map[string]any{"resolution_type": requested})
}

func (t *transition) closeConversation(requested string) error {
	if !t.before.Channel.IsChat() {
		return t.invalid(domain.StatusClosed, "tickets are closed through a status change")
	}
	if t.before.Status == domain.StatusClosed {
		return nil
	}
	resolution, err := t.resolutionFor(requested)
	if err != nil {
		return err
	}
	t.next.ResolutionType = &resolution
	return t.moveTo(domain.StatusClosed, string(resolution))
}

func (t *transition) autoClose() error {
	if t.before.Channel.IsChat() {
		if t.before.Status == domain.StatusClosed {
			return nil
		}
		resolution := domain.ResolutionInactiveClosed
		t.next.ResolutionType = &resolution
		return t.moveTo(domain.StatusClosed, "inactivity")
	}
	if t.before.Status != domain.StatusResolved {
		return t.invalid(domain.StatusClosed, "only resolved tickets close on inactivity")
	}
	return t.moveTo(domain.StatusClosed, "inactivity")
}

func (t *transition) absorb(into string) error {
	if into == "" || into == t.before.ID {
		return apperrors.NewValidationError("invalid merge target", map[string]any{"item_id": t.before.ID})
	}
	from := t.before.Status
	t.next.MergedInto = &into
	t.next.Snooze = nil
	t.next.Status = domain.StatusClosed
	if t.before.Channel.IsChat() && t.next.ResolutionType == nil {
		r := domain.ResolutionInactiveClosed
		t.next.ResolutionType = &r
	}
	if from != domain.StatusClosed {
		ts := t.now
		t.next.ClosedAt = &ts
		t.emit(events.EventItemStatusChanged, events.StatusChangedPayload{OldStatus: from, NewStatus: domain.StatusClosed})
	}
	t.changed = true
	t.note(domain.NoteMerge, fmt.Sprintf("Merged into %s at %s", into, t.now.Format(time.RFC3339)),
		map[string]any{"status": from},
		map[string]any{"status": domain.StatusClosed, "merged_into": into})
	return nil
}

func (t *transition) attachMerged(absorbed []string) error {
	if t.before.Terminal() {
		return t.invalid("merge target", "terminal items cannot absorb others")
	}
	if len(absorbed) == 0 {
		return nil
	}
	t.next.MergedFrom = append(t.next.MergedFrom, absorbed...)
	t.changed = true
	for _, id := range absorbed {
		t.note(domain.NoteMerge, fmt.Sprintf("Merged %s into this item at %s", id, t.now.Format(time.RFC3339)),
			nil, map[string]any{"merged_from": id, "merged_at": t.now})
	}
	return nil
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
