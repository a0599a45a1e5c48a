package service

import (
	"context"
	"testing"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

func TestAssignValidatesOwner(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	admin := domain.StaffActor("ADM")

	_, err := e.assignment.Assign(ctx, admin, item.ID, strPtr("ghost"), nil)
	expectCode(t, err, apperrors.CodeNotFound)

	_, err = e.assignment.Assign(ctx, admin, item.ID, strPtr("S3"), nil)
	expectCode(t, err, apperrors.CodeAssignment)

	_, err = e.assignment.Assign(ctx, admin, "missing", strPtr("S1"), nil)
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestAssignSameOwnerIsNoop(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	admin := domain.StaffActor("ADM")

	first, err := e.assignment.Assign(ctx, admin, item.ID, strPtr("S1"), nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	second, err := e.assignment.Assign(ctx, admin, item.ID, strPtr("S1"), nil)
	if err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if second.Version != first.Version {
		t.Fatalf("repeat assign changed version %d -> %d", first.Version, second.Version)
	}

	unassigned, err := e.assignment.Assign(ctx, admin, item.ID, nil, nil)
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if unassigned.AssignedTo != nil {
		t.Fatalf("expected no owner, got %q", unassigned.OwnerOrEmpty())
	}
}

func TestAssignRejectsStaleVersion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	item := e.createTicket(t, "C1")
	admin := domain.StaffActor("ADM")
	seen := item.Version

	if _, err := e.assignment.Assign(ctx, admin, item.ID, strPtr("S1"), &seen); err != nil {
		t.Fatalf("assign with current version: %v", err)
	}
	_, err := e.assignment.Assign(ctx, admin, item.ID, strPtr("S2"), &seen)
	expectCode(t, err, apperrors.CodeAssignment)
	if got := e.item(t, item.ID); got.OwnerOrEmpty() != "S1" {
		t.Fatalf("stale assign overwrote owner: %q", got.OwnerOrEmpty())
	}
}

func TestAssignChatNeedsOwner(t *testing.T) {
	e := newTestEngine(t)
	chat := e.createChat(t, "C1")
	_, err := e.assignment.Assign(context.Background(), domain.StaffActor("ADM"), chat.ID, nil, nil)
	expectCode(t, err, apperrors.CodeAssignment)

	assigned, err := e.assignment.Assign(context.Background(), domain.StaffActor("ADM"), chat.ID, strPtr("S1"), nil)
	if err != nil {
		t.Fatalf("assign chat: %v", err)
	}
	if assigned.Status != domain.StatusStaffHandling {
		t.Fatalf("direct handoff from AI should be staff_handling, got %s", assigned.Status)
	}
}

func TestBulkAssignReportsPerItem(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	staff := domain.StaffActor("S1")

	a := e.createTicket(t, "C1")
	b := e.createTicket(t, "C1")
	c := e.createTicket(t, "C1")
	if _, err := e.merges.Merge(ctx, staff, c.ID, []string{b.ID}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	results, err := e.assignment.BulkAssign(ctx, staff, []string{a.ID, b.ID, c.ID, a.ID}, strPtr("S2"))
	if err != nil {
		t.Fatalf("bulk assign: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected duplicates to collapse into 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("unexpected failures: %v / %v", results[0].Err, results[2].Err)
	}
	expectCode(t, results[1].Err, apperrors.CodeItemFrozen)

	if got := e.item(t, a.ID); got.OwnerOrEmpty() != "S2" {
		t.Fatalf("a not assigned: %q", got.OwnerOrEmpty())
	}
	if got := e.item(t, b.ID); got.AssignedTo != nil {
		t.Fatalf("frozen item was assigned: %q", got.OwnerOrEmpty())
	}
	if got := e.item(t, c.ID); got.OwnerOrEmpty() != "S2" {
		t.Fatalf("c not assigned after failure on b: %q", got.OwnerOrEmpty())
	}

	_, err = e.assignment.BulkAssign(ctx, staff, []string{a.ID}, strPtr("ghost"))
	expectCode(t, err, apperrors.CodeNotFound)
}
