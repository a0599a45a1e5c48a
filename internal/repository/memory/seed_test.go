package memory

import (
	"testing"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

func TestParseStaffSeed(t *testing.T) {
	members, err := ParseStaffSeed(" S1:agent:Sam , ADM:admin, S2 ,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	if members[0].ID != "S1" || members[0].FirstName != "Sam" || members[0].Role != domain.StaffRoleAgent {
		t.Fatalf("unexpected first member %+v", members[0])
	}
	if members[1].Role != domain.StaffRoleAdmin || members[1].FirstName != "ADM" {
		t.Fatalf("unexpected admin %+v", members[1])
	}
	if !members[2].Active || members[2].Email != "s2@staff.local" {
		t.Fatalf("unexpected defaults %+v", members[2])
	}
}

func TestParseStaffSeedRejectsBadInput(t *testing.T) {
	for _, seed := range []string{":agent", "S1:boss", "S1,S1"} {
		if _, err := ParseStaffSeed(seed); err == nil {
			t.Errorf("%q: expected error", seed)
		}
	}
	members, err := ParseStaffSeed("")
	if err != nil || len(members) != 0 {
		t.Fatalf("empty seed: %v %v", members, err)
	}
}
