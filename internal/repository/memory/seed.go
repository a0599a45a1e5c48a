package memory

import (
	"fmt"
	"strings"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

// ParseStaffSeed reads a comma separated list of "id:role:name" entries. Role defaults to
// agent and name to the id. Every seeded member is active.
func ParseStaffSeed(seed string) ([]domain.StaffMember, error) {
	var members []domain.StaffMember
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(seed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		id := strings.TrimSpace(parts[0])
		if id == "" {
			return nil, fmt.Errorf("staff seed %q: empty id", entry)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("staff seed: duplicate id %q", id)
		}
		seen[id] = struct{}{}

		member := domain.StaffMember{ID: id, FirstName: id, Role: domain.StaffRoleAgent, Active: true}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			switch role := domain.StaffRole(strings.ToLower(strings.TrimSpace(parts[1]))); role {
			case domain.StaffRoleAgent, domain.StaffRoleAdmin:
				member.Role = role
			default:
				return nil, fmt.Errorf("staff seed %q: unknown role %q", entry, parts[1])
			}
		}
		if len(parts) > 2 {
			if name := strings.TrimSpace(parts[2]); name != "" {
				member.FirstName = name
			}
		}
		member.Email = strings.ToLower(id) + "@staff.local"
		members = append(members, member)
	}
	return members, nil
}
