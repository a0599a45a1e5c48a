package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent StaffRole = "agent"
	StaffRoleAdmin StaffRole = "admin"
)

// StaffMember models a support agent as seen by the assignment resolver.
type StaffMember struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Role      StaffRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the name used in audit notes.
func (s *StaffMember) DisplayName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}
