package dto

import (
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

// StaffPutRequest payload for creating or replacing a staff member.
type StaffPutRequest struct {
	FirstName string           `json:"firstName"`
	LastName  string           `json:"lastName"`
	Email     string           `json:"email"`
	Role      domain.StaffRole `json:"role"`
	Active    *bool            `json:"active"`
}

// StaffResponse representation.
type StaffResponse struct {
	ID        string           `json:"id"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Email     string           `json:"email"`
	Role      domain.StaffRole `json:"role"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
