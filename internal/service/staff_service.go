package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	apperrors "github.com/spec-kit/lifecycle-engine/pkg/errorutil"
)

// StaffService manages the staff directory used for assignment and escalation targets.
type StaffService struct {
	staff repository.StaffRepository
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role   *domain.StaffRole
	Active *bool
	Limit  int
	Offset int
}

// StaffInput carries the editable staff fields.
type StaffInput struct {
	FirstName string
	LastName  string
	Email     string
	Role      domain.StaffRole
	Active    bool
}

// NewStaffService constructs the service.
func NewStaffService(staff repository.StaffRepository) *StaffService {
	return &StaffService{staff: staff}
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required", nil)
	}
	return nil
}

// ListStaffMembers lists staff with filters. Any staff member may read the directory.
func (s *StaffService) ListStaffMembers(ctx context.Context, filters StaffListFilters) ([]domain.StaffMember, error) {
	list, err := s.staff.List(ctx, repository.StaffFilter{
		Role:   filters.Role,
		Active: filters.Active,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// GetStaffMember fetches one staff member.
func (s *StaffService) GetStaffMember(ctx context.Context, id string) (*domain.StaffMember, error) {
	staff, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// PutStaffMember creates or replaces a staff record (admin only). Deactivated staff can no
// longer receive items or escalations.
func (s *StaffService) PutStaffMember(ctx context.Context, actor *domain.StaffMember, id string, input StaffInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewValidationError("staff id is required", nil)
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, apperrors.NewValidationError("firstName is required", nil)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": input.Email})
	}
	if input.Role == "" {
		input.Role = domain.StaffRoleAgent
	}
	if input.Role != domain.StaffRoleAgent && input.Role != domain.StaffRoleAdmin {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": input.Role})
	}
	if actor.ID == id && (!input.Active || input.Role != domain.StaffRoleAdmin) {
		return nil, apperrors.NewValidationError("admins cannot demote or deactivate themselves", nil)
	}
	staff := &domain.StaffMember{
		ID:        id,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Role:      input.Role,
		Active:    input.Active,
	}
	if err := s.staff.Upsert(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}
