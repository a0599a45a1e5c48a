package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
)

// StaffDirectory is an in-memory repository.StaffRepository.
type StaffDirectory struct {
	mu    sync.RWMutex
	staff map[string]domain.StaffMember
}

// NewStaffDirectory seeds a directory with members.
func NewStaffDirectory(members ...domain.StaffMember) *StaffDirectory {
	d := &StaffDirectory{staff: make(map[string]domain.StaffMember, len(members))}
	for _, m := range members {
		d.staff[m.ID] = m
	}
	return d
}

func (d *StaffDirectory) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (d *StaffDirectory) Upsert(_ context.Context, staff *domain.StaffMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[staff.ID] = *staff
	return nil
}

func (d *StaffDirectory) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.StaffMember
	for _, m := range d.staff {
		if filter.Role != nil && m.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && m.Active != *filter.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
