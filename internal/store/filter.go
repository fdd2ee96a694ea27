package store

import (
	"time"

	"ambient-pro/internal/models"
)

// SetFilter selects sets. Empty fields match everything.
type SetFilter struct {
	UserID   string
	CloserID string
	Office   string
	Statuses []models.SetStatus
}

func (f SetFilter) Matches(s *models.Set) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.CloserID != "" && s.CloserID != f.CloserID {
		return false
	}
	if f.Office != "" && s.Office != f.Office {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// ProjectFilter selects projects. Empty fields match everything.
type ProjectFilter struct {
	UserID   string
	Office   string
	Statuses []models.ProjectStatus
}

func (f ProjectFilter) Matches(p *models.Project) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.Office != "" && p.Office != f.Office {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if p.Status == st {
			return true
		}
	}
	return false
}

// UserFilter selects users. Empty fields match everything.
type UserFilter struct {
	Role   models.Role
	Office string
}

func (f UserFilter) Matches(u *models.User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Office != "" && u.Office != f.Office {
		return false
	}
	return true
}

// SetPatch lists the mutable set fields. Nil fields are left unchanged.
type SetPatch struct {
	Status      *models.SetStatus
	CloserID    *string
	CloserName  *string
	Office      *string
	UtilityBill *string
	Notes       *string
}

// Apply writes the patch onto s, bumping its version.
func (p SetPatch) Apply(s *models.Set, now time.Time) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.CloserID != nil {
		s.CloserID = *p.CloserID
	}
	if p.CloserName != nil {
		s.CloserName = *p.CloserName
	}
	if p.Office != nil {
		s.Office = *p.Office
	}
	if p.UtilityBill != nil {
		s.UtilityBill = *p.UtilityBill
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	s.Version++
	s.UpdatedAt = now
}

// ProjectPatch lists the fields that change as a project moves through the
// pipeline. Commission fields are never patchable.
type ProjectPatch struct {
	Status         *models.ProjectStatus
	PermitDate     *string
	InstallDate    *string
	InspectionDate *string
	PTODate        *string
}

// Apply writes the patch onto p, bumping its version.
func (pp ProjectPatch) Apply(p *models.Project, now time.Time) {
	if pp.Status != nil {
		p.Status = *pp.Status
	}
	if pp.PermitDate != nil {
		p.PermitDate = *pp.PermitDate
	}
	if pp.InstallDate != nil {
		p.InstallDate = *pp.InstallDate
	}
	if pp.InspectionDate != nil {
		p.InspectionDate = *pp.InspectionDate
	}
	if pp.PTODate != nil {
		p.PTODate = *pp.PTODate
	}
	p.Version++
	p.UpdatedAt = now
}
