// Package views derives role-scoped, tab-scoped and search-scoped views over
// the raw Sets and Projects collections. Every function is pure and returns
// copies; inputs are never modified.
package views

import (
	"sort"
	"strings"

	"ambient-pro/internal/models"
)

// Placeholders shown in place of contact fields the viewer may not see.
const (
	HiddenCustomerName = "Appointment Scheduled"
	HiddenAddress      = "Address Hidden"
	HiddenPhone        = "Phone Hidden"
	HiddenNotes        = "Notes Hidden"
)

// FilterVisibleSets redacts the sets the viewer does not own. Admins and
// managers see everything; closers own the sets assigned to them and setters
// own the sets they created.
func FilterVisibleSets(sets []*models.Set, viewer models.Viewer) []*models.Set {
	out := make([]*models.Set, 0, len(sets))
	for _, s := range sets {
		cp := s.Clone()
		if !ownsSet(viewer, s) {
			redactSet(cp)
		}
		out = append(out, cp)
	}
	return out
}

func ownsSet(viewer models.Viewer, s *models.Set) bool {
	switch {
	case viewer.SeesEverything():
		return true
	case viewer.Role == models.RoleCloser:
		return s.CloserID != "" && s.CloserID == viewer.ID
	case viewer.Role == models.RoleSetter:
		return s.UserID != "" && s.UserID == viewer.ID
	}
	return false
}

func redactSet(s *models.Set) {
	s.CustomerName = HiddenCustomerName
	s.Address = HiddenAddress
	s.PhoneNumber = HiddenPhone
	s.Notes = HiddenNotes
	s.Email = ""
	s.UtilityBill = ""
}

// Tab is a dashboard tab over the Sets collection.
type Tab string

const (
	TabAll       Tab = "all"
	TabActive    Tab = "active"
	TabAssigned  Tab = "assigned"
	TabNotClosed Tab = "not_closed"
	TabInactive  Tab = "inactive"
	TabMine      Tab = "mine"
)

func (t Tab) Valid() bool {
	switch t {
	case TabAll, TabActive, TabAssigned, TabNotClosed, TabInactive, TabMine:
		return true
	}
	return false
}

// FilterByTab keeps the sets shown on tab. An empty tab means all.
func FilterByTab(sets []*models.Set, tab Tab, viewer models.Viewer) []*models.Set {
	all := tab == "" || tab == TabAll
	out := make([]*models.Set, 0, len(sets))
	for _, s := range sets {
		if all || onTab(s, tab, viewer) {
			out = append(out, s)
		}
	}
	return out
}

func onTab(s *models.Set, tab Tab, viewer models.Viewer) bool {
	switch tab {
	case TabActive:
		return s.Status == models.SetStatusActive
	case TabAssigned:
		return s.Status == models.SetStatusAssigned
	case TabNotClosed:
		return s.Status == models.SetStatusNotClosed
	case TabInactive:
		return s.Status == models.SetStatusInactive
	case TabMine:
		if viewer.Role == models.RoleCloser {
			return s.CloserID == viewer.ID
		}
		return s.UserID == viewer.ID
	}
	return false
}

// FilterByOffice keeps sets in office. An empty office keeps everything.
func FilterByOffice(sets []*models.Set, office string) []*models.Set {
	if office == "" {
		return sets
	}
	out := make([]*models.Set, 0, len(sets))
	for _, s := range sets {
		if strings.EqualFold(s.Office, office) {
			out = append(out, s)
		}
	}
	return out
}

// SearchSets matches query case-insensitively against the displayed fields.
// Run it after FilterVisibleSets so hidden values cannot be probed.
func SearchSets(sets []*models.Set, query string) []*models.Set {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sets
	}
	out := make([]*models.Set, 0, len(sets))
	for _, s := range sets {
		if containsAny(q, s.CustomerName, s.Address, s.PhoneNumber, s.CloserName, s.Office, s.Notes) {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(q string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// SortByAppointment orders sets by appointment date then time, earliest first.
func SortByAppointment(sets []*models.Set) []*models.Set {
	out := append([]*models.Set(nil), sets...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AppointmentDate != out[j].AppointmentDate {
			return out[i].AppointmentDate < out[j].AppointmentDate
		}
		return out[i].AppointmentTime < out[j].AppointmentTime
	})
	return out
}

// SetGroup is one appointment day.
type SetGroup struct {
	Date string        `json:"date"`
	Sets []*models.Set `json:"sets"`
}

// GroupByAppointmentDate buckets sets per day in date order, keeping the
// input order within a day.
func GroupByAppointmentDate(sets []*models.Set) []SetGroup {
	index := make(map[string]int)
	var groups []SetGroup
	for _, s := range sets {
		i, ok := index[s.AppointmentDate]
		if !ok {
			i = len(groups)
			index[s.AppointmentDate] = i
			groups = append(groups, SetGroup{Date: s.AppointmentDate})
		}
		groups[i].Sets = append(groups[i].Sets, s)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date < groups[j].Date })
	return groups
}

// SetQuery is what a dashboard asks for.
type SetQuery struct {
	Tab    Tab
	Office string
	Search string
}

// SetView runs the full pipeline: redact, tab, office, search, sort.
func SetView(sets []*models.Set, viewer models.Viewer, q SetQuery) []*models.Set {
	visible := FilterVisibleSets(sets, viewer)
	visible = FilterByTab(visible, q.Tab, viewer)
	visible = FilterByOffice(visible, q.Office)
	visible = SearchSets(visible, q.Search)
	return SortByAppointment(visible)
}
