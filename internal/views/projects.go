package views

import (
	"sort"
	"strings"

	"ambient-pro/internal/models"
)

// VisibleProjects keeps the projects the viewer took part in. Admins and
// managers see all of them.
func VisibleProjects(projects []*models.Project, viewer models.Viewer) []*models.Project {
	out := make([]*models.Project, 0, len(projects))
	for _, p := range projects {
		if viewer.SeesEverything() || p.UserID == viewer.ID || p.CloserID == viewer.ID || p.ClosedBy == viewer.ID {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ProjectQuery filters projects. Empty fields match everything.
type ProjectQuery struct {
	Statuses []models.ProjectStatus
	OwnerID  string
	Search   string
}

func FilterProjects(projects []*models.Project, q ProjectQuery) []*models.Project {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]*models.Project, 0, len(projects))
	for _, p := range projects {
		if q.OwnerID != "" && p.UserID != q.OwnerID {
			continue
		}
		if len(q.Statuses) > 0 && !hasStatus(q.Statuses, p.Status) {
			continue
		}
		if search != "" && !containsAny(search, p.CustomerName, p.Address, p.CloserName, p.Lender, p.Office) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasStatus(statuses []models.ProjectStatus, s models.ProjectStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ProjectGroup is one pipeline stage.
type ProjectGroup struct {
	Status   models.ProjectStatus `json:"status"`
	Projects []*models.Project    `json:"projects"`
}

// GroupProjectsByStatus buckets projects in pipeline order with cancelled
// last. Empty stages are omitted.
func GroupProjectsByStatus(projects []*models.Project) []ProjectGroup {
	order := append(append([]models.ProjectStatus(nil), models.ProjectPipeline...), models.ProjectStatusCancelled)
	buckets := make(map[models.ProjectStatus][]*models.Project)
	for _, p := range projects {
		buckets[p.Status] = append(buckets[p.Status], p)
	}

	groups := make([]ProjectGroup, 0, len(buckets))
	for _, st := range order {
		if ps := buckets[st]; len(ps) > 0 {
			groups = append(groups, ProjectGroup{Status: st, Projects: ps})
		}
	}
	return groups
}

// SortProjectsByDeal orders projects by owner then deal number.
func SortProjectsByDeal(projects []*models.Project) []*models.Project {
	out := append([]*models.Project(nil), projects...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].DealNumber < out[j].DealNumber
	})
	return out
}
