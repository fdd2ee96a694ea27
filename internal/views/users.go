package views

import (
	"sort"
	"strings"

	"ambient-pro/internal/models"
)

// Metric ranks the leaderboard.
type Metric string

const (
	MetricDeals      Metric = "deals"
	MetricCommission Metric = "commission"
)

// LeaderboardEntry is one ranked salesperson.
type LeaderboardEntry struct {
	Rank            int         `json:"rank"`
	UserID          string      `json:"userId"`
	Name            string      `json:"name"`
	Role            models.Role `json:"role"`
	Office          string      `json:"office,omitempty"`
	DealCount       int         `json:"dealCount"`
	TotalCommission float64     `json:"totalCommission"`
}

// Leaderboard ranks setters and closers by metric, highest first. Equal
// scores share a rank and the next rank skips accordingly.
func Leaderboard(users []*models.User, by Metric) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		if u.Role != models.RoleSetter && u.Role != models.RoleCloser {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			UserID:          u.ID,
			Name:            u.Name,
			Role:            u.Role,
			Office:          u.Office,
			DealCount:       u.DealCount,
			TotalCommission: u.TotalCommission,
		})
	}

	score := func(e LeaderboardEntry) float64 {
		if by == MetricCommission {
			return e.TotalCommission
		}
		return float64(e.DealCount)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := score(entries[i]), score(entries[j])
		if si != sj {
			return si > sj
		}
		return entries[i].Name < entries[j].Name
	})

	for i := range entries {
		if i > 0 && score(entries[i]) == score(entries[i-1]) {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

// CandidateClosers lists closers available for routing, optionally limited to
// one office. Office scoping happens here only; assignment does not check it.
func CandidateClosers(users []*models.User, office string) []*models.User {
	out := make([]*models.User, 0)
	for _, u := range users {
		if u.Role != models.RoleCloser {
			continue
		}
		if office != "" && !strings.EqualFold(u.Office, office) {
			continue
		}
		out = append(out, u.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
