package views

import (
	"testing"

	"ambient-pro/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSets() []*models.Set {
	return []*models.Set{
		{ID: "s1", UserID: "setter-1", CloserID: "closer-1", CloserName: "Rae Ortiz", CustomerName: "Dana Whitfield",
			Address: "14 Mesa Dr", PhoneNumber: "555-0100", Email: "dana@example.com", Notes: "gate code 42",
			AppointmentDate: "2024-03-09", AppointmentTime: "17:30", Status: models.SetStatusAssigned, Office: "Phoenix"},
		{ID: "s2", UserID: "setter-2", CloserID: "closer-2", CloserName: "Kim Lo", CustomerName: "Ana Cruz",
			Address: "9 Palo Verde Ln", PhoneNumber: "555-0142", Notes: "dog",
			AppointmentDate: "2024-03-08", AppointmentTime: "18:00", Status: models.SetStatusNotClosed, Office: "Tucson"},
		{ID: "s3", UserID: "setter-1", CustomerName: "Luis Peña",
			Address: "300 Sonoran Way", PhoneNumber: "555-0199",
			AppointmentDate: "2024-03-08", AppointmentTime: "09:00", Status: models.SetStatusActive, Office: "Phoenix"},
	}
}

func ids(sets []*models.Set) []string {
	out := make([]string, len(sets))
	for i, s := range sets {
		out[i] = s.ID
	}
	return out
}

func TestFilterVisibleSets_CloserNeverSeesOthersContact(t *testing.T) {
	input := sampleSets()
	viewer := models.Viewer{ID: "closer-1", Role: models.RoleCloser}

	got := FilterVisibleSets(input, viewer)
	require.Len(t, got, 3)

	for i, s := range got {
		if input[i].CloserID == viewer.ID {
			assert.Equal(t, input[i].CustomerName, s.CustomerName)
			continue
		}
		assert.NotEqual(t, input[i].CustomerName, s.CustomerName)
		assert.NotEqual(t, input[i].Address, s.Address)
		assert.NotEqual(t, input[i].PhoneNumber, s.PhoneNumber)
		assert.NotEqual(t, input[i].Notes, s.Notes)
	}

	want := &models.Set{
		ID: "s2", UserID: "setter-2", CloserID: "closer-2", CloserName: "Kim Lo",
		CustomerName: HiddenCustomerName, Address: HiddenAddress, PhoneNumber: HiddenPhone, Notes: HiddenNotes,
		AppointmentDate: "2024-03-08", AppointmentTime: "18:00", Status: models.SetStatusNotClosed, Office: "Tucson",
	}
	if diff := cmp.Diff(want, got[1]); diff != "" {
		t.Errorf("redacted set mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterVisibleSets_ByRole(t *testing.T) {
	tests := []struct {
		name     string
		viewer   models.Viewer
		redacted []string
	}{
		{"admin", models.Viewer{ID: "a", Role: models.RoleAdmin}, nil},
		{"manager", models.Viewer{ID: "m", Role: models.RoleManager}, nil},
		{"setter", models.Viewer{ID: "setter-1", Role: models.RoleSetter}, []string{"s2"}},
		{"closer", models.Viewer{ID: "closer-2", Role: models.RoleCloser}, []string{"s1", "s3"}},
		{"unknown role", models.Viewer{ID: "x", Role: "guest"}, []string{"s1", "s2", "s3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var redacted []string
			for _, s := range FilterVisibleSets(sampleSets(), tt.viewer) {
				if s.CustomerName == HiddenCustomerName {
					redacted = append(redacted, s.ID)
				}
			}
			if diff := cmp.Diff(tt.redacted, redacted); diff != "" {
				t.Errorf("redacted ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterVisibleSets_DoesNotMutateInput(t *testing.T) {
	input := sampleSets()
	FilterVisibleSets(input, models.Viewer{ID: "nobody", Role: models.RoleSetter})
	assert.Equal(t, "Dana Whitfield", input[0].CustomerName)
}

func TestFilterByTab_AllReturnsNewSlice(t *testing.T) {
	sets := sampleSets()
	admin := models.Viewer{ID: "admin-1", Role: models.RoleAdmin}

	for _, tab := range []Tab{"", TabAll} {
		out := FilterByTab(sets, tab, admin)
		require.Len(t, out, len(sets))
		out[0] = nil
		assert.NotNil(t, sets[0], "tab %q", tab)
	}
}

func TestSearchRunsAfterRedaction(t *testing.T) {
	setter := models.Viewer{ID: "setter-2", Role: models.RoleSetter}

	got := SetView(sampleSets(), setter, SetQuery{Search: "dana"})
	assert.Empty(t, got, "hidden names cannot be searched")

	got = SetView(sampleSets(), setter, SetQuery{Search: "DOG"})
	assert.Equal(t, []string{"s2"}, ids(got))

	got = SetView(sampleSets(), setter, SetQuery{Search: "address hidden"})
	assert.Equal(t, []string{"s3", "s1"}, ids(got))
}

func TestSetView_TabsAndOffice(t *testing.T) {
	admin := models.Viewer{ID: "admin", Role: models.RoleAdmin}
	closer := models.Viewer{ID: "closer-1", Role: models.RoleCloser}
	setter := models.Viewer{ID: "setter-1", Role: models.RoleSetter}

	tests := []struct {
		name   string
		viewer models.Viewer
		query  SetQuery
		want   []string
	}{
		{"all sorted by appointment", admin, SetQuery{}, []string{"s3", "s2", "s1"}},
		{"active", admin, SetQuery{Tab: TabActive}, []string{"s3"}},
		{"assigned", admin, SetQuery{Tab: TabAssigned}, []string{"s1"}},
		{"not closed", admin, SetQuery{Tab: TabNotClosed}, []string{"s2"}},
		{"inactive", admin, SetQuery{Tab: TabInactive}, []string{}},
		{"mine as closer", closer, SetQuery{Tab: TabMine}, []string{"s1"}},
		{"mine as setter", setter, SetQuery{Tab: TabMine}, []string{"s3", "s1"}},
		{"office", admin, SetQuery{Office: "phoenix"}, []string{"s3", "s1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(SetView(sampleSets(), tt.viewer, tt.query))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGroupByAppointmentDate(t *testing.T) {
	groups := GroupByAppointmentDate(SortByAppointment(sampleSets()))

	got := map[string][]string{}
	var order []string
	for _, g := range groups {
		order = append(order, g.Date)
		got[g.Date] = ids(g.Sets)
	}
	assert.Equal(t, []string{"2024-03-08", "2024-03-09"}, order)
	if diff := cmp.Diff(map[string][]string{
		"2024-03-08": {"s3", "s2"},
		"2024-03-09": {"s1"},
	}, got); diff != "" {
		t.Errorf("groups (-want +got):\n%s", diff)
	}
}

func sampleProjects() []*models.Project {
	return []*models.Project{
		{ID: "p1", UserID: "setter-1", CloserID: "closer-1", CustomerName: "Dana Whitfield", Lender: "Sunlight", DealNumber: 2, Status: models.ProjectStatusPermit},
		{ID: "p2", UserID: "setter-2", CloserID: "closer-2", CustomerName: "Ana Cruz", Lender: "GoodLeap", DealNumber: 1, Status: models.ProjectStatusSiteSurvey},
		{ID: "p3", UserID: "setter-1", CloserID: "closer-2", CustomerName: "Luis Peña", Lender: "Mosaic", DealNumber: 1, Status: models.ProjectStatusCancelled},
		{ID: "p4", UserID: "setter-1", CloserID: "closer-1", CustomerName: "Jo Hart", Lender: "Sunlight", DealNumber: 3, Status: models.ProjectStatusPermit},
	}
}

func projectIDs(ps []*models.Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestProjects_FilterAndGroup(t *testing.T) {
	visible := VisibleProjects(sampleProjects(), models.Viewer{ID: "closer-2", Role: models.RoleCloser})
	assert.Equal(t, []string{"p2", "p3"}, projectIDs(visible))

	filtered := FilterProjects(sampleProjects(), ProjectQuery{OwnerID: "setter-1", Search: "sunlight"})
	assert.Equal(t, []string{"p1", "p4"}, projectIDs(filtered))

	filtered = FilterProjects(sampleProjects(), ProjectQuery{Statuses: []models.ProjectStatus{models.ProjectStatusCancelled}})
	assert.Equal(t, []string{"p3"}, projectIDs(filtered))

	groups := GroupProjectsByStatus(sampleProjects())
	var order []models.ProjectStatus
	for _, g := range groups {
		order = append(order, g.Status)
	}
	assert.Equal(t, []models.ProjectStatus{models.ProjectStatusSiteSurvey, models.ProjectStatusPermit, models.ProjectStatusCancelled}, order)
	assert.Equal(t, []string{"p1", "p4"}, projectIDs(groups[1].Projects))

	sorted := SortProjectsByDeal(sampleProjects())
	assert.Equal(t, []string{"p3", "p1", "p4", "p2"}, projectIDs(sorted))
}

func TestLeaderboard(t *testing.T) {
	users := []*models.User{
		{ID: "u1", Name: "Sam", Role: models.RoleSetter, DealCount: 5, TotalCommission: 6000},
		{ID: "u2", Name: "Ana", Role: models.RoleCloser, DealCount: 7, TotalCommission: 5000},
		{ID: "u3", Name: "Bo", Role: models.RoleSetter, DealCount: 5, TotalCommission: 6500},
		{ID: "u4", Name: "Root", Role: models.RoleAdmin, DealCount: 99, TotalCommission: 99999},
	}

	byDeals := Leaderboard(users, MetricDeals)
	want := []LeaderboardEntry{
		{Rank: 1, UserID: "u2", Name: "Ana", Role: models.RoleCloser, DealCount: 7, TotalCommission: 5000},
		{Rank: 2, UserID: "u3", Name: "Bo", Role: models.RoleSetter, DealCount: 5, TotalCommission: 6500},
		{Rank: 2, UserID: "u1", Name: "Sam", Role: models.RoleSetter, DealCount: 5, TotalCommission: 6000},
	}
	if diff := cmp.Diff(want, byDeals); diff != "" {
		t.Errorf("leaderboard by deals (-want +got):\n%s", diff)
	}

	byCommission := Leaderboard(users, MetricCommission)
	assert.Equal(t, "u3", byCommission[0].UserID)
	assert.Equal(t, []int{1, 2, 3}, []int{byCommission[0].Rank, byCommission[1].Rank, byCommission[2].Rank})
}

func TestCandidateClosers(t *testing.T) {
	users := []*models.User{
		{ID: "c1", Name: "Rae", Role: models.RoleCloser, Office: "Phoenix"},
		{ID: "c2", Name: "Kim", Role: models.RoleCloser, Office: "Tucson"},
		{ID: "c3", Name: "Ari", Role: models.RoleCloser, Office: "Phoenix"},
		{ID: "s1", Name: "Sam", Role: models.RoleSetter, Office: "Phoenix"},
	}

	var got []string
	for _, u := range CandidateClosers(users, "phoenix") {
		got = append(got, u.ID)
	}
	assert.Equal(t, []string{"c3", "c1"}, got)
	assert.Len(t, CandidateClosers(users, ""), 3)
}
