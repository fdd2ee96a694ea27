package lifecycle

import (
	"context"
	"testing"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSet(t *testing.T) {
	f := newFixture(t)

	set, err := f.engine.CreateSet(context.Background(), models.NewSet{
		UserID:          "setter-1",
		CustomerName:    "Ana Cruz",
		Address:         "9 Palo Verde Ln",
		PhoneNumber:     "555-0142",
		Email:           "ana@example.com",
		AppointmentDate: "2024-03-09",
		AppointmentTime: "18:00",
		Office:          "Tucson",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", set.ID)
	assert.Equal(t, models.SetStatusActive, set.Status)
	assert.Equal(t, int64(1), set.Version)

	stored, err := f.store.GetSet(context.Background(), set.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tucson", stored.Office)
}

func TestCreateSet_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    models.NewSet
		field string
	}{
		{"missing customer", models.NewSet{UserID: "u", Address: "a", PhoneNumber: "5550100", AppointmentDate: "2024-03-09", AppointmentTime: "18:00"}, "customerName"},
		{"bad date", models.NewSet{UserID: "u", CustomerName: "c", Address: "a", PhoneNumber: "5550100", AppointmentDate: "9 March", AppointmentTime: "18:00"}, "appointmentDate"},
		{"bad time", models.NewSet{UserID: "u", CustomerName: "c", Address: "a", PhoneNumber: "5550100", AppointmentDate: "2024-03-09", AppointmentTime: "6pm"}, "appointmentTime"},
		{"bad email", models.NewSet{UserID: "u", CustomerName: "c", Address: "a", PhoneNumber: "5550100", Email: "nope", AppointmentDate: "2024-03-09", AppointmentTime: "18:00"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.CreateSet(context.Background(), tt.in)
			assertCode(t, err, apperrors.ErrCodeValidationFailed)

			stdErr, _ := apperrors.As(err)
			assert.Contains(t, stdErr.Metadata, tt.field)
			assert.Zero(t, f.store.WriteCount())
		})
	}
}

// ==========================
// AssignCloser
// ==========================

func TestAssignCloser_SetsCloserWithoutStatusChange(t *testing.T) {
	f := newFixture(t)
	f.set(t, "set-1", "setter-1", models.SetStatusActive)
	ctx := context.Background()
	_, err := f.store.UpdateSet(ctx, "set-1", setPatchCloser("", ""), storeCondition(0))
	require.NoError(t, err)

	got, err := f.engine.AssignCloser(ctx, "set-1", "closer-7", "Lee Park", AssignOptions{})
	require.NoError(t, err)
	assert.Equal(t, "closer-7", got.CloserID)
	assert.Equal(t, "Lee Park", got.CloserName)
	assert.Equal(t, models.SetStatusActive, got.Status)
}

func TestAssignCloser_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.set(t, "set-1", "setter-1", models.SetStatusAssigned)
	ctx := context.Background()

	first, err := f.engine.AssignCloser(ctx, "set-1", "closer-1", "Rae Ortiz", AssignOptions{})
	require.NoError(t, err)
	writes := f.store.WriteCount()

	second, err := f.engine.AssignCloser(ctx, "set-1", "closer-1", "Rae Ortiz", AssignOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.CloserID, second.CloserID)
	assert.Equal(t, first.CloserName, second.CloserName)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, writes, f.store.WriteCount())
}

func TestAssignCloser_Conflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("different closer already assigned", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "set-1", "setter-1", models.SetStatusAssigned)

		_, err := f.engine.AssignCloser(ctx, "set-1", "closer-2", "Kim Lo", AssignOptions{})
		assertCode(t, err, apperrors.ErrCodeConcurrencyConflict)
	})

	t.Run("reassign replaces the closer", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "set-1", "setter-1", models.SetStatusAssigned)

		got, err := f.engine.AssignCloser(ctx, "set-1", "closer-2", "Kim Lo", AssignOptions{Reassign: true})
		require.NoError(t, err)
		assert.Equal(t, "closer-2", got.CloserID)
		assert.Equal(t, models.SetStatusAssigned, got.Status)
	})

	t.Run("stale version", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "set-1", "setter-1", models.SetStatusAssigned)

		_, err := f.engine.AssignCloser(ctx, "set-1", "closer-2", "Kim Lo", AssignOptions{ExpectedVersion: 4, Reassign: true})
		assertCode(t, err, apperrors.ErrCodeConcurrencyConflict)
	})

	t.Run("inactive set", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "set-1", "setter-1", models.SetStatusInactive)

		_, err := f.engine.AssignCloser(ctx, "set-1", "closer-2", "Kim Lo", AssignOptions{Reassign: true})
		assertCode(t, err, apperrors.ErrCodeValidationFailed)
	})

	t.Run("missing set", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AssignCloser(ctx, "ghost", "closer-2", "Kim Lo", AssignOptions{})
		assertCode(t, err, apperrors.ErrCodeNotFound)
	})
}

// ==========================
// TransitionSet
// ==========================

func TestTransitionSet(t *testing.T) {
	tests := []struct {
		from   models.SetStatus
		to     models.SetStatus
		closer bool
		want   apperrors.ErrorCode
	}{
		{models.SetStatusActive, models.SetStatusAssigned, true, ""},
		{models.SetStatusActive, models.SetStatusAssigned, false, apperrors.ErrCodeValidationFailed},
		{models.SetStatusAssigned, models.SetStatusNotClosed, true, ""},
		{models.SetStatusNotClosed, models.SetStatusAssigned, true, ""},
		{models.SetStatusActive, models.SetStatusInactive, false, ""},
		{models.SetStatusNotClosed, models.SetStatusInactive, true, ""},
		{models.SetStatusAssigned, models.SetStatusClosed, true, apperrors.ErrCodeInvalidTransition},
		{models.SetStatusActive, models.SetStatusNotClosed, true, apperrors.ErrCodeInvalidTransition},
		{models.SetStatusInactive, models.SetStatusActive, true, apperrors.ErrCodeInvalidTransition},
		{models.SetStatusAssigned, models.SetStatusActive, true, apperrors.ErrCodeInvalidTransition},
		{models.SetStatusAssigned, "archived", true, apperrors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			f := newFixture(t)
			set := f.set(t, "set-1", "setter-1", tt.from)
			ctx := context.Background()
			if !tt.closer {
				_, err := f.store.UpdateSet(ctx, "set-1", setPatchCloser("", ""), storeCondition(0))
				require.NoError(t, err)
				set.Version++
			}

			got, err := f.engine.TransitionSet(ctx, "set-1", tt.to, set.Version)
			if tt.want != "" {
				assertCode(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Status)
			assert.Equal(t, set.Version+1, got.Version)
		})
	}
}

// ==========================
// AdvanceProject
// ==========================

func closedProject(t *testing.T, f *fixture) *models.Project {
	t.Helper()
	f.user(t, "setter-1", models.RoleSetter)
	f.set(t, "set-1", "setter-1", models.SetStatusAssigned)
	res, err := f.engine.CloseSet(context.Background(), closeReq("set-1", "setter-1"))
	require.NoError(t, err)
	return res.Project
}

func TestAdvanceProject_WalksPipeline(t *testing.T) {
	f := newFixture(t)
	created := closedProject(t, f)
	ctx := context.Background()

	steps := []struct {
		to   models.ProjectStatus
		date string
	}{
		{models.ProjectStatusPermit, "2024-03-20"},
		{models.ProjectStatusInstall, "2024-04-02"},
		{models.ProjectStatusInspection, "2024-04-10"},
		{models.ProjectStatusPTO, "2024-04-22"},
		{models.ProjectStatusCompleted, ""},
	}
	var p *models.Project
	for _, step := range steps {
		var err error
		p, err = f.engine.AdvanceProject(ctx, "set-1", step.to, step.date)
		require.NoError(t, err, "advance to %s", step.to)
		assert.Equal(t, step.to, p.Status)
	}

	assert.Equal(t, "2024-03-20", p.PermitDate)
	assert.Equal(t, "2024-04-02", p.InstallDate)
	assert.Equal(t, "2024-04-10", p.InspectionDate)
	assert.Equal(t, "2024-04-22", p.PTODate)
	assert.Equal(t, created.CommissionRate, p.CommissionRate)
	assert.Equal(t, created.PaymentAmount, p.PaymentAmount)
	assert.Equal(t, created.DealNumber, p.DealNumber)

	_, err := f.engine.AdvanceProject(ctx, "set-1", models.ProjectStatusCancelled, "")
	assertCode(t, err, apperrors.ErrCodeInvalidTransition)
}

func TestAdvanceProject_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("skipping a stage", func(t *testing.T) {
		f := newFixture(t)
		closedProject(t, f)
		_, err := f.engine.AdvanceProject(ctx, "set-1", models.ProjectStatusInstall, "")
		assertCode(t, err, apperrors.ErrCodeInvalidTransition)
	})

	t.Run("bad date", func(t *testing.T) {
		f := newFixture(t)
		closedProject(t, f)
		_, err := f.engine.AdvanceProject(ctx, "set-1", models.ProjectStatusPermit, "next week")
		assertCode(t, err, apperrors.ErrCodeValidationFailed)
	})

	t.Run("missing project", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AdvanceProject(ctx, "ghost", models.ProjectStatusPermit, "")
		assertCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("cancel from any open stage", func(t *testing.T) {
		f := newFixture(t)
		closedProject(t, f)
		p, err := f.engine.AdvanceProject(ctx, "set-1", models.ProjectStatusCancelled, "")
		require.NoError(t, err)
		assert.Equal(t, models.ProjectStatusCancelled, p.Status)
	})
}

// ==========================
// MarkCommissionPaid
// ==========================

func TestMarkCommissionPaid(t *testing.T) {
	f := newFixture(t)
	closedProject(t, f)
	ctx := context.Background()

	u, err := f.store.GetUser(ctx, "setter-1")
	require.NoError(t, err)
	entryID := u.CommissionPayments[0].ID

	entry, err := f.engine.MarkCommissionPaid(ctx, "setter-1", entryID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, entry.Status)
	require.NotNil(t, entry.PaidAt)
	assert.Equal(t, today, *entry.PaidAt)

	writes := f.store.WriteCount()
	again, err := f.engine.MarkCommissionPaid(ctx, "setter-1", entryID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, again.Status)
	assert.Equal(t, writes, f.store.WriteCount())

	_, err = f.engine.MarkCommissionPaid(ctx, "setter-1", "nope")
	assertCode(t, err, apperrors.ErrCodeNotFound)
	_, err = f.engine.MarkCommissionPaid(ctx, "ghost", entryID)
	assertCode(t, err, apperrors.ErrCodeNotFound)
}
