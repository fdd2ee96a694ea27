package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newSet(id, userID string) *models.Set {
	return &models.Set{
		ID:              id,
		UserID:          userID,
		CustomerName:    "Dana Whitfield",
		Address:         "14 Mesa Dr",
		PhoneNumber:     "555-0100",
		AppointmentDate: "2024-03-08",
		AppointmentTime: "17:30",
		Status:          models.SetStatusActive,
		Office:          "Phoenix",
	}
}

func TestStore_SetCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	set := newSet("set-1", "setter-1")
	require.NoError(t, s.CreateSet(ctx, set))
	assert.Equal(t, int64(1), set.Version)

	err := s.CreateSet(ctx, newSet("set-1", "setter-1"))
	assert.True(t, errors.Is(err, store.ErrDuplicate))

	got, err := s.GetSet(ctx, "set-1")
	require.NoError(t, err)
	assert.Equal(t, "Dana Whitfield", got.CustomerName)

	// Returned records are copies.
	got.CustomerName = "changed"
	again, _ := s.GetSet(ctx, "set-1")
	assert.Equal(t, "Dana Whitfield", again.CustomerName)

	closer := "closer-1"
	updated, err := s.UpdateSet(ctx, "set-1", store.SetPatch{CloserID: &closer}, store.Condition{ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.UpdateSet(ctx, "set-1", store.SetPatch{CloserID: &closer}, store.Condition{ExpectedVersion: 1})
	assert.True(t, errors.Is(err, store.ErrConflict))

	assert.True(t, errors.Is(s.DeleteSet(ctx, "set-1", store.Condition{ExpectedVersion: 1}), store.ErrConflict))
	require.NoError(t, s.DeleteSet(ctx, "set-1", store.Condition{ExpectedVersion: 2}))

	_, err = s.GetSet(ctx, "set-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, int64(3), s.WriteCount())
}

func TestStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s := New(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	require.NoError(t, s.CreateSet(ctx, newSet("b", "setter-1")))
	require.NoError(t, s.CreateSet(ctx, newSet("a", "setter-2")))
	require.NoError(t, s.CreateProject(ctx, &models.Project{ID: "p1", UserID: "setter-1", Status: models.ProjectStatusSiteSurvey}))
	require.NoError(t, s.CreateProject(ctx, &models.Project{ID: "p2", UserID: "setter-1", Status: models.ProjectStatusPermit}))

	all, err := s.ListSets(ctx, store.SetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "ordered by creation time")

	mine, _ := s.ListSets(ctx, store.SetFilter{UserID: "setter-2"})
	require.Len(t, mine, 1)
	assert.Equal(t, "a", mine[0].ID)

	n, err := s.CountProjects(ctx, "setter-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	permits, _ := s.ListProjects(ctx, store.ProjectFilter{Statuses: []models.ProjectStatus{models.ProjectStatusPermit}})
	require.Len(t, permits, 1)
	assert.Equal(t, "p2", permits[0].ID)
}

func TestStore_Ledger(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Name: "Sam", Role: models.RoleSetter}))

	require.NoError(t, s.AppendCommissionPayment(ctx, "u1", models.CommissionPayment{ID: "c1", Amount: 1200, Status: models.PaymentStatusPending}))
	require.NoError(t, s.IncrementAggregates(ctx, "u1", 1, 1200))

	paidAt := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetCommissionStatus(ctx, "u1", "c1", models.PaymentStatusPaid, &paidAt))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.DealCount)
	assert.Equal(t, 1200.0, u.TotalCommission)
	require.Len(t, u.CommissionPayments, 1)
	assert.Equal(t, models.PaymentStatusPaid, u.CommissionPayments[0].Status)
	assert.Equal(t, paidAt, *u.CommissionPayments[0].PaidAt)

	assert.True(t, errors.Is(s.SetCommissionStatus(ctx, "u1", "missing", models.PaymentStatusPaid, nil), store.ErrNotFound))
	assert.True(t, errors.Is(s.AppendCommissionPayment(ctx, "ghost", models.CommissionPayment{ID: "c2"}), store.ErrNotFound))
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateSet(ctx, newSet("set-1", "setter-1")))
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "setter-1"}))
	before := s.WriteCount()

	boom := errors.New("ledger write failed")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.CreateProject(ctx, &models.Project{ID: "set-1", UserID: "setter-1"}))
		require.NoError(t, tx.DeleteSet(ctx, "set-1", store.Condition{}))
		require.NoError(t, tx.IncrementAggregates(ctx, "setter-1", 1, 1200))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetSet(ctx, "set-1")
	assert.NoError(t, err, "set restored")
	_, err = s.GetProject(ctx, "set-1")
	assert.True(t, errors.Is(err, store.ErrNotFound), "project discarded")
	u, _ := s.GetUser(ctx, "setter-1")
	assert.Zero(t, u.DealCount)
	assert.Equal(t, before, s.WriteCount())
}

func TestStore_WithTxPanicReleasesLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateSet(ctx, newSet("set-1", "setter-1")))

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.DeleteSet(ctx, "set-1", store.Condition{}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	got, err := s.GetSet(ctx, "set-1")
	require.NoError(t, err)
	assert.Equal(t, "setter-1", got.UserID)
	require.NoError(t, s.CreateSet(ctx, newSet("set-2", "setter-1")))
}

func TestStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateSet(ctx, newSet("set-1", "setter-1")))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateProject(ctx, &models.Project{ID: "set-1", UserID: "setter-1"}); err != nil {
			return err
		}
		return tx.DeleteSet(ctx, "set-1", store.Condition{ExpectedVersion: 1})
	})
	require.NoError(t, err)

	sets, _ := s.ListSets(ctx, store.SetFilter{})
	projects, _ := s.ListProjects(ctx, store.ProjectFilter{})
	assert.Empty(t, sets)
	require.Len(t, projects, 1)
	assert.Equal(t, int64(3), s.WriteCount())
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription callback")
	}
	var zero T
	return zero
}

func TestStore_SubscribeSets(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateSet(ctx, newSet("set-1", "setter-1")))

	updates := make(chan []*models.Set, 16)
	sub, err := s.SubscribeSets(ctx, store.SetFilter{UserID: "setter-1"}, func(sets []*models.Set) {
		updates <- sets
	})
	require.NoError(t, err)

	initial := receive(t, updates)
	require.Len(t, initial, 1)

	require.NoError(t, s.CreateSet(ctx, newSet("set-2", "setter-1")))
	next := receive(t, updates)
	assert.Len(t, next, 2)

	// Project writes do not wake set subscribers.
	require.NoError(t, s.CreateProject(ctx, &models.Project{ID: "p1", UserID: "setter-1"}))

	require.NoError(t, s.DeleteSet(ctx, "set-1", store.Condition{}))
	last := receive(t, updates)
	require.Len(t, last, 1)
	assert.Equal(t, "set-2", last[0].ID)

	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, s.CreateSet(ctx, newSet("set-3", "setter-1")))
	select {
	case <-updates:
		t.Fatal("callback after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_SubscriptionEndsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	s := New()

	updates := make(chan []*models.Project, 4)
	_, err := s.SubscribeProjects(ctx, store.ProjectFilter{}, func(p []*models.Project) { updates <- p })
	require.NoError(t, err)
	receive(t, updates)

	cancel()
	require.Eventually(t, func() bool {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		return len(s.subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStore_CloseReleasesSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New()
	_, err := s.SubscribeSets(context.Background(), store.SetFilter{}, func([]*models.Set) {})
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = s.SubscribeSets(context.Background(), store.SetFilter{}, func([]*models.Set) {})
	assert.Error(t, err)
}
