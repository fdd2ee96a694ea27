package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, WithClock(func() time.Time { return fixedNow })), mock
}

var setCols = []string{
	"id", "user_id", "customer_name", "address", "phone_number", "email",
	"appointment_date", "appointment_time", "is_spanish_speaker", "status",
	"closer_id", "closer_name", "office", "utility_bill", "notes", "version", "created_at", "updated_at",
}

func setRow(rows *sqlmock.Rows, id, status string, version int64) *sqlmock.Rows {
	return rows.AddRow(id, "setter-1", "Dana Whitfield", "14 Mesa Dr", "555-0100", "",
		"2024-03-08", "17:30", false, status,
		"closer-1", "Rae Ortiz", "Phoenix", "", "", version, fixedNow, fixedNow)
}

var projectCols = []string{
	"id", "user_id", "closed_by", "customer_name", "address", "phone_number", "email",
	"is_spanish_speaker", "office", "closer_id", "closer_name", "system_size", "gross_ppw",
	"finance_type", "lender", "adders", "panel_type", "battery_type", "battery_quantity",
	"site_survey_date", "site_survey_time", "permit_date", "install_date", "inspection_date",
	"pto_date", "payment_date", "payment_amount", "commission_rate", "deal_number", "status",
	"version", "created_at", "updated_at",
}

func projectRow(rows *sqlmock.Rows, id, status string, version int64) *sqlmock.Rows {
	return rows.AddRow(id, "setter-1", "closer-1", "Dana Whitfield", "14 Mesa Dr", "555-0100", "",
		false, "Phoenix", "closer-1", "Rae Ortiz", "6", "3.00",
		"loan", "Sunlight", "{critter_guard,ev_charger}", "Q.Peak", "", 0,
		"2024-03-10", "09:00", "", "", "",
		"", "2024-03-15", 1200.0, 200.0, 5, status,
		version, fixedNow, fixedNow)
}

// ==========================
// Sets
// ==========================

func TestCreateSet_Success(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO sets`).
		WithArgs("set-1", "setter-1", "Dana Whitfield", "14 Mesa Dr", "555-0100", "",
			"2024-03-08", "17:30", false, "active",
			"", "", "Phoenix", "", "", int64(1), fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	set := &models.Set{
		ID: "set-1", UserID: "setter-1", CustomerName: "Dana Whitfield", Address: "14 Mesa Dr",
		PhoneNumber: "555-0100", AppointmentDate: "2024-03-08", AppointmentTime: "17:30",
		Status: models.SetStatusActive, Office: "Phoenix",
	}
	require.NoError(t, s.CreateSet(context.Background(), set))
	assert.Equal(t, int64(1), set.Version)
	assert.Equal(t, fixedNow, set.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSet_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO sets`).WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := s.CreateSet(context.Background(), &models.Set{ID: "set-1"})
	assert.True(t, errors.Is(err, store.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSet_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM sets WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(setCols))

	_, err := s.GetSet(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSets_BuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)

	rows := setRow(sqlmock.NewRows(setCols), "set-1", "assigned", 2)
	mock.ExpectQuery(`FROM sets WHERE user_id = \$1 AND office = \$2 AND status = ANY\(\$3\) ORDER BY created_at, id`).
		WithArgs("setter-1", "Phoenix", sqlmock.AnyArg()).
		WillReturnRows(rows)

	sets, err := s.ListSets(context.Background(), store.SetFilter{
		UserID:   "setter-1",
		Office:   "Phoenix",
		Statuses: []models.SetStatus{models.SetStatusAssigned, models.SetStatusNotClosed},
	})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, models.SetStatusAssigned, sets[0].Status)
	assert.Equal(t, "Rae Ortiz", sets[0].CloserName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSet_GuardedByReadVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM sets WHERE id = \$1`).
		WithArgs("set-1").
		WillReturnRows(setRow(sqlmock.NewRows(setCols), "set-1", "active", 2))
	mock.ExpectExec(`UPDATE sets SET .+ WHERE id = \$1 AND version = \$2`).
		WithArgs("set-1", int64(2), "active", "closer-9", "Lee Park", "Phoenix", "", "", int64(3), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	closerID, closerName := "closer-9", "Lee Park"
	set, err := s.UpdateSet(context.Background(), "set-1",
		store.SetPatch{CloserID: &closerID, CloserName: &closerName},
		store.Condition{ExpectedVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), set.Version)
	assert.Equal(t, "closer-9", set.CloserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSet_StaleVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM sets WHERE id = \$1`).
		WillReturnRows(setRow(sqlmock.NewRows(setCols), "set-1", "active", 4))

	notes := "call first"
	_, err := s.UpdateSet(context.Background(), "set-1", store.SetPatch{Notes: &notes}, store.Condition{ExpectedVersion: 3})
	assert.True(t, errors.Is(err, store.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSet_ConcurrentWriter(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM sets WHERE id = \$1`).
		WillReturnRows(setRow(sqlmock.NewRows(setCols), "set-1", "active", 4))
	mock.ExpectExec(`UPDATE sets`).WillReturnResult(sqlmock.NewResult(0, 0))

	notes := "call first"
	_, err := s.UpdateSet(context.Background(), "set-1", store.SetPatch{Notes: &notes}, store.Condition{})
	assert.True(t, errors.Is(err, store.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSet(t *testing.T) {
	tests := []struct {
		name    string
		cond    store.Condition
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "unconditional",
			cond: store.Condition{},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM sets WHERE id = \$1$`).WithArgs("set-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "unconditional missing",
			cond: store.Condition{},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM sets`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: store.ErrNotFound,
		},
		{
			name: "version mismatch",
			cond: store.Condition{ExpectedVersion: 2},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM sets WHERE id = \$1 AND version = \$2`).WithArgs("set-1", int64(2)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT EXISTS`).WithArgs("set-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: store.ErrConflict,
		},
		{
			name: "conditional missing",
			cond: store.Condition{ExpectedVersion: 2},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM sets`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT EXISTS`).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setup(mock)

			err := s.DeleteSet(context.Background(), "set-1", tt.cond)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// ==========================
// Projects
// ==========================

func TestGetProject_ScansAdders(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM projects WHERE id = \$1`).
		WithArgs("set-1").
		WillReturnRows(projectRow(sqlmock.NewRows(projectCols), "set-1", "site_survey", 1))

	p, err := s.GetProject(context.Background(), "set-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"critter_guard", "ev_charger"}, p.Adders)
	assert.Equal(t, 1200.0, p.PaymentAmount)
	assert.Equal(t, 5, p.DealNumber)
	assert.Equal(t, models.ProjectStatusSiteSurvey, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountProjects(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM projects WHERE user_id = \$1`).
		WithArgs("setter-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountProjects(context.Background(), "setter-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProject_RecordsStageDate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM projects WHERE id = \$1`).
		WillReturnRows(projectRow(sqlmock.NewRows(projectCols), "set-1", "site_survey", 1))
	mock.ExpectExec(`UPDATE projects SET .+ WHERE id = \$1 AND version = \$2`).
		WithArgs("set-1", int64(1), "permit", "2024-03-20", "", "", "", int64(2), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	status := models.ProjectStatusPermit
	date := "2024-03-20"
	p, err := s.UpdateProject(context.Background(), "set-1",
		store.ProjectPatch{Status: &status, PermitDate: &date}, store.Condition{})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusPermit, p.Status)
	assert.Equal(t, 200.0, p.CommissionRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Users and ledger
// ==========================

func TestGetUser_LoadsLedger(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("setter-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone_number", "role", "office", "deal_count", "total_commission", "created_at"}).
			AddRow("setter-1", "Sam Reyes", "sam@example.com", "", "setter", "Phoenix", 5, 6000.0, fixedNow))

	paidAt := fixedNow.Add(24 * time.Hour)
	mock.ExpectQuery(`FROM commission_payments\s+WHERE user_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "id", "amount", "payment_date", "project_id", "description", "status",
			"customer_name", "deal_number", "system_size", "commission_rate", "created_at", "paid_at"}).
			AddRow("setter-1", "c1", 1200.0, "2024-03-15", "set-1", "Deal #5", "paid",
				"Dana Whitfield", 5, "6", 200.0, fixedNow, paidAt).
			AddRow("setter-1", "c2", 1500.0, "2024-03-22", "set-2", "Deal #6", "pending",
				"Ana Cruz", 6, "7.5", 200.0, fixedNow, nil))

	u, err := s.GetUser(context.Background(), "setter-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSetter, u.Role)
	require.Len(t, u.CommissionPayments, 2)
	assert.Equal(t, paidAt, *u.CommissionPayments[0].PaidAt)
	assert.Nil(t, u.CommissionPayments[1].PaidAt)
	assert.Equal(t, models.PaymentStatusPending, u.CommissionPayments[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCommissionPayment_UnknownUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO commission_payments`).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	err := s.AppendCommissionPayment(context.Background(), "ghost", models.CommissionPayment{ID: "c1"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementAggregates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE users SET deal_count = deal_count \+ \$2`).
		WithArgs("setter-1", 1, 1200.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users`).
		WithArgs("ghost", 1, 1200.0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.IncrementAggregates(context.Background(), "setter-1", 1, 1200))
	assert.True(t, errors.Is(s.IncrementAggregates(context.Background(), "ghost", 1, 1200), store.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCommissionStatus_MissingEntry(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE commission_payments SET status = \$3`).
		WithArgs("setter-1", "nope", "paid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetCommissionStatus(context.Background(), "setter-1", "nope", models.PaymentStatusPaid, &fixedNow)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Transactions
// ==========================

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO projects`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM sets WHERE id = \$1 AND version = \$2`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		if err := tx.CreateProject(context.Background(), &models.Project{ID: "set-1", UserID: "setter-1"}); err != nil {
			return err
		}
		return tx.DeleteSet(context.Background(), "set-1", store.Condition{ExpectedVersion: 2})
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO commission_payments`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		if err := tx.AppendCommissionPayment(context.Background(), "setter-1", models.CommissionPayment{ID: "c1", Amount: 1200}); err != nil {
			return err
		}
		return tx.IncrementAggregates(context.Background(), "setter-1", 1, 1200)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_LocksUserRow(t *testing.T) {
	s, mock := newMockStore(t)

	userCols := []string{"id", "name", "email", "phone_number", "role", "office", "deal_count", "total_commission", "created_at"}
	paymentCols := []string{"user_id", "id", "amount", "payment_date", "project_id", "description", "status",
		"customer_name", "deal_number", "system_size", "commission_rate", "created_at", "paid_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR NO KEY UPDATE`).
		WithArgs("setter-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("setter-1", "Sam Reyes", "", "", "setter", "Phoenix", 1, 1200.0, fixedNow))
	mock.ExpectQuery(`FROM commission_payments`).WillReturnRows(sqlmock.NewRows(paymentCols))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM projects WHERE user_id = \$1`).
		WithArgs("setter-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		if _, err := tx.GetUser(context.Background(), "setter-1"); err != nil {
			return err
		}
		_, err := tx.CountProjects(context.Background(), "setter-1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Outside a transaction the read takes no lock.
	mock.ExpectQuery(`FROM users WHERE id = \$1$`).
		WithArgs("setter-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("setter-1", "Sam Reyes", "", "", "setter", "Phoenix", 1, 1200.0, fixedNow))
	mock.ExpectQuery(`FROM commission_payments`).WillReturnRows(sqlmock.NewRows(paymentCols))

	_, err = s.GetUser(context.Background(), "setter-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribe_RequiresListener(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.SubscribeSets(context.Background(), store.SetFilter{}, func([]*models.Set) {})
	assert.ErrorIs(t, err, ErrSubscriptionsDisabled)
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sets`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Integration
// ==========================

func TestIntegration_CloseFlowAndSubscription(t *testing.T) {
	dsn := testDSN(t)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	s := New(db, WithListenerDSN(dsn))
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE sets, projects, commission_payments, users`)
	require.NoError(t, err)

	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "setter-1", Name: "Sam", Role: models.RoleSetter}))
	require.NoError(t, s.CreateSet(ctx, &models.Set{
		ID: "set-1", UserID: "setter-1", CustomerName: "Dana", Address: "14 Mesa Dr", PhoneNumber: "555-0100",
		AppointmentDate: "2024-03-08", AppointmentTime: "17:30", Status: models.SetStatusAssigned,
	}))

	updates := make(chan []*models.Set, 8)
	sub, err := s.SubscribeSets(ctx, store.SetFilter{}, func(sets []*models.Set) { updates <- sets })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case initial := <-updates:
		require.Len(t, initial, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateProject(ctx, &models.Project{
			ID: "set-1", UserID: "setter-1", CustomerName: "Dana", Address: "14 Mesa Dr", PhoneNumber: "555-0100",
			SystemSize: "6", GrossPPW: "3.00", FinanceType: "loan", Lender: "Sunlight", PanelType: "Q.Peak",
			SiteSurveyDate: "2024-03-10", SiteSurveyTime: "09:00", PaymentDate: "2024-03-15",
			PaymentAmount: 1200, CommissionRate: 200, DealNumber: 1, Status: models.ProjectStatusSiteSurvey,
		}); err != nil {
			return err
		}
		return tx.DeleteSet(ctx, "set-1", store.Condition{ExpectedVersion: 1})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case sets := <-updates:
			return len(sets) == 0
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	n, err := s.CountProjects(ctx, "setter-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntegration_ConcurrentClosesGetDistinctDealNumbers(t *testing.T) {
	dsn := testDSN(t)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE sets, projects, commission_payments, users`)
	require.NoError(t, err)

	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "setter-1", Name: "Sam", Role: models.RoleSetter}))
	const closes = 6
	for i := 0; i < closes; i++ {
		require.NoError(t, s.CreateSet(ctx, &models.Set{
			ID: fmt.Sprintf("set-%d", i), UserID: "setter-1", CustomerName: "Dana", Address: "14 Mesa Dr",
			PhoneNumber: "555-0100", AppointmentDate: "2024-03-08", AppointmentTime: "17:30",
			Status: models.SetStatusAssigned,
		}))
	}

	engine := lifecycle.NewEngine(s)
	form := models.CloseForm{
		SystemSize: "6", GrossPPW: "3.00", FinanceType: "loan", Lender: "Sunlight", PanelType: "Q.Peak",
		SiteSurveyDate: "2024-03-10", SiteSurveyTime: "09:00",
	}

	var wg sync.WaitGroup
	errs := make(chan error, closes)
	for i := 0; i < closes; i++ {
		wg.Add(1)
		go func(setID string) {
			defer wg.Done()
			_, err := engine.CloseSet(ctx, lifecycle.CloseRequest{SetID: setID, Form: form, Confirmed: true})
			errs <- err
		}(fmt.Sprintf("set-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	projects, err := s.ListProjects(ctx, store.ProjectFilter{UserID: "setter-1"})
	require.NoError(t, err)
	require.Len(t, projects, closes)
	seen := make(map[int]bool)
	for _, p := range projects {
		assert.False(t, seen[p.DealNumber], "deal number %d assigned twice", p.DealNumber)
		seen[p.DealNumber] = true
	}
	for n := 1; n <= closes; n++ {
		assert.True(t, seen[n], "deal number %d missing", n)
	}

	u, err := s.GetUser(ctx, "setter-1")
	require.NoError(t, err)
	assert.Equal(t, closes, u.DealCount)
}
