// Package postgres implements the record store on PostgreSQL using lib/pq.
// Change subscriptions use LISTEN/NOTIFY and need a listener DSN.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is a PostgreSQL implementation of store.Store.
type Store struct {
	queries

	db          *sql.DB
	listenerDSN string
	logger      logger.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithListenerDSN enables change subscriptions over LISTEN/NOTIFY.
func WithListenerDSN(dsn string) Option {
	return func(s *Store) { s.listenerDSN = dsn }
}

// WithLogger sets the logger used by subscriptions.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) { s.logger = log }
}

// New wraps an open database handle. The caller owns db.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		queries: queries{q: db, now: func() time.Time { return time.Now().UTC() }},
		db:      db,
		logger:  logger.NewNoOpLogger(),
		subs:    make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&queries{q: tx, now: s.now, lockUsers: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", map[string]interface{}{"error": rbErr.Error()})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close releases all subscriptions. The database handle stays open.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

// queries holds every statement; it runs against the pool or a transaction.
// Inside a transaction GetUser takes a row lock, so reads of a user's
// projects that follow it see every close committed before.
type queries struct {
	q         querier
	now       func() time.Time
	lockUsers bool
}

var _ store.Tx = (*queries)(nil)

type scanner interface {
	Scan(dest ...interface{}) error
}

func mapWriteErr(kind, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s %s: %w", kind, id, store.ErrDuplicate)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
		}
	}
	return fmt.Errorf("write %s %s: %w", kind, id, err)
}

func expectOneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// where accumulates positional predicates.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Sets ---------------------------------------------------------------------------

const setColumns = `id, user_id, customer_name, address, phone_number, email,
	appointment_date, appointment_time, is_spanish_speaker, status,
	closer_id, closer_name, office, utility_bill, notes, version, created_at, updated_at`

func scanSet(row scanner) (*models.Set, error) {
	var s models.Set
	var status string
	err := row.Scan(&s.ID, &s.UserID, &s.CustomerName, &s.Address, &s.PhoneNumber, &s.Email,
		&s.AppointmentDate, &s.AppointmentTime, &s.IsSpanishSpeaker, &status,
		&s.CloserID, &s.CloserName, &s.Office, &s.UtilityBill, &s.Notes, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = models.SetStatus(status)
	return &s, nil
}

func (q *queries) CreateSet(ctx context.Context, set *models.Set) error {
	if set.ID == "" {
		return fmt.Errorf("set id is required")
	}
	now := q.now()
	if set.Version == 0 {
		set.Version = 1
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	set.UpdatedAt = now

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sets (`+setColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		set.ID, set.UserID, set.CustomerName, set.Address, set.PhoneNumber, set.Email,
		set.AppointmentDate, set.AppointmentTime, set.IsSpanishSpeaker, string(set.Status),
		set.CloserID, set.CloserName, set.Office, set.UtilityBill, set.Notes,
		set.Version, set.CreatedAt, set.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr("set", set.ID, err)
	}
	return nil
}

func (q *queries) GetSet(ctx context.Context, id string) (*models.Set, error) {
	set, err := scanSet(q.q.QueryRowContext(ctx, `SELECT `+setColumns+` FROM sets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get set %s: %w", id, err)
	}
	return set, nil
}

func (q *queries) ListSets(ctx context.Context, filter store.SetFilter) ([]*models.Set, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.CloserID != "" {
		w.add("closer_id = $%d", filter.CloserID)
	}
	if filter.Office != "" {
		w.add("office = $%d", filter.Office)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY($%d)", pq.Array(statuses))
	}

	rows, err := q.q.QueryContext(ctx, `SELECT `+setColumns+` FROM sets`+w.String()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Set, 0)
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		result = append(result, set)
	}
	return result, rows.Err()
}

// UpdateSet applies the patch in Go and writes it back guarded by the version
// it read, so a concurrent writer between the two statements is a conflict.
func (q *queries) UpdateSet(ctx context.Context, id string, patch store.SetPatch, cond store.Condition) (*models.Set, error) {
	set, err := q.GetSet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cond.Holds(set.Version) {
		return nil, fmt.Errorf("set %s at version %d, expected %d: %w", id, set.Version, cond.ExpectedVersion, store.ErrConflict)
	}
	read := set.Version
	patch.Apply(set, q.now())

	res, err := q.q.ExecContext(ctx, `
		UPDATE sets SET status = $3, closer_id = $4, closer_name = $5, office = $6,
			utility_bill = $7, notes = $8, version = $9, updated_at = $10
		WHERE id = $1 AND version = $2`,
		id, read, string(set.Status), set.CloserID, set.CloserName, set.Office,
		set.UtilityBill, set.Notes, set.Version, set.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update set %s: %w", id, err)
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return nil, fmt.Errorf("update set %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("set %s changed concurrently: %w", id, store.ErrConflict)
	}
	return set, nil
}

func (q *queries) DeleteSet(ctx context.Context, id string, cond store.Condition) error {
	return q.deleteVersioned(ctx, "sets", "set", id, cond)
}

func (q *queries) deleteVersioned(ctx context.Context, table, kind, id string, cond store.Condition) error {
	var (
		res sql.Result
		err error
	)
	if cond.ExpectedVersion == 0 {
		res, err = q.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	} else {
		res, err = q.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1 AND version = $2`, id, cond.ExpectedVersion)
	}
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if ok {
		return nil
	}
	if cond.ExpectedVersion == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}

	var exists bool
	if err := q.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s not at version %d: %w", kind, id, cond.ExpectedVersion, store.ErrConflict)
}

// Projects -----------------------------------------------------------------------

const projectColumns = `id, user_id, closed_by, customer_name, address, phone_number, email,
	is_spanish_speaker, office, closer_id, closer_name, system_size, gross_ppw,
	finance_type, lender, adders, panel_type, battery_type, battery_quantity,
	site_survey_date, site_survey_time, permit_date, install_date, inspection_date,
	pto_date, payment_date, payment_amount, commission_rate, deal_number, status,
	version, created_at, updated_at`

func scanProject(row scanner) (*models.Project, error) {
	var p models.Project
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.ClosedBy, &p.CustomerName, &p.Address, &p.PhoneNumber, &p.Email,
		&p.IsSpanishSpeaker, &p.Office, &p.CloserID, &p.CloserName, &p.SystemSize, &p.GrossPPW,
		&p.FinanceType, &p.Lender, pq.Array(&p.Adders), &p.PanelType, &p.BatteryType, &p.BatteryQuantity,
		&p.SiteSurveyDate, &p.SiteSurveyTime, &p.PermitDate, &p.InstallDate, &p.InspectionDate,
		&p.PTODate, &p.PaymentDate, &p.PaymentAmount, &p.CommissionRate, &p.DealNumber, &status,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.ProjectStatus(status)
	return &p, nil
}

func (q *queries) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	now := q.now()
	if p.Version == 0 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)`,
		p.ID, p.UserID, p.ClosedBy, p.CustomerName, p.Address, p.PhoneNumber, p.Email,
		p.IsSpanishSpeaker, p.Office, p.CloserID, p.CloserName, p.SystemSize, p.GrossPPW,
		p.FinanceType, p.Lender, pq.Array(p.Adders), p.PanelType, p.BatteryType, p.BatteryQuantity,
		p.SiteSurveyDate, p.SiteSurveyTime, p.PermitDate, p.InstallDate, p.InspectionDate,
		p.PTODate, p.PaymentDate, p.PaymentAmount, p.CommissionRate, p.DealNumber, string(p.Status),
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr("project", p.ID, err)
	}
	return nil
}

func (q *queries) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(q.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

func (q *queries) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]*models.Project, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.Office != "" {
		w.add("office = $%d", filter.Office)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY($%d)", pq.Array(statuses))
	}

	rows, err := q.q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects`+w.String()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (q *queries) CountProjects(ctx context.Context, userID string) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count projects for %s: %w", userID, err)
	}
	return n, nil
}

func (q *queries) UpdateProject(ctx context.Context, id string, patch store.ProjectPatch, cond store.Condition) (*models.Project, error) {
	p, err := q.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cond.Holds(p.Version) {
		return nil, fmt.Errorf("project %s at version %d, expected %d: %w", id, p.Version, cond.ExpectedVersion, store.ErrConflict)
	}
	read := p.Version
	patch.Apply(p, q.now())

	res, err := q.q.ExecContext(ctx, `
		UPDATE projects SET status = $3, permit_date = $4, install_date = $5,
			inspection_date = $6, pto_date = $7, version = $8, updated_at = $9
		WHERE id = $1 AND version = $2`,
		id, read, string(p.Status), p.PermitDate, p.InstallDate,
		p.InspectionDate, p.PTODate, p.Version, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update project %s: %w", id, err)
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return nil, fmt.Errorf("update project %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("project %s changed concurrently: %w", id, store.ErrConflict)
	}
	return p, nil
}

func (q *queries) DeleteProject(ctx context.Context, id string) error {
	return q.deleteVersioned(ctx, "projects", "project", id, store.Condition{})
}

// Users --------------------------------------------------------------------------

const (
	userColumns    = `id, name, email, phone_number, role, office, deal_count, total_commission, created_at`
	paymentColumns = `user_id, id, amount, payment_date, project_id, description, status,
	customer_name, deal_number, system_size, commission_rate, created_at, paid_at`
)

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &role, &u.Office,
		&u.DealCount, &u.TotalCommission, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = q.now()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.Email, u.PhoneNumber, string(u.Role), u.Office,
		u.DealCount, u.TotalCommission, u.CreatedAt,
	)
	if err != nil {
		return mapWriteErr("user", u.ID, err)
	}
	for _, p := range u.CommissionPayments {
		if err := q.AppendCommissionPayment(ctx, u.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if q.lockUsers {
		query += ` FOR NO KEY UPDATE`
	}
	u, err := scanUser(q.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	ledgers, err := q.loadPayments(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	u.CommissionPayments = ledgers[id]
	return u, nil
}

func (q *queries) ListUsers(ctx context.Context, filter store.UserFilter) ([]*models.User, error) {
	var w where
	if filter.Role != "" {
		w.add("role = $%d", string(filter.Role))
	}
	if filter.Office != "" {
		w.add("office = $%d", filter.Office)
	}

	rows, err := q.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list users: %w", err)
	}
	rows.Close()

	if len(users) == 0 {
		return users, nil
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	ledgers, err := q.loadPayments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.CommissionPayments = ledgers[u.ID]
	}
	return users, nil
}

func (q *queries) loadPayments(ctx context.Context, userIDs []string) (map[string][]models.CommissionPayment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM commission_payments
		WHERE user_id = ANY($1) ORDER BY created_at, id`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("load commission payments: %w", err)
	}
	defer rows.Close()

	ledgers := make(map[string][]models.CommissionPayment, len(userIDs))
	for rows.Next() {
		var (
			userID string
			p      models.CommissionPayment
			status string
			paidAt sql.NullTime
		)
		if err := rows.Scan(&userID, &p.ID, &p.Amount, &p.Date, &p.ProjectID, &p.Description, &status,
			&p.CustomerName, &p.DealNumber, &p.SystemSize, &p.CommissionRate, &p.CreatedAt, &paidAt); err != nil {
			return nil, fmt.Errorf("scan commission payment: %w", err)
		}
		p.Status = models.PaymentStatus(status)
		if paidAt.Valid {
			t := paidAt.Time
			p.PaidAt = &t
		}
		ledgers[userID] = append(ledgers[userID], p)
	}
	return ledgers, rows.Err()
}

func (q *queries) AppendCommissionPayment(ctx context.Context, userID string, p models.CommissionPayment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = q.now()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO commission_payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		userID, p.ID, p.Amount, p.Date, p.ProjectID, p.Description, string(p.Status),
		p.CustomerName, p.DealNumber, p.SystemSize, p.CommissionRate, p.CreatedAt, p.PaidAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
		}
		return mapWriteErr("commission payment", p.ID, err)
	}
	return nil
}

func (q *queries) IncrementAggregates(ctx context.Context, userID string, deals int, commission float64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE users SET deal_count = deal_count + $2, total_commission = total_commission + $3
		WHERE id = $1`, userID, deals, commission)
	if err != nil {
		return fmt.Errorf("update aggregates for %s: %w", userID, err)
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return fmt.Errorf("update aggregates for %s: %w", userID, err)
	}
	if !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	return nil
}

func (q *queries) SetCommissionStatus(ctx context.Context, userID, paymentID string, status models.PaymentStatus, paidAt *time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE commission_payments SET status = $3, paid_at = COALESCE($4, paid_at)
		WHERE user_id = $1 AND id = $2`, userID, paymentID, string(status), paidAt)
	if err != nil {
		return fmt.Errorf("update commission payment %s: %w", paymentID, err)
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return fmt.Errorf("update commission payment %s: %w", paymentID, err)
	}
	if !ok {
		return fmt.Errorf("commission payment %s for user %s: %w", paymentID, userID, store.ErrNotFound)
	}
	return nil
}
