// Package memory is an in-memory record store. It is safe for concurrent use
// and backs tests, the admin console and single-node development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ambient-pro/internal/models"
	"ambient-pro/internal/store"
)

type collection int

const (
	collectionSets collection = iota
	collectionProjects
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	sets     map[string]*models.Set
	projects map[string]*models.Project
	users    map[string]*models.User
	writes   atomic.Int64

	subsMu  sync.Mutex
	subs    map[int64]*subscription
	nextSub int64
	closed  bool
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      func() time.Time { return time.Now().UTC() },
		sets:     make(map[string]*models.Set),
		projects: make(map[string]*models.Project),
		users:    make(map[string]*models.User),
		subs:     make(map[int64]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteCount returns the number of successful mutating calls so far.
func (s *Store) WriteCount() int64 {
	return s.writes.Load()
}

// Close releases every subscription.
func (s *Store) Close() error {
	s.subsMu.Lock()
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

// Transactions -----------------------------------------------------------------

// WithTx holds the write lock for the duration of fn and restores the prior
// state if fn fails. fn must only use tx, never s.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &txView{s: s}
	if err := s.runLocked(tx, fn); err != nil {
		return err
	}

	s.writes.Add(tx.writes)
	if tx.setsDirty {
		s.publish(collectionSets)
	}
	if tx.projectsDirty {
		s.publish(collectionProjects)
	}
	return nil
}

// runLocked calls fn under the write lock. A failing or panicking fn leaves
// the collections as they were; the panic is re-raised after the lock is
// released.
func (s *Store) runLocked(tx *txView, fn func(tx store.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	defer func() {
		if r := recover(); r != nil {
			s.restoreLocked(snap)
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		s.restoreLocked(snap)
	}
	return err
}

type snapshot struct {
	sets     map[string]*models.Set
	projects map[string]*models.Project
	users    map[string]*models.User
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		sets:     make(map[string]*models.Set, len(s.sets)),
		projects: make(map[string]*models.Project, len(s.projects)),
		users:    make(map[string]*models.User, len(s.users)),
	}
	for id, v := range s.sets {
		snap.sets[id] = v.Clone()
	}
	for id, v := range s.projects {
		snap.projects[id] = v.Clone()
	}
	for id, v := range s.users {
		snap.users[id] = v.Clone()
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.sets = snap.sets
	s.projects = snap.projects
	s.users = snap.users
}

// txView runs the locked implementations without taking the lock again.
type txView struct {
	s             *Store
	writes        int64
	setsDirty     bool
	projectsDirty bool
}

var _ store.Tx = (*txView)(nil)

func (t *txView) wrote(c *bool, err error) error {
	if err == nil {
		t.writes++
		if c != nil {
			*c = true
		}
	}
	return err
}

func (t *txView) CreateSet(_ context.Context, set *models.Set) error {
	return t.wrote(&t.setsDirty, t.s.createSetLocked(set))
}

func (t *txView) GetSet(_ context.Context, id string) (*models.Set, error) {
	return t.s.getSetLocked(id)
}

func (t *txView) ListSets(_ context.Context, filter store.SetFilter) ([]*models.Set, error) {
	return t.s.listSetsLocked(filter), nil
}

func (t *txView) UpdateSet(_ context.Context, id string, patch store.SetPatch, cond store.Condition) (*models.Set, error) {
	set, err := t.s.updateSetLocked(id, patch, cond)
	return set, t.wrote(&t.setsDirty, err)
}

func (t *txView) DeleteSet(_ context.Context, id string, cond store.Condition) error {
	return t.wrote(&t.setsDirty, t.s.deleteSetLocked(id, cond))
}

func (t *txView) CreateProject(_ context.Context, project *models.Project) error {
	return t.wrote(&t.projectsDirty, t.s.createProjectLocked(project))
}

func (t *txView) GetProject(_ context.Context, id string) (*models.Project, error) {
	return t.s.getProjectLocked(id)
}

func (t *txView) ListProjects(_ context.Context, filter store.ProjectFilter) ([]*models.Project, error) {
	return t.s.listProjectsLocked(filter), nil
}

func (t *txView) CountProjects(_ context.Context, userID string) (int, error) {
	return t.s.countProjectsLocked(userID), nil
}

func (t *txView) UpdateProject(_ context.Context, id string, patch store.ProjectPatch, cond store.Condition) (*models.Project, error) {
	p, err := t.s.updateProjectLocked(id, patch, cond)
	return p, t.wrote(&t.projectsDirty, err)
}

func (t *txView) DeleteProject(_ context.Context, id string) error {
	return t.wrote(&t.projectsDirty, t.s.deleteProjectLocked(id))
}

func (t *txView) CreateUser(_ context.Context, user *models.User) error {
	return t.wrote(nil, t.s.createUserLocked(user))
}

func (t *txView) GetUser(_ context.Context, id string) (*models.User, error) {
	return t.s.getUserLocked(id)
}

func (t *txView) ListUsers(_ context.Context, filter store.UserFilter) ([]*models.User, error) {
	return t.s.listUsersLocked(filter), nil
}

func (t *txView) AppendCommissionPayment(_ context.Context, userID string, payment models.CommissionPayment) error {
	return t.wrote(nil, t.s.appendPaymentLocked(userID, payment))
}

func (t *txView) IncrementAggregates(_ context.Context, userID string, deals int, commission float64) error {
	return t.wrote(nil, t.s.incrementAggregatesLocked(userID, deals, commission))
}

func (t *txView) SetCommissionStatus(_ context.Context, userID, paymentID string, status models.PaymentStatus, paidAt *time.Time) error {
	return t.wrote(nil, t.s.setCommissionStatusLocked(userID, paymentID, status, paidAt))
}

// Sets ---------------------------------------------------------------------------

func (s *Store) CreateSet(_ context.Context, set *models.Set) error {
	s.mu.Lock()
	err := s.createSetLocked(set)
	s.mu.Unlock()
	return s.afterWrite(collectionSets, err)
}

func (s *Store) GetSet(_ context.Context, id string) (*models.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSetLocked(id)
}

func (s *Store) ListSets(_ context.Context, filter store.SetFilter) ([]*models.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSetsLocked(filter), nil
}

func (s *Store) UpdateSet(_ context.Context, id string, patch store.SetPatch, cond store.Condition) (*models.Set, error) {
	s.mu.Lock()
	set, err := s.updateSetLocked(id, patch, cond)
	s.mu.Unlock()
	return set, s.afterWrite(collectionSets, err)
}

func (s *Store) DeleteSet(_ context.Context, id string, cond store.Condition) error {
	s.mu.Lock()
	err := s.deleteSetLocked(id, cond)
	s.mu.Unlock()
	return s.afterWrite(collectionSets, err)
}

func (s *Store) createSetLocked(set *models.Set) error {
	if set.ID == "" {
		return fmt.Errorf("set id is required")
	}
	if _, exists := s.sets[set.ID]; exists {
		return fmt.Errorf("set %s: %w", set.ID, store.ErrDuplicate)
	}

	now := s.now()
	if set.Version == 0 {
		set.Version = 1
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	set.UpdatedAt = now

	s.sets[set.ID] = set.Clone()
	return nil
}

func (s *Store) getSetLocked(id string) (*models.Set, error) {
	set, ok := s.sets[id]
	if !ok {
		return nil, fmt.Errorf("set %s: %w", id, store.ErrNotFound)
	}
	return set.Clone(), nil
}

func (s *Store) listSetsLocked(filter store.SetFilter) []*models.Set {
	result := make([]*models.Set, 0, len(s.sets))
	for _, set := range s.sets {
		if filter.Matches(set) {
			result = append(result, set.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *Store) updateSetLocked(id string, patch store.SetPatch, cond store.Condition) (*models.Set, error) {
	set, ok := s.sets[id]
	if !ok {
		return nil, fmt.Errorf("set %s: %w", id, store.ErrNotFound)
	}
	if !cond.Holds(set.Version) {
		return nil, fmt.Errorf("set %s at version %d, expected %d: %w", id, set.Version, cond.ExpectedVersion, store.ErrConflict)
	}
	patch.Apply(set, s.now())
	return set.Clone(), nil
}

func (s *Store) deleteSetLocked(id string, cond store.Condition) error {
	set, ok := s.sets[id]
	if !ok {
		return fmt.Errorf("set %s: %w", id, store.ErrNotFound)
	}
	if !cond.Holds(set.Version) {
		return fmt.Errorf("set %s at version %d, expected %d: %w", id, set.Version, cond.ExpectedVersion, store.ErrConflict)
	}
	delete(s.sets, id)
	return nil
}

// Projects -----------------------------------------------------------------------

func (s *Store) CreateProject(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	err := s.createProjectLocked(project)
	s.mu.Unlock()
	return s.afterWrite(collectionProjects, err)
}

func (s *Store) GetProject(_ context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProjectLocked(id)
}

func (s *Store) ListProjects(_ context.Context, filter store.ProjectFilter) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProjectsLocked(filter), nil
}

func (s *Store) CountProjects(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countProjectsLocked(userID), nil
}

func (s *Store) UpdateProject(_ context.Context, id string, patch store.ProjectPatch, cond store.Condition) (*models.Project, error) {
	s.mu.Lock()
	p, err := s.updateProjectLocked(id, patch, cond)
	s.mu.Unlock()
	return p, s.afterWrite(collectionProjects, err)
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	err := s.deleteProjectLocked(id)
	s.mu.Unlock()
	return s.afterWrite(collectionProjects, err)
}

func (s *Store) createProjectLocked(project *models.Project) error {
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if _, exists := s.projects[project.ID]; exists {
		return fmt.Errorf("project %s: %w", project.ID, store.ErrDuplicate)
	}

	now := s.now()
	if project.Version == 0 {
		project.Version = 1
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	s.projects[project.ID] = project.Clone()
	return nil
}

func (s *Store) getProjectLocked(id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) listProjectsLocked(filter store.ProjectFilter) []*models.Project {
	result := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if filter.Matches(p) {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *Store) countProjectsLocked(userID string) int {
	n := 0
	for _, p := range s.projects {
		if p.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) updateProjectLocked(id string, patch store.ProjectPatch, cond store.Condition) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	if !cond.Holds(p.Version) {
		return nil, fmt.Errorf("project %s at version %d, expected %d: %w", id, p.Version, cond.ExpectedVersion, store.ErrConflict)
	}
	patch.Apply(p, s.now())
	return p.Clone(), nil
}

func (s *Store) deleteProjectLocked(id string) error {
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	delete(s.projects, id)
	return nil
}

// Users --------------------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	err := s.createUserLocked(user)
	s.mu.Unlock()
	return s.afterWrite(-1, err)
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserLocked(id)
}

func (s *Store) ListUsers(_ context.Context, filter store.UserFilter) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listUsersLocked(filter), nil
}

func (s *Store) AppendCommissionPayment(_ context.Context, userID string, payment models.CommissionPayment) error {
	s.mu.Lock()
	err := s.appendPaymentLocked(userID, payment)
	s.mu.Unlock()
	return s.afterWrite(-1, err)
}

func (s *Store) IncrementAggregates(_ context.Context, userID string, deals int, commission float64) error {
	s.mu.Lock()
	err := s.incrementAggregatesLocked(userID, deals, commission)
	s.mu.Unlock()
	return s.afterWrite(-1, err)
}

func (s *Store) SetCommissionStatus(_ context.Context, userID, paymentID string, status models.PaymentStatus, paidAt *time.Time) error {
	s.mu.Lock()
	err := s.setCommissionStatusLocked(userID, paymentID, status, paidAt)
	s.mu.Unlock()
	return s.afterWrite(-1, err)
}

func (s *Store) createUserLocked(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrDuplicate)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user.Clone()
	return nil
}

func (s *Store) getUserLocked(id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return u.Clone(), nil
}

func (s *Store) listUsersLocked(filter store.UserFilter) []*models.User {
	result := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.Matches(u) {
			result = append(result, u.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) appendPaymentLocked(userID string, payment models.CommissionPayment) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	for _, existing := range u.CommissionPayments {
		if existing.ID == payment.ID {
			return fmt.Errorf("commission payment %s: %w", payment.ID, store.ErrDuplicate)
		}
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = s.now()
	}
	u.CommissionPayments = append(u.CommissionPayments, payment)
	return nil
}

func (s *Store) incrementAggregatesLocked(userID string, deals int, commission float64) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	u.DealCount += deals
	u.TotalCommission += commission
	return nil
}

func (s *Store) setCommissionStatusLocked(userID, paymentID string, status models.PaymentStatus, paidAt *time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	for i := range u.CommissionPayments {
		if u.CommissionPayments[i].ID == paymentID {
			u.CommissionPayments[i].Status = status
			if paidAt != nil {
				t := *paidAt
				u.CommissionPayments[i].PaidAt = &t
			}
			return nil
		}
	}
	return fmt.Errorf("commission payment %s: %w", paymentID, store.ErrNotFound)
}

func (s *Store) afterWrite(c collection, err error) error {
	if err != nil {
		return err
	}
	s.writes.Add(1)
	if c >= 0 {
		s.publish(c)
	}
	return nil
}
