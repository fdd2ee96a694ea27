// Package store defines the record store used by the lifecycle engine: the
// Sets, Projects and Users collections with create, query, conditional
// update, delete and change subscriptions.
package store

import (
	"context"
	"errors"
	"time"

	"ambient-pro/internal/models"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrConflict  = errors.New("store: version conflict")
	ErrDuplicate = errors.New("store: duplicate record")
)

// Condition guards an update or delete. A zero ExpectedVersion is unconditional.
type Condition struct {
	ExpectedVersion int64
}

// Holds reports whether a record at version satisfies the condition.
func (c Condition) Holds(version int64) bool {
	return c.ExpectedVersion == 0 || c.ExpectedVersion == version
}

// SetStore is the Sets collection.
type SetStore interface {
	CreateSet(ctx context.Context, set *models.Set) error
	GetSet(ctx context.Context, id string) (*models.Set, error)
	ListSets(ctx context.Context, filter SetFilter) ([]*models.Set, error)
	UpdateSet(ctx context.Context, id string, patch SetPatch, cond Condition) (*models.Set, error)
	DeleteSet(ctx context.Context, id string, cond Condition) error
}

// ProjectStore is the Projects collection.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*models.Project, error)
	CountProjects(ctx context.Context, userID string) (int, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch, cond Condition) (*models.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// UserStore is the Users collection with commission ledgers.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error)
	AppendCommissionPayment(ctx context.Context, userID string, payment models.CommissionPayment) error
	IncrementAggregates(ctx context.Context, userID string, deals int, commission float64) error
	SetCommissionStatus(ctx context.Context, userID, paymentID string, status models.PaymentStatus, paidAt *time.Time) error
}

// Tx is the view of all collections inside a transaction.
type Tx interface {
	SetStore
	ProjectStore
	UserStore
}

// Subscription is released with Unsubscribe. Unsubscribe is idempotent and
// must not be called from inside the subscription callback.
type Subscription interface {
	Unsubscribe()
}

// Store is the full record store.
type Store interface {
	Tx

	// WithTx runs fn atomically. Any error from fn rolls back every write.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// SubscribeSets calls onChange with the full matching collection once
	// immediately and again after every change. Callbacks for one
	// subscription never run concurrently.
	SubscribeSets(ctx context.Context, filter SetFilter, onChange func([]*models.Set)) (Subscription, error)
	SubscribeProjects(ctx context.Context, filter ProjectFilter, onChange func([]*models.Project)) (Subscription, error)

	Close() error
}
