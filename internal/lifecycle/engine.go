// Package lifecycle moves Sets through their statuses, closes them into
// Projects with derived commission fields, and advances Projects through the
// installation pipeline.
package lifecycle

import (
	"context"
	"errors"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/common/observability"
	"ambient-pro/internal/commission"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProjectIndexer receives projects after they are created or advanced.
// Indexing is best-effort and never fails the operation.
type ProjectIndexer interface {
	IndexProject(ctx context.Context, project *models.Project) error
}

// Engine runs lifecycle operations against a record store.
type Engine struct {
	store   store.Store
	policy  *commission.Policy
	now     func() time.Time
	newID   func() string
	mirror  bool
	indexer ProjectIndexer
	logger  logger.Logger
	obs     *observability.Observability
}

// Option configures an Engine.
type Option func(*Engine)

func WithPolicy(p *commission.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how set and ledger entry ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithMirrorCreditToCloser also appends the ledger entry to the closing
// user's record when they are not the set owner.
func WithMirrorCreditToCloser(enabled bool) Option {
	return func(e *Engine) { e.mirror = enabled }
}

func WithIndexer(idx ProjectIndexer) Option {
	return func(e *Engine) { e.indexer = idx }
}

func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.logger = log }
}

func WithObservability(obs *observability.Observability) Option {
	return func(e *Engine) { e.obs = obs }
}

// NewEngine builds an engine with the default commission policy.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		policy: commission.DefaultPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: logger.NewNoOpLogger(),
		obs:    observability.NewNoop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithFields(map[string]interface{}{"component": "lifecycle"})
	return e
}

// Policy returns the commission policy in use.
func (e *Engine) Policy() *commission.Policy {
	return e.policy
}

// observe opens a span and returns the function that closes it and records
// the outcome.
func (e *Engine) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.obs.StartSpan(ctx, "lifecycle."+op, attrs...)
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = string(apperrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		elapsed := time.Since(start)
		e.obs.RecordOperation(ctx, op, status, elapsed)
		metrics.LifecycleDuration.WithLabelValues(op, status).Observe(elapsed.Seconds())
		span.End()
	}
}

// storeErr maps a store failure onto the error taxonomy. Errors that are
// already classified pass through unchanged.
func (e *Engine) storeErr(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError(kind, id)
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		metrics.LifecycleConflicts.WithLabelValues(op).Inc()
		stdErr := apperrors.NewConcurrencyConflictError(kind, id, err.Error())
		stdErr.Cause = err
		return stdErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperrors.NewPersistenceError(op, err)
	}
}

func (e *Engine) conflict(op, kind, id, details string) error {
	metrics.LifecycleConflicts.WithLabelValues(op).Inc()
	return apperrors.NewConcurrencyConflictError(kind, id, details)
}

func (e *Engine) index(ctx context.Context, p *models.Project) {
	if e.indexer == nil {
		return
	}
	if err := e.indexer.IndexProject(ctx, p); err != nil {
		e.logger.Warn("project indexing failed", map[string]interface{}{
			"projectId": p.ID,
			"error":     err.Error(),
		})
	}
}
