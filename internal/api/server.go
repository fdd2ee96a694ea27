// Package api serves the Ambient Pro HTTP API. Every response goes through
// role-scoped redaction before it leaves the server.
package api

import (
	"context"
	"net/http"
	"time"

	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/invites"
	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/models"
	"ambient-pro/internal/search"
	"ambient-pro/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// InviteService is the recruiting and preferences backend.
type InviteService interface {
	Create(ctx context.Context, inviterID, email string) (*invites.Invite, error)
	Lookup(ctx context.Context, token string) (*invites.Invite, error)
	Redeem(ctx context.Context, token string) (*invites.Invite, error)
	SetPreference(ctx context.Context, userID, key, value string) error
	Preferences(ctx context.Context, userID string) (map[string]string, error)
}

// ProjectSearcher runs full-text project queries.
type ProjectSearcher interface {
	Search(ctx context.Context, q search.Query) ([]*models.Project, error)
}

// Server holds the API dependencies.
type Server struct {
	engine  *lifecycle.Engine
	store   store.Store
	invites InviteService
	search  ProjectSearcher
	limiter *RateLimiter
	timeout time.Duration
	logger  logger.Logger
}

type Option func(*Server)

func WithInvites(svc InviteService) Option {
	return func(s *Server) { s.invites = svc }
}

func WithSearch(searcher ProjectSearcher) Option {
	return func(s *Server) { s.search = searcher }
}

func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithRequestTimeout bounds each request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.logger = log }
}

func NewServer(engine *lifecycle.Engine, st store.Store, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		store:   st,
		timeout: 30 * time.Second,
		logger:  logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Route("/api", func(r chi.Router) {
		// Invite lookups come from people without an account yet.
		r.Group(func(pub chi.Router) {
			if s.limiter != nil {
				pub.Use(s.limiter.Handler)
			}
			pub.Get("/invites/{token}", s.lookupInvite)
			pub.Post("/invites/{token}/redeem", s.redeemInvite)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(RequireViewer)
			if s.limiter != nil {
				pr.Use(s.limiter.Handler)
			}

			pr.Get("/sets", s.listSets)
			pr.Get("/sets/grouped", s.groupedSets)
			pr.With(RequireRole(models.RoleAdmin, models.RoleManager, models.RoleSetter)).Post("/sets", s.createSet)
			pr.With(RequireRole(models.RoleAdmin, models.RoleManager, models.RoleCloser)).Post("/sets/{id}/assign", s.assignCloser)
			pr.Post("/sets/{id}/transition", s.transitionSet)
			pr.With(RequireRole(models.RoleAdmin, models.RoleManager, models.RoleCloser)).Post("/sets/{id}/close", s.closeSet)

			pr.Get("/projects", s.listProjects)
			pr.Get("/projects/grouped", s.groupedProjects)
			pr.With(RequireRole(models.RoleAdmin, models.RoleManager)).Post("/projects/{id}/advance", s.advanceProject)

			pr.Get("/leaderboard", s.leaderboard)
			pr.Get("/closers", s.candidateClosers)
			pr.Get("/users/{id}/commissions", s.commissions)
			pr.With(RequireRole(models.RoleAdmin, models.RoleManager)).Post("/users/{id}/commissions/{entryID}/paid", s.markPaid)

			pr.Post("/invites", s.createInvite)
			pr.Get("/preferences", s.preferences)
			pr.Put("/preferences", s.setPreference)
		})
	})

	return r
}

func viewerOf(r *http.Request) models.Viewer {
	v, _ := ViewerFrom(r.Context())
	return v
}
