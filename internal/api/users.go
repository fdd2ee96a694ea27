package api

import (
	"errors"
	"net/http"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"
	"ambient-pro/internal/views"

	"github.com/go-chi/chi/v5"
)

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	metric := views.Metric(r.URL.Query().Get("by"))
	switch metric {
	case "":
		metric = views.MetricDeals
	case views.MetricDeals, views.MetricCommission:
	default:
		writeError(w, apperrors.NewValidationError(map[string]string{"by": "must be deals or commission"}))
		return
	}

	users, err := s.store.ListUsers(r.Context(), store.UserFilter{Office: r.URL.Query().Get("office")})
	if err != nil {
		writeError(w, apperrors.NewPersistenceError("list_users", err))
		return
	}
	writeJSON(w, http.StatusOK, views.Leaderboard(users, metric))
}

type closerSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Office string `json:"office,omitempty"`
}

func (s *Server) candidateClosers(w http.ResponseWriter, r *http.Request) {
	office := r.URL.Query().Get("office")
	if office == "" {
		office = viewerOf(r).Office
	}
	users, err := s.store.ListUsers(r.Context(), store.UserFilter{Role: models.RoleCloser})
	if err != nil {
		writeError(w, apperrors.NewPersistenceError("list_users", err))
		return
	}

	closers := views.CandidateClosers(users, office)
	out := make([]closerSummary, 0, len(closers))
	for _, c := range closers {
		out = append(out, closerSummary{ID: c.ID, Name: c.Name, Office: c.Office})
	}
	writeJSON(w, http.StatusOK, out)
}

type commissionSummary struct {
	UserID          string                     `json:"userId"`
	DealCount       int                        `json:"dealCount"`
	TotalCommission float64                    `json:"totalCommission"`
	Pending         float64                    `json:"pending"`
	Paid            float64                    `json:"paid"`
	Entries         []models.CommissionPayment `json:"entries"`
}

func (s *Server) commissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v := viewerOf(r)
	if !v.SeesEverything() && v.ID != id {
		writeError(w, apperrors.NewForbiddenError("commission ledgers are private"))
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, apperrors.NewNotFoundError("User", id))
			return
		}
		writeError(w, apperrors.NewPersistenceError("get_user", err))
		return
	}

	summary := commissionSummary{
		UserID:          user.ID,
		DealCount:       user.DealCount,
		TotalCommission: user.TotalCommission,
		Entries:         user.CommissionPayments,
	}
	if summary.Entries == nil {
		summary.Entries = []models.CommissionPayment{}
	}
	for _, e := range user.CommissionPayments {
		if e.Status == models.PaymentStatusPaid {
			summary.Paid += e.Amount
		} else {
			summary.Pending += e.Amount
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) markPaid(w http.ResponseWriter, r *http.Request) {
	entry, err := s.engine.MarkCommissionPaid(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
