package api

import (
	"errors"
	"net/http"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/models"
	"ambient-pro/internal/store"
	"ambient-pro/internal/views"

	"github.com/go-chi/chi/v5"
)

func setQueryFrom(r *http.Request) (views.SetQuery, error) {
	q := views.SetQuery{
		Tab:    views.Tab(r.URL.Query().Get("tab")),
		Office: r.URL.Query().Get("office"),
		Search: r.URL.Query().Get("q"),
	}
	if q.Tab == "" {
		q.Tab = views.TabAll
	}
	if !q.Tab.Valid() {
		return q, apperrors.NewValidationError(map[string]string{"tab": "unknown tab " + string(q.Tab)})
	}
	return q, nil
}

func (s *Server) visibleSets(r *http.Request) ([]*models.Set, error) {
	q, err := setQueryFrom(r)
	if err != nil {
		return nil, err
	}
	sets, err := s.store.ListSets(r.Context(), store.SetFilter{})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list_sets", err)
	}
	return views.SetView(sets, viewerOf(r), q), nil
}

func (s *Server) listSets(w http.ResponseWriter, r *http.Request) {
	sets, err := s.visibleSets(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (s *Server) groupedSets(w http.ResponseWriter, r *http.Request) {
	sets, err := s.visibleSets(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.GroupByAppointmentDate(sets))
}

func (s *Server) createSet(w http.ResponseWriter, r *http.Request) {
	var in models.NewSet
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	v := viewerOf(r)
	if !v.SeesEverything() || in.UserID == "" {
		in.UserID = v.ID
	}
	if in.Office == "" {
		in.Office = v.Office
	}

	set, err := s.engine.CreateSet(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

type assignRequest struct {
	CloserID        string `json:"closerId"`
	CloserName      string `json:"closerName"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
	Reassign        bool   `json:"reassign,omitempty"`
}

func (s *Server) assignCloser(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v := viewerOf(r)
	if v.Role == models.RoleCloser {
		if req.CloserID == "" {
			req.CloserID = v.ID
		}
		if req.CloserID != v.ID || req.Reassign {
			writeError(w, apperrors.NewForbiddenError("closers can only claim sets for themselves"))
			return
		}
	}

	set, err := s.engine.AssignCloser(r.Context(), chi.URLParam(r, "id"), req.CloserID, req.CloserName,
		lifecycle.AssignOptions{ExpectedVersion: req.ExpectedVersion, Reassign: req.Reassign})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.FilterVisibleSets([]*models.Set{set}, v)[0])
}

type transitionRequest struct {
	Status          models.SetStatus `json:"status"`
	ExpectedVersion int64            `json:"expectedVersion,omitempty"`
}

func (s *Server) transitionSet(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.authorizeSetWrite(r, id); err != nil {
		writeError(w, err)
		return
	}

	set, err := s.engine.TransitionSet(r.Context(), id, req.Status, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.FilterVisibleSets([]*models.Set{set}, viewerOf(r))[0])
}

type closeRequest struct {
	Form            models.CloseForm `json:"form"`
	Confirmed       bool             `json:"confirmed"`
	ExpectedVersion int64            `json:"expectedVersion,omitempty"`
}

type closeResponse struct {
	Project    *models.Project          `json:"project"`
	Ledger     models.CommissionPayment `json:"ledger"`
	GrossCost  float64                  `json:"grossCost"`
	MirroredTo string                   `json:"mirroredTo,omitempty"`
}

func (s *Server) closeSet(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.authorizeSetWrite(r, id); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.engine.CloseSet(r.Context(), lifecycle.CloseRequest{
		SetID:           id,
		ClosingUserID:   viewerOf(r).ID,
		Form:            req.Form,
		Confirmed:       req.Confirmed,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, closeResponse{
		Project:    res.Project,
		Ledger:     res.Ledger,
		GrossCost:  res.GrossCost,
		MirroredTo: res.MirroredTo,
	})
}

// authorizeSetWrite lets admins and managers through and otherwise requires
// the viewer to own the set in their role.
func (s *Server) authorizeSetWrite(r *http.Request, setID string) error {
	v := viewerOf(r)
	if v.SeesEverything() {
		return nil
	}
	set, err := s.store.GetSet(r.Context(), setID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewNotFoundError("Set", setID)
		}
		return apperrors.NewPersistenceError("get_set", err)
	}
	switch {
	case v.Role == models.RoleCloser && set.CloserID == v.ID:
		return nil
	case v.Role == models.RoleSetter && set.UserID == v.ID:
		return nil
	}
	return apperrors.NewForbiddenError("set " + setID + " is not assigned to the viewer")
}
