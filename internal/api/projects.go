package api

import (
	"net/http"
	"strings"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/models"
	"ambient-pro/internal/search"
	"ambient-pro/internal/store"
	"ambient-pro/internal/views"

	"github.com/go-chi/chi/v5"
)

func projectQueryFrom(r *http.Request) (views.ProjectQuery, error) {
	q := views.ProjectQuery{
		OwnerID: r.URL.Query().Get("owner"),
		Search:  r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := models.ProjectStatus(strings.TrimSpace(part))
			if !st.Valid() {
				return q, apperrors.NewValidationError(map[string]string{"status": "unknown status " + string(st)})
			}
			q.Statuses = append(q.Statuses, st)
		}
	}
	return q, nil
}

// visibleProjects answers from the search index when there is a text query
// and an index, and from the store otherwise. Index queries are scoped to the
// viewer's own projects unless the viewer sees everything.
func (s *Server) visibleProjects(r *http.Request) ([]*models.Project, error) {
	q, err := projectQueryFrom(r)
	if err != nil {
		return nil, err
	}
	v := viewerOf(r)

	var projects []*models.Project
	if s.search != nil && strings.TrimSpace(q.Search) != "" {
		sq := search.Query{Text: q.Search, OwnerID: q.OwnerID}
		if !v.SeesEverything() {
			sq.ParticipantID = v.ID
		}
		projects, err = s.search.Search(r.Context(), sq)
		if err != nil {
			return nil, err
		}
		q.Search = ""
	} else {
		projects, err = s.store.ListProjects(r.Context(), store.ProjectFilter{UserID: q.OwnerID})
		if err != nil {
			return nil, apperrors.NewPersistenceError("list_projects", err)
		}
	}

	return views.FilterProjects(views.VisibleProjects(projects, v), q), nil
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.visibleProjects(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.SortProjectsByDeal(projects))
}

func (s *Server) groupedProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.visibleProjects(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views.GroupProjectsByStatus(projects))
}

type advanceRequest struct {
	Status models.ProjectStatus `json:"status"`
	Date   string               `json:"date,omitempty"`
}

func (s *Server) advanceProject(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	project, err := s.engine.AdvanceProject(r.Context(), chi.URLParam(r, "id"), req.Status, req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}
