package api

import (
	"net/http"

	apperrors "ambient-pro/internal/common/errors"

	"github.com/go-chi/chi/v5"
)

func (s *Server) invitesAvailable(w http.ResponseWriter) bool {
	if s.invites != nil {
		return true
	}
	writeRawJSON(w, http.StatusServiceUnavailable, apiResponse{
		Status:  "error",
		Message: "invites are not configured",
		Error:   &apiError{Code: "UNAVAILABLE", Status: http.StatusServiceUnavailable},
	})
	return false
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (s *Server) createInvite(w http.ResponseWriter, r *http.Request) {
	if !s.invitesAvailable(w) {
		return
	}
	var req inviteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	inv, err := s.invites.Create(r.Context(), viewerOf(r).ID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) lookupInvite(w http.ResponseWriter, r *http.Request) {
	if !s.invitesAvailable(w) {
		return
	}
	inv, err := s.invites.Lookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) redeemInvite(w http.ResponseWriter, r *http.Request) {
	if !s.invitesAvailable(w) {
		return
	}
	inv, err := s.invites.Redeem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type preferenceRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) preferences(w http.ResponseWriter, r *http.Request) {
	if !s.invitesAvailable(w) {
		return
	}
	prefs, err := s.invites.Preferences(r.Context(), viewerOf(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	if !s.invitesAvailable(w) {
		return
	}
	var req preferenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Key == "" {
		writeError(w, apperrors.NewValidationError(map[string]string{"key": "required"}))
		return
	}
	if err := s.invites.SetPreference(r.Context(), viewerOf(r).ID, req.Key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{req.Key: req.Value})
}
