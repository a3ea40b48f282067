package api

import (
	"net/http"

	"monositi/internal/models"
)

func (s *HTTPServer) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Code delivery has its own timeout inside the identity service.
	if err := s.svc.Identity.RequestCode(r.Context(), body.Phone); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "code sent"})
}

func (s *HTTPServer) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	session, err := s.svc.Identity.VerifyCode(ctx, body.Phone, body.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	user, err := s.svc.Users.Get(ctx, actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Role models.Role `json:"role"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	user, err := s.svc.Users.SetRole(ctx, actorFrom(r.Context()), id, body.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Active == nil {
		writeFailure(w, http.StatusBadRequest, "validation_error", "active is required")
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	user, err := s.svc.Users.SetActive(ctx, actorFrom(r.Context()), id, *body.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
