package api

import (
	"context"
	"net/http"
	"strings"

	"monositi/internal/models"
	"monositi/internal/policy"
	"monositi/internal/service"
)

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	s.createService(w, r, s.svc.Catalog.Create)
}

// handleOnboardService is the first-service path that promotes a tenant.
func (s *HTTPServer) handleOnboardService(w http.ResponseWriter, r *http.Request) {
	s.createService(w, r, s.svc.Catalog.CreateAsFirstService)
}

type createServiceFunc func(ctx context.Context, actor policy.Actor, in service.ServiceInput) (*models.Service, error)

func (s *HTTPServer) createService(w http.ResponseWriter, r *http.Request, create createServiceFunc) {
	var in service.ServiceInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	created, err := create(ctx, actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := models.ServiceFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		City:     strings.TrimSpace(r.URL.Query().Get("city")),
		Page:     page,
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	result, err := s.svc.Catalog.List(ctx, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleMyServices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	services, err := s.svc.Catalog.Mine(ctx, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	svc, err := s.svc.Catalog.Get(ctx, actorFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in service.ServiceUpdate
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	svc, err := s.svc.Catalog.Update(ctx, actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleServiceVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Verified bool `json:"verified"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	svc, err := s.svc.Catalog.SetVerification(ctx, actorFrom(r.Context()), id, body.Verified)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleServiceAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Dates []string `json:"dates"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	svc, err := s.svc.Catalog.SetAvailability(ctx, actorFrom(r.Context()), id, body.Dates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleServiceActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	svc, err := s.svc.Catalog.ToggleActive(ctx, actorFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in service.ProviderRequestInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	req, err := s.svc.Onboarding.Submit(ctx, actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *HTTPServer) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	reqs, err := s.svc.Onboarding.List(ctx, actorFrom(r.Context()), strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *HTTPServer) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	reqs, err := s.svc.Onboarding.Mine(ctx, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *HTTPServer) handleDecideRequest(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var body struct {
			Comment string `json:"comment"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &body); err != nil {
				s.writeError(w, r, err)
				return
			}
		}

		ctx, cancel := s.callCtx(r)
		defer cancel()
		req, err := s.svc.Onboarding.Decide(ctx, actorFrom(r.Context()), id, approve, body.Comment)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}
