package api

import (
	"net/http"
	"strings"

	"monositi/internal/models"
	"monositi/internal/service"
)

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in service.BookingInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	booking, err := s.svc.Bookings.Create(ctx, actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// handleListBookings lists the caller's bookings; ?as=provider switches the
// perspective and ?scope=all returns every booking to admins.
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	actor := actorFrom(r.Context())

	var (
		bookings []*models.ServiceBooking
		err      error
	)
	if r.URL.Query().Get("scope") == "all" {
		bookings, err = s.svc.Bookings.All(ctx, actor)
	} else {
		as := strings.TrimSpace(r.URL.Query().Get("as"))
		if as == "" {
			as = service.AsCustomer
		}
		bookings, err = s.svc.Bookings.ListMine(ctx, actor, as)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	booking, err := s.svc.Bookings.Get(ctx, actorFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Action models.BookingAction `json:"action"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	booking, err := s.svc.Bookings.Transition(ctx, actorFrom(r.Context()), id, body.Action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleRateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in service.RatingInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	booking, err := s.svc.Bookings.Rate(ctx, actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCreateEnquiry(w http.ResponseWriter, r *http.Request) {
	var in service.EnquiryInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	enquiry, err := s.svc.Enquiries.Create(ctx, actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, enquiry)
}

func (s *HTTPServer) handleInbox(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	items, err := s.svc.Enquiries.Inbox(ctx, actorFrom(r.Context()), strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleEnquiryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	enquiry, err := s.svc.Enquiries.UpdateStatus(ctx, actorFrom(r.Context()), id, body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enquiry)
}
