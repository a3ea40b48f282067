package api

import (
	"io"
	"net/http"
	"strings"

	"monositi/internal/domain"
	"monositi/internal/models"
	"monositi/internal/service"
)

const maxMultipartMemory = 32 << 20

func (s *HTTPServer) handleListListings(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	minPrice, _, err := queryFloat(r, "min_price")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	maxPrice, _, err := queryFloat(r, "max_price")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := models.ListingFilter{
		City:     strings.TrimSpace(q.Get("city")),
		Kind:     models.ListingKind(strings.TrimSpace(q.Get("kind"))),
		Category: strings.TrimSpace(q.Get("category")),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Page:     page,
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	result, err := s.svc.Listings.List(ctx, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, okLat, err := queryFloat(r, "lat")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lng, okLng, err := queryFloat(r, "lng")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	radius, okRadius, err := queryFloat(r, "radius")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !okLat || !okLng || !okRadius {
		s.writeError(w, r, domain.Validation("lat, lng and radius are required"))
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	result, err := s.svc.Search.Nearby(ctx, lat, lng, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var in service.ListingInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	listing, err := s.svc.Listings.Create(ctx, actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *HTTPServer) handleMyListings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	listings, err := s.svc.Listings.Mine(ctx, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *HTTPServer) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	listing, err := s.svc.Listings.Get(ctx, actorFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in service.ListingUpdate
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	listing, err := s.svc.Listings.Update(ctx, actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleListingStatus(w http.ResponseWriter, r *http.Request) {
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
	listing, err := s.svc.Listings.SetStatus(ctx, actorFrom(r.Context()), id, body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleListingVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Decision string `json:"decision"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	listing, err := s.svc.Listings.SetVerification(ctx, actorFrom(r.Context()), id, body.Decision)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// handleListingImages accepts multipart uploads under the "images" field.
func (s *HTTPServer) handleListingImages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.writeError(w, r, domain.Validation("expected multipart form data: %v", err))
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		s.writeError(w, r, domain.Validation("at least one file is required under images"))
		return
	}

	files := make([]service.MediaFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, r, domain.Validation("cannot read %s", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, r, domain.Validation("cannot read %s", fh.Filename))
			return
		}
		files = append(files, service.MediaFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	// Uploads can outlive the default store timeout.
	listing, err := s.svc.Listings.AddImages(r.Context(), actorFrom(r.Context()), id, files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleAddRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in service.RoomInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	room, err := s.svc.Listings.AddRoom(ctx, actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	rooms, err := s.svc.Listings.ListRooms(ctx, actorFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *HTTPServer) handleAdjustBeds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Action string `json:"action"`
		Beds   int    `json:"beds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	room, err := s.svc.Listings.AdjustBeds(ctx, actorFrom(r.Context()), id, body.Action, body.Beds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}
