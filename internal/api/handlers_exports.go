package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"monositi/internal/domain"
	"monositi/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	bookings, err := s.svc.Bookings.All(ctx, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings); err != nil {
		s.writeError(w, r, domain.Upstream("cannot build export", err))
		return
	}
	writeAttachment(w, "bookings", buf.Bytes())
}

func (s *HTTPServer) handleExportListings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	listings, err := s.svc.Listings.All(ctx, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteListings(&buf, listings); err != nil {
		s.writeError(w, r, domain.Upstream("cannot build export", err))
		return
	}
	writeAttachment(w, "listings", buf.Bytes())
}

// writeAttachment buffers the workbook first so a build failure can still
// produce a JSON error.
func writeAttachment(w http.ResponseWriter, name string, data []byte) {
	filename := fmt.Sprintf("%s_%s.xlsx", name, time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
