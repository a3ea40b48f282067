package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"monositi/internal/config"
	"monositi/internal/service"

	"github.com/rs/zerolog"
)

// Services groups the lifecycle components exposed over HTTP.
type Services struct {
	Identity   *service.IdentityService
	Users      *service.UserService
	Listings   *service.ListingService
	Catalog    *service.CatalogService
	Onboarding *service.OnboardingService
	Bookings   *service.BookingService
	Enquiries  *service.EnquiryService
	Search     *service.SearchService
	// Ready reports whether the process can serve traffic.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the marketplace API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	server  *http.Server
	limiter *rateLimiter
	logger  zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	s := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  l,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	handler := s.recoverMiddleware(mux)
	handler = s.authenticate(handler)
	handler = s.rateLimit(handler)
	handler = s.accessLog(handler)
	handler = requestID(handler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SweepRateLimiters drops per-client buckets that have been idle longer than
// the configured TTL. It is meant to run as a scheduled job.
func (s *HTTPServer) SweepRateLimiters(_ context.Context) error {
	if removed := s.limiter.sweep(); removed > 0 {
		s.logger.Debug().Int("removed", removed).Int("remaining", s.limiter.size()).Msg("Rate limiters swept")
	}
	return nil
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /otp/request", s.handleRequestCode)
	mux.HandleFunc("POST /otp/verify", s.handleVerifyCode)
	mux.HandleFunc("GET /me", s.authed(s.handleMe))

	mux.HandleFunc("GET /listings", s.handleListListings)
	mux.HandleFunc("POST /listings", s.authed(s.handleCreateListing))
	mux.HandleFunc("GET /listings/nearby", s.handleNearby)
	mux.HandleFunc("GET /listings/mine", s.authed(s.handleMyListings))
	mux.HandleFunc("GET /listings/{id}", s.handleGetListing)
	mux.HandleFunc("PATCH /listings/{id}", s.authed(s.handleUpdateListing))
	mux.HandleFunc("PATCH /listings/{id}/status", s.authed(s.handleListingStatus))
	mux.HandleFunc("PATCH /listings/{id}/verify", s.authed(s.handleListingVerify))
	mux.HandleFunc("POST /listings/{id}/images", s.authed(s.handleListingImages))
	mux.HandleFunc("POST /listings/{id}/rooms", s.authed(s.handleAddRoom))
	mux.HandleFunc("GET /listings/{id}/rooms", s.handleListRooms)
	mux.HandleFunc("PATCH /rooms/{id}/status", s.authed(s.handleAdjustBeds))

	mux.HandleFunc("POST /services", s.authed(s.handleCreateService))
	mux.HandleFunc("POST /services/onboard", s.authed(s.handleOnboardService))
	mux.HandleFunc("GET /services", s.handleListServices)
	mux.HandleFunc("GET /services/mine", s.authed(s.handleMyServices))
	mux.HandleFunc("GET /services/{id}", s.handleGetService)
	mux.HandleFunc("PATCH /services/{id}", s.authed(s.handleUpdateService))
	mux.HandleFunc("PATCH /services/{id}/verify", s.authed(s.handleServiceVerify))
	mux.HandleFunc("PATCH /services/{id}/availability", s.authed(s.handleServiceAvailability))
	mux.HandleFunc("PATCH /services/{id}/active", s.authed(s.handleServiceActive))

	mux.HandleFunc("POST /provider-requests", s.authed(s.handleSubmitRequest))
	mux.HandleFunc("GET /provider-requests", s.authed(s.handleListRequests))
	mux.HandleFunc("GET /provider-requests/mine", s.authed(s.handleMyRequests))
	mux.HandleFunc("PATCH /provider-requests/{id}/approve", s.authed(s.handleDecideRequest(true)))
	mux.HandleFunc("PATCH /provider-requests/{id}/reject", s.authed(s.handleDecideRequest(false)))

	mux.HandleFunc("POST /bookings", s.authed(s.handleCreateBooking))
	mux.HandleFunc("GET /bookings", s.authed(s.handleListBookings))
	mux.HandleFunc("GET /bookings/{id}", s.authed(s.handleGetBooking))
	mux.HandleFunc("PATCH /bookings/{id}/status", s.authed(s.handleBookingStatus))
	mux.HandleFunc("POST /bookings/{id}/rate", s.authed(s.handleRateBooking))

	mux.HandleFunc("POST /enquiries", s.handleCreateEnquiry)
	mux.HandleFunc("GET /enquiries", s.authed(s.handleInbox))
	mux.HandleFunc("PATCH /enquiries/{id}/status", s.authed(s.handleEnquiryStatus))

	mux.HandleFunc("PATCH /admin/users/{id}/role", s.authed(s.handleSetRole))
	mux.HandleFunc("PATCH /admin/users/{id}/active", s.authed(s.handleSetActive))
	mux.HandleFunc("GET /admin/exports/bookings", s.authed(s.handleExportBookings))
	mux.HandleFunc("GET /admin/exports/listings", s.authed(s.handleExportListings))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeFailure(w, http.StatusServiceUnavailable, "upstream_failure", "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
