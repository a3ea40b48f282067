package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"monositi/internal/domain"
	"monositi/internal/metrics"
	"monositi/internal/policy"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxActor
)

const headerRequestID = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := recorder.pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, recorder.status)

		ev := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r) {
			writeFailure(w, http.StatusTooManyRequests, string(domain.KindRateLimited), "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves an optional bearer token into the request actor.
// A present but invalid token is rejected even on public routes.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeFailure(w, http.StatusUnauthorized, string(domain.KindUnauthenticated), "expected a bearer token")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		user, err := s.svc.Identity.ResolveSession(ctx, strings.TrimSpace(token))
		cancel()
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx = context.WithValue(r.Context(), ctxActor, policy.ActorFor(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) policy.Actor {
	actor, _ := ctx.Value(ctxActor).(policy.Actor)
	return actor
}

// authed rejects anonymous callers before the handler runs.
func (s *HTTPServer) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r.Context()).Authenticated() {
			writeFailure(w, http.StatusUnauthorized, string(domain.KindUnauthenticated), "sign in required")
			return
		}
		h(w, r)
	}
}

func (s *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("request_id", requestIDFrom(r.Context())).Msg("Handler panicked")
				writeFailure(w, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
		// The mux records the matched pattern on the request it was handed,
		// which is a copy of the one the access log sees.
		if rec, ok := w.(*statusRecorder); ok {
			rec.pattern = r.Pattern
		}
	})
}

// callCtx bounds store calls made on behalf of a request.
func (s *HTTPServer) callCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	pattern string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
