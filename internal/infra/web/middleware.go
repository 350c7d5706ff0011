package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fanpay/internal/infra/logging"
	"fanpay/internal/infra/metrics"
	redisinfra "fanpay/internal/infra/redis"
)

// traceMiddleware assigns every request a trace id and logs completion.
func traceMiddleware(log *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-Id")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			w.Header().Set("X-Trace-Id", traceID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := chi.RouteContext(r.Context()).RoutePattern()
			metrics.IncHTTPRequest(route, fmt.Sprintf("%dxx", ww.Status()/100))
			log.Debug().
				Str("trace_id", traceID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// rateLimitMiddleware caps authenticated write traffic per user. The
// limiter fails open so that Redis downtime does not take the payment
// API down with it.
func rateLimitMiddleware(rl *redisinfra.RateLimiter, limit int, window time.Duration, log *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := userID(r)
			if rl == nil || uid == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := rl.Allow(r.Context(), redisinfra.UserRouteKey(uid, r.URL.Path), limit, window)
			if err != nil {
				log.Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.IncRateLimitTriggered()
				writeJSON(w, http.StatusTooManyRequests, apiError{"rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
