package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/adapters/metrics"
	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/ports"
)

// Headers read and written by the metering middleware.
const (
	HeaderServiceKey       = "X-Service-Key"
	HeaderOrganizationID   = "X-Organization-ID"
	HeaderUserID           = "X-User-ID"
	HeaderSessionID        = "X-Session-ID"
	HeaderCreditsConsumed  = "X-Credits-Consumed"
	HeaderCreditsRemaining = "X-Credits-Remaining"
)

// UsageTracker charges tracked actions and stamps them with its clock. *app.Tracker satisfies it.
type UsageTracker interface {
	TrackUsage(ctx context.Context, p app.TrackParams) app.TrackResult
	Now() time.Time
}

type trackResultKey struct{}

// TrackResultFromContext returns the charge recorded by MeterRequest, if any.
func TrackResultFromContext(ctx context.Context) (app.TrackResult, bool) {
	res, ok := ctx.Value(trackResultKey{}).(app.TrackResult)
	return res, ok
}

// MeterRequest charges eventType for every request before calling next.
// The organization comes from the {orgID} route parameter or the
// X-Organization-ID header, the user from X-User-ID. Rejected charges
// never reach next.
func MeterRequest(tracker UsageTracker, eventType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := chi.URLParam(r, "orgID")
			if orgID == "" {
				orgID = r.Header.Get(HeaderOrganizationID)
			}
			userID := r.Header.Get(HeaderUserID)

			if strings.TrimSpace(orgID) == "" {
				writeError(w, http.StatusBadRequest, "missing_organization", "Valid organization ID required for usage tracking")
				return
			}
			if strings.TrimSpace(userID) == "" {
				writeError(w, http.StatusUnauthorized, "missing_user", "Authentication required for usage tracking")
				return
			}

			params := app.TrackParams{
				OrganizationID: orgID,
				UserID:         userID,
				EventType:      eventType,
				EventData: event.Data{
					"endpoint":  r.URL.Path,
					"method":    r.Method,
					"userAgent": r.UserAgent(),
					"ipAddress": extractIP(r),
					"timestamp": tracker.Now().Format(time.RFC3339Nano),
				},
			}
			if s := r.Header.Get(HeaderSessionID); s != "" {
				if id, err := strconv.ParseInt(s, 10, 64); err == nil {
					params.SessionID = &id
				}
			}

			res := tracker.TrackUsage(r.Context(), params)
			if !res.Success {
				kind := res.Kind()
				writeError(w, kind.HTTPStatus(), kind.String(), res.Error)
				return
			}

			setCreditHeaders(w, res)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), trackResultKey{}, res)))
		})
	}
}

func setCreditHeaders(w http.ResponseWriter, res app.TrackResult) {
	w.Header().Set(HeaderCreditsConsumed, strconv.FormatInt(res.CreditsConsumed, 10))
	w.Header().Set(HeaderCreditsRemaining, res.RemainingCredits.String())
}

// ServiceKeyAuth requires X-Service-Key to match hash under keyHasher.
// An empty hash disables the check.
func ServiceKeyAuth(hash string, keyHasher ports.KeyHasher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderServiceKey)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing_service_key", "X-Service-Key header is required")
				return
			}
			if !keyHasher.Compare([]byte(hash), key) {
				writeError(w, http.StatusUnauthorized, "invalid_service_key", "The provided service key is invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLoggingMiddleware logs each request once it completes.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				return
			}

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware records request counts and latency by route pattern.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
