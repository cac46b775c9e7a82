package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/wtselser/internal/metrics"
)

// AuthMiddleware checks the bearer token against the configured key.
func AuthMiddleware(apiKey string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				jsonError(w, "missing authorization", http.StatusUnauthorized)
				return
			}
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				log.Warn("rejected api key", "route", routePattern(r), "remote", r.RemoteAddr)
				jsonError(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// conversionNote is filled in by handlers with what they converted, so
// the access log line can name the page and how it was serialized.
type conversionNote struct {
	title    string
	revision int64
	mode     string
	faults   int
}

type conversionNoteKey struct{}

// noteFor returns the note attached to r. Handlers served without
// AccessLog get a throwaway one.
func noteFor(r *http.Request) *conversionNote {
	if n, ok := r.Context().Value(conversionNoteKey{}).(*conversionNote); ok {
		return n
	}
	return &conversionNote{}
}

// AccessLog writes one line per request and counts it under its route
// pattern, so job IDs do not become label values.
func AccessLog(log *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			note := &conversionNote{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), conversionNoteKey{}, note)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			m.ObserveRequest(route, status)

			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if note.mode != "" {
				attrs = append(attrs, "mode", note.mode, "faults", note.faults)
			}
			if note.title != "" {
				attrs = append(attrs, "title", note.title)
			}
			if note.revision > 0 {
				attrs = append(attrs, "revision", note.revision)
			}
			log.Info("request", attrs...)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
