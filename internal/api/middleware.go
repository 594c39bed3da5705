package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"

	"github.com/libris/libris-server/internal/audit"
	"github.com/libris/libris-server/internal/id"
	"github.com/libris/libris-server/internal/logger"
)

// requestIDHeader carries the request id in both directions.
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags the request with an id, reusing a sane incoming one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if !validRequestID(rid) {
			rid = id.MustGenerate("req")
		}
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), rid)))
	})
}

func validRequestID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: !wildcard, // browsers refuse credentials with a wildcard origin
		MaxAge:           300,
	})
}

// recordRequest logs every handled request and appends it to the audit log.
func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		rec := &audit.Record{
			RequestID:  logger.RequestID(r.Context()),
			Method:     r.Method,
			Path:       r.URL.Path,
			Query:      r.URL.RawQuery,
			Status:     status,
			DurationMs: time.Since(start).Milliseconds(),
			RemoteIP:   s.clientIP(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr),
		}
		if p := GetPrincipal(r.Context()); p != nil {
			rec.ActorRole = string(p.Role())
			rec.ActorID = p.ID()
		}

		s.logger.DebugContext(r.Context(), "request handled",
			"method", rec.Method,
			"path", rec.Path,
			"status", rec.Status,
			"duration_ms", rec.DurationMs,
		)

		if s.audit == nil {
			return
		}
		// The client may already be gone; the record is still written.
		if err := s.audit.Append(context.WithoutCancel(r.Context()), rec); err != nil {
			s.logger.WarnContext(r.Context(), "audit append failed", "error", err)
		}
	})
}

// notFound renders unknown routes with the error envelope.
func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(errorEnvelope(statusToCode(http.StatusNotFound), "route not found", nil))
}
