package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// statusRecorder remembers the status a handler sent, including the
// implicit 200 of a bare Write.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

// api wraps an API handler with CORS and request instrumentation.
func (s *Server) api(next http.HandlerFunc) http.HandlerFunc {
	return s.withCORS(instrument(next))
}

// withCORS answers preflight requests itself and decorates everything else.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// instrument counts and times requests by route pattern, not raw path, so
// image indexes do not become label values.
func instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		code := rec.code()
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", code, "duration", elapsed)
	}
}
