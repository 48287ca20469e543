package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openrasters/coverageview/internal/logger"
	"github.com/openrasters/coverageview/internal/observability"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Observe wraps a handler with request logging and HTTP metrics under a
// stable route label.
func Observe(log *slog.Logger, route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		ctx := logger.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))

		next(sw, r.WithContext(ctx))

		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		log.DebugContext(ctx, "http request",
			"method", r.Method, "path", r.URL.Path, "status", sw.code)
	}
}

// Recover converts handler panics into 500s.
func Recover() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
