package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_pos/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger attaches the chi request id to the request's logger context
// and logs one line per request once it is served.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := log.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := log.WithFields(ctx, map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn(fields, "request served with server error", nil)
				return
			}
			log.Debug(fields, "request served")
		})
	}
}
