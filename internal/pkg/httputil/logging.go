package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5/middleware"
)

// quietPaths are polled by supervisors and logged at debug only.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// RequestLoggerMiddleware injects a logger carrying the request id into the
// request context and logs each request once it completes. Server errors log
// at error, client errors at warn.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With("request_id", middleware.GetReqID(r.Context()))
			ctx := ctxlog.WithLogger(r.Context(), logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Log(ctx, requestLevel(r.URL.Path, ww.Status()), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
