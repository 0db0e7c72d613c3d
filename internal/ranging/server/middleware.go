package server

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// loggingMiddleware logs every request with its method, path, status,
// and duration, mirroring internal/server's LoggingInterceptor but as a
// plain net/http middleware instead of a ConnectRPC interceptor.
//
// Log level is Info for 2xx/3xx responses and Warn otherwise.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
		}

		if sw.status >= 400 {
			logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed with error", attrs...)
		} else {
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
		}
	})
}

// recoveryMiddleware recovers from panics in next, logging the panic value
// and stack trace at Error level and returning a 500 to the client,
// mirroring internal/server's RecoveryInterceptor.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				logger.ErrorContext(r.Context(), "panic recovered in http handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(buf[:n])),
				)

				writeError(w, http.StatusInternalServerError, ErrPanicRecovered)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the status code written to an http.ResponseWriter
// so loggingMiddleware can report it after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
