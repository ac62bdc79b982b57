package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/pipekit/logger"
)

// RequestLogger returns middleware that logs every request with method,
// path, status code, and duration. Health-check paths are silently skipped.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newRecordingWriter(w)
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			fields := map[string]interface{}{
				"method":              r.Method,
				"path":                r.URL.Path,
				"status":              rw.Status(),
				"bytes":               rw.bytes,
				logger.FieldDuration: duration.Milliseconds(),
			}
			if id := r.Header.Get(HeaderRequestID); id != "" {
				fields["request_id"] = id
			}
			if duration > 500*time.Millisecond {
				fields["slow"] = true
			}

			logByStatus(log, fields, rw.Status())
		})
	}
}

func isHealthEndpoint(path string) bool {
	switch strings.TrimPrefix(path, "/api") {
	case "/health", "/version":
		return true
	}
	return false
}

// logByStatus logs request fields at the appropriate level based on HTTP status code.
func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("Request completed", fields)
	case status >= 400:
		log.Warn("Request completed", fields)
	default:
		log.Debug("Request completed", fields)
	}
}
