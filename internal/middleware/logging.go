// internal/middleware/logging.go
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogMiddleware logs each moderator API request with a correlation id,
// method, path, and duration.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"request_id": uuid.NewString(),
				"method":     r.Method,
				"path":       r.URL.Path,
				"duration":   time.Since(start),
				"remote":     r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}
