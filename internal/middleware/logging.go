package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/rpattn/yoda/internal/auth"
)

// responseWriter captures HTTP status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		user := "-"
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			user = identity.UserID
		}
		duration := time.Since(start)
		log.Printf("[HTTP] %s %s %d %s user=%s from %s", r.Method, r.URL.Path, rw.statusCode, duration, user, r.RemoteAddr)
	})
}
