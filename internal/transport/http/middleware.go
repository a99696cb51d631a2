package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("remote", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// RateLimit wraps next and rejects requests once limiter is exhausted for
// the current window.
func RateLimit(limiter *rateLimiter, logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow() {
			logger.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("rate limited")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "too many connections"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
