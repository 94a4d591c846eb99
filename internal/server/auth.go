// Package server provides the HTTP API: middleware, routes, and handlers.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/redacter-man/pii-redacter/internal/requestctx"
)

// AuthMiddleware returns a middleware that validates X-Redacter-Key or
// Authorization: Bearer <key> and stores the caller name in the request
// context. apiKeys maps key -> caller name.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Redacter-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			var caller string
			for k, name := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					caller = name
					break
				}
			}
			if caller == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			r = r.WithContext(requestctx.SetCaller(r.Context(), caller))
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware returns a middleware that checks the limiter for the
// caller set by AuthMiddleware and returns 429 with Retry-After when the
// budget is exhausted. A nil limiter disables rate limiting.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(requestctx.Caller(r.Context())) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "request rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes a JSON error response. Defined here so the middleware
// can use it; handlers.go shares the same helper.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
