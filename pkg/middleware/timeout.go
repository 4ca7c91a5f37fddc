package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout gives every request a deadline. Handlers are expected to observe
// their context and report the expiry themselves, so the response is always
// written by the handler goroutine. A non-positive timeout disables the
// deadline.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
