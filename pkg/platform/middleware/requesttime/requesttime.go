// Package requesttime pins one timestamp per HTTP request so every audit
// event raised while serving it carries the same time.
package requesttime

import (
	"net/http"
	"time"

	"policysync/pkg/requestcontext"
)

// Middleware pins the wall clock, in UTC, at request start.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with a caller-supplied clock.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pinned := now().UTC()
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), pinned)))
		})
	}
}
