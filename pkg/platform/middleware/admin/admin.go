// Package admin guards the operator routes of the syncer with a shared
// token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "policysync/pkg/domain-errors"
	"policysync/pkg/platform/httputil"
	"policysync/pkg/requestcontext"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken admits a request only when its X-Admin-Token equals
// token. With an empty token the admin surface is switched off and every
// request is refused.
func RequireAdminToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(token)
	refuse := func(w http.ResponseWriter, r *http.Request, reason string) {
		ctx := r.Context()
		logger.WarnContext(ctx, "admin request refused",
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
			"method", r.Method,
			"path", r.URL.Path,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAdminToken)
			switch {
			case len(want) == 0:
				refuse(w, r, "admin token not configured")
			case got == "":
				refuse(w, r, "token missing")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				refuse(w, r, "token mismatch")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
