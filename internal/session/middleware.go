package session

import (
	"net/http"

	apperrors "licensedesk/pkg/errors"
	httputil "licensedesk/pkg/http"
	"licensedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// Middleware attaches the caller's session when a bearer token is present.
// Requests without one continue anonymously; a bad token is rejected.
func (v *Verifier) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				writeError(w, log, apperrors.Unauthorized("Malformed authorization header"))
				return
			}
			sess, err := v.Verify(token)
			if err != nil {
				log.Debug("rejected session token", "path", r.URL.Path, "error", err)
				writeError(w, log, apperrors.Unauthorized("Invalid or expired session"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireAuth rejects anonymous callers.
func RequireAuth(log *logger.Logger, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !FromContext(r.Context()).Authenticated() {
			writeError(w, log, apperrors.Unauthorized("Sign in to continue"))
			return
		}
		h(w, r, ps)
	}
}

// RequireRole rejects callers without role. Admins pass every role check.
func RequireRole(log *logger.Logger, role Role, h httprouter.Handle) httprouter.Handle {
	return RequireAuth(log, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess := FromContext(r.Context())
		if sess.Role != role && !sess.IsAdmin() {
			writeError(w, log, apperrors.Forbidden("Insufficient permissions"))
			return
		}
		h(w, r, ps)
	})
}

func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		log.Error("failed to write session error response", "error", writeErr)
	}
}
