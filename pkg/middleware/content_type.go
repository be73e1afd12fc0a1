package middleware

import (
	"net/http"
	"strings"

	apperrors "licensedesk/pkg/errors"
	httputil "licensedesk/pkg/http"
	"licensedesk/pkg/logger"
)

const (
	contentTypeJSON      = "application/json"
	contentTypeMultipart = "multipart/form-data"
)

// ContentTypeValidation requires JSON bodies on writes. Multipart is accepted
// only under uploadPrefix. Writes without a body (arbitrate, resume) pass.
func ContentTypeValidation(log *logger.Logger, uploadPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresContentType(r) {
				contentType := extractContentType(r.Header.Get("Content-Type"))
				if !allowedContentType(contentType, r.URL.Path, uploadPrefix) {
					rejectInvalidContentType(w, log, r, contentType)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requiresContentType(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

func allowedContentType(contentType, path, uploadPrefix string) bool {
	if contentType == contentTypeJSON {
		return true
	}
	return contentType == contentTypeMultipart && uploadPrefix != "" && strings.HasPrefix(path, uploadPrefix)
}

func extractContentType(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.Split(header, ";")
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

func rejectInvalidContentType(w http.ResponseWriter, log *logger.Logger, r *http.Request, contentType string) {
	log.Warn("Invalid Content-Type header",
		"request_id", RequestID(r.Context()),
		"content_type", contentType,
		"path", r.URL.Path,
		"method", r.Method,
	)

	_ = httputil.WriteError(w, &apperrors.AppError{
		Code:       apperrors.CodeBadRequest,
		Message:    "Content-Type must be application/json",
		HTTPStatus: http.StatusUnsupportedMediaType,
	})
}
