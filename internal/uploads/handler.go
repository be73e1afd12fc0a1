package uploads

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"licensedesk/internal/session"
	apperrors "licensedesk/pkg/errors"
	httputil "licensedesk/pkg/http"
	"licensedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const (
	formField = "file"
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 64 * 1024
)

type Handler struct {
	store   *Store
	maxSize int64
	log     *logger.Logger
}

func NewHandler(store *Store, maxSize int64, log *logger.Logger) *Handler {
	return &Handler{store: store, maxSize: maxSize, log: log}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	category, err := ParseCategory(ps.ByName("category"))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}
	if !h.store.Enabled() {
		h.writeError(w, apperrors.Unavailable("Upload storage"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	file, _, err := r.FormFile(formField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, h.tooLarge())
			return
		}
		h.writeError(w, apperrors.InvalidInput("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("failed to read upload"))
		return
	}
	if int64(len(data)) > h.maxSize {
		h.writeError(w, h.tooLarge())
		return
	}

	sess := session.FromContext(r.Context())
	obj, err := h.store.Put(r.Context(), category, sess.UserID, data)
	if err != nil {
		h.writeError(w, h.mapError(err))
		return
	}

	if err := httputil.WriteCreated(w, obj); err != nil {
		h.log.Error("failed to write created response", "handler", "Upload", "operation", "WriteCreated", "error", err)
	}
}

func (h *Handler) tooLarge() error {
	return apperrors.TooLarge(fmt.Sprintf("file exceeds the %d byte limit", h.maxSize))
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return apperrors.Validation("Unsupported file type", map[string]any{
			"allowed": []string{"image/jpeg", "image/png", "image/webp", "application/pdf"},
		})
	case errors.Is(err, ErrEmptyFile):
		return apperrors.Validation("File is empty", nil)
	case errors.Is(err, ErrStorageUnavailable):
		return apperrors.Unavailable("Upload storage")
	default:
		h.log.Error("upload failed", "error", err)
		return apperrors.Internal("Failed to store upload", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Upload", "operation", "WriteError", "error", writeErr)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/uploads/:category", session.RequireAuth(h.log, h.Upload))
}
