package handler

import (
	"encoding/json"
	"net/http"

	"licensedesk/internal/bookings/service"
	"licensedesk/internal/session"
	apperrors "licensedesk/pkg/errors"
	httputil "licensedesk/pkg/http"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) ListOwn(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "ListOwn", apperrors.InvalidInput(err.Error()))
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListOwn", err)
		return
	}

	bookings, total, err := h.service.ListOwn(r.Context(), session.FromContext(r.Context()), kind, limit, offset)
	if err != nil {
		h.writeError(w, "ListOwn", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListOwn", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) GetOwn(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "GetOwn", apperrors.InvalidInput(err.Error()))
		return
	}

	booking, err := h.service.GetOwn(r.Context(), session.FromContext(r.Context()), kind, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetOwn", err)
		return
	}

	h.writeSuccess(w, "GetOwn", booking)
}

// List is the admin view of one booking collection, filterable by status and slot.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "List", apperrors.InvalidInput(err.Error()))
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	query := model.BookingQuery{
		Kind:   kind,
		SlotID: r.URL.Query().Get("slot_id"),
		UserID: r.URL.Query().Get("user_id"),
		Limit:  limit,
		Offset: offset,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := model.ParseBookingStatus(s)
		if !ok {
			h.writeError(w, "List", apperrors.InvalidInput("invalid status parameter: "+s))
			return
		}
		query.Status = status
	}

	bookings, total, err := h.service.List(r.Context(), query)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Review(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "Review", apperrors.InvalidInput(err.Error()))
		return
	}

	var review model.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		h.writeError(w, "Review", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Review(r.Context(), kind, ps.ByName("id"), &review)
	if err != nil {
		h.writeError(w, "Review", err)
		return
	}

	h.writeSuccess(w, "Review", booking)
}

func (h *BookingHandler) CreateExamBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ExamBookingCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "CreateExamBooking", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.CreateExamBooking(r.Context(), session.FromContext(r.Context()), &req)
	if err != nil {
		h.writeError(w, "CreateExamBooking", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateExamBooking", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) ListExamBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListExamBookings", err)
		return
	}

	bookings, total, err := h.service.ListExamBookings(r.Context(), session.FromContext(r.Context()), limit, offset)
	if err != nil {
		h.writeError(w, "ListExamBookings", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListExamBookings", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) ReviewExamBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var review model.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		h.writeError(w, "ReviewExamBooking", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.ReviewExamBooking(r.Context(), ps.ByName("id"), &review)
	if err != nil {
		h.writeError(w, "ReviewExamBooking", err)
		return
	}

	h.writeSuccess(w, "ReviewExamBooking", booking)
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	user := func(fn httprouter.Handle) httprouter.Handle { return session.RequireAuth(h.log, fn) }
	admin := func(fn httprouter.Handle) httprouter.Handle { return session.RequireRole(h.log, session.RoleAdmin, fn) }

	router.GET("/api/v1/bookings/:kind", user(h.ListOwn))
	router.GET("/api/v1/bookings/:kind/id/:id", user(h.GetOwn))
	router.POST("/api/v1/exam-bookings", user(h.CreateExamBooking))
	router.GET("/api/v1/exam-bookings", user(h.ListExamBookings))

	router.GET("/api/v1/admin/bookings/:kind", admin(h.List))
	router.GET("/api/v1/admin/bookings/:kind/id/:id", admin(h.GetOwn))
	router.PATCH("/api/v1/admin/bookings/:kind/id/:id", admin(h.Review))
	router.PATCH("/api/v1/admin/exam-bookings/id/:id", admin(h.ReviewExamBooking))
}
