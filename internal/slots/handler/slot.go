package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"licensedesk/internal/session"
	"licensedesk/internal/slots/service"
	apperrors "licensedesk/pkg/errors"
	httputil "licensedesk/pkg/http"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type SlotHandler struct {
	catalog    service.CatalogService
	arbitrator service.Arbitrator
	inventory  service.InventoryService
	log        *logger.Logger
}

func NewSlotHandler(
	catalog service.CatalogService,
	arbitrator service.Arbitrator,
	inventory service.InventoryService,
	log *logger.Logger,
) *SlotHandler {
	return &SlotHandler{
		catalog:    catalog,
		arbitrator: arbitrator,
		inventory:  inventory,
		log:        log,
	}
}

func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "List", apperrors.InvalidInput(err.Error()))
		return
	}

	query := r.URL.Query()
	filter := model.SlotFilter{
		Kind:      kind,
		Location:  query.Get("location"),
		Authority: query.Get("authority"),
		DateFrom:  query.Get("date_from"),
		DateTo:    query.Get("date_to"),
	}
	if s := query.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			h.writeError(w, "List", apperrors.InvalidInput("invalid limit parameter: "+s))
			return
		}
		filter.Limit = limit
	}

	slots, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	h.writeSuccess(w, "List", slots)
}

func (h *SlotHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "GetByID", apperrors.InvalidInput(err.Error()))
		return
	}

	slot, err := h.catalog.Get(r.Context(), kind, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	h.writeSuccess(w, "GetByID", slot)
}

// Arbitrate is reachable anonymously; the arbitrator answers AUTH_REQUIRED with
// a pending action id the client resumes after sign-in.
func (h *SlotHandler) Arbitrate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "Arbitrate", apperrors.InvalidInput(err.Error()))
		return
	}

	result, err := h.arbitrator.Arbitrate(r.Context(), session.FromContext(r.Context()), kind, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Arbitrate", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Arbitrate", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "Confirm", apperrors.InvalidInput(err.Error()))
		return
	}

	var req model.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, "Confirm", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.arbitrator.Confirm(r.Context(), session.FromContext(r.Context()), kind, ps.ByName("id"), ps.ByName("hold_id"), &req)
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Confirm", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) ReleaseHold(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "ReleaseHold", apperrors.InvalidInput(err.Error()))
		return
	}

	if err := h.arbitrator.Release(r.Context(), session.FromContext(r.Context()), kind, ps.ByName("id"), ps.ByName("hold_id")); err != nil {
		h.writeError(w, "ReleaseHold", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *SlotHandler) ResumePending(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.arbitrator.Resume(r.Context(), session.FromContext(r.Context()), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "ResumePending", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "ResumePending", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, err := model.ParseSlotKind(ps.ByName("kind"))
	if err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput(err.Error()))
		return
	}

	var req model.SlotCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	slot, err := h.inventory.Create(r.Context(), kind, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, slot); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *SlotHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	user := func(fn httprouter.Handle) httprouter.Handle { return session.RequireAuth(h.log, fn) }
	admin := func(fn httprouter.Handle) httprouter.Handle { return session.RequireRole(h.log, session.RoleAdmin, fn) }

	router.GET("/api/v1/slots/:kind", h.List)
	router.GET("/api/v1/slots/:kind/id/:id", h.GetByID)
	router.POST("/api/v1/slots/:kind/id/:id/arbitrate", h.Arbitrate)
	router.POST("/api/v1/slots/:kind/id/:id/holds/:hold_id/confirm", user(h.Confirm))
	router.DELETE("/api/v1/slots/:kind/id/:id/holds/:hold_id", user(h.ReleaseHold))
	router.POST("/api/v1/pending-actions/:id/resume", user(h.ResumePending))

	router.POST("/api/v1/admin/slots/:kind", admin(h.Create))
}
