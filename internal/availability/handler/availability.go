package handler

import (
	"net/http"

	"appointease/internal/availability/service"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"
	"appointease/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AvailabilityHandler struct {
	service service.AvailabilityService
	log     *logger.Logger
}

func NewAvailabilityHandler(service service.AvailabilityService, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
		log:     log,
	}
}

func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AvailabilityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	resp, err := h.service.Unavailable(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) CheckSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.SlotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckSlot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	status, err := h.service.CheckSlot(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckSlot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckSlot", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/availability", h.Availability)
	router.POST("/api/v1/check-slot", h.CheckSlot)
}
