package handler

import (
	"net/http"

	"appointease/internal/appointments/service"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"
	"appointease/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type appointmentResponse struct {
	Success     bool               `json:"success"`
	Appointment *model.Appointment `json:"appointment"`
}

type appointmentListResponse struct {
	Success      bool                 `json:"success"`
	Appointments []*model.Appointment `json:"appointments"`
}

type AppointmentHandler struct {
	service service.AppointmentService
	log     *logger.Logger
}

func NewAppointmentHandler(service service.AppointmentService, log *logger.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		service: service,
		log:     log,
	}
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// writeResult sends the stored bytes so a replay is identical to the first
// response.
func (h *AppointmentHandler) writeResult(w http.ResponseWriter, handler string, result *service.Result) {
	if result.Replayed() {
		w.Header().Set(httputil.HeaderIdempotentReplayed, "true")
	}
	if err := httputil.WriteRaw(w, result.StatusCode, result.Body); err != nil {
		h.log.Error("failed to write raw response", "handler", handler, "operation", "WriteRaw", "error", err)
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AppointmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	result, err := h.service.Book(r.Context(), &req, r.Header.Get(httputil.HeaderIdempotencyKey))
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	h.writeResult(w, "Create", result)
}

func (h *AppointmentHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	appt, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, appointmentResponse{Success: true, Appointment: appt}); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.RescheduleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	result, err := h.service.Reschedule(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	h.writeResult(w, "Reschedule", result)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) ListByEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.EmailLookupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "ListByEmail", err)
		return
	}

	appointments, err := h.service.ListByEmail(r.Context(), &req)
	if err != nil {
		h.writeError(w, "ListByEmail", err)
		return
	}
	if appointments == nil {
		appointments = []*model.Appointment{}
	}

	if err := httputil.WriteSuccess(w, appointmentListResponse{Success: true, Appointments: appointments}); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByEmail", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/appointments", h.Create)
	router.GET("/api/v1/appointments/:id", h.GetByID)
	router.PUT("/api/v1/appointments/:id", h.Reschedule)
	router.DELETE("/api/v1/appointments/:id", h.Cancel)
	router.POST("/api/v1/user-appointments", h.ListByEmail)
}
