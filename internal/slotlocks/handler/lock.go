package handler

import (
	"net/http"
	"strconv"

	"appointease/internal/slotlocks/service"
	apperrors "appointease/pkg/errors"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"
	"appointease/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type SelectResponse struct {
	Success bool            `json:"success"`
	Lock    *model.SlotLock `json:"lock"`
}

type DeselectResponse struct {
	Success  bool `json:"success"`
	Released bool `json:"released"`
}

type LocksResponse struct {
	EmployeeID int64            `json:"employee_id"`
	Date       string           `json:"date"`
	Locks      []model.SlotLock `json:"locks"`
}

type LockHandler struct {
	service service.LockService
	log     *logger.Logger
}

func NewLockHandler(service service.LockService, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service: service,
		log:     log,
	}
}

func (h *LockHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *LockHandler) Select(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.SlotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Select", err)
		return
	}

	lock, err := h.service.Select(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Select", err)
		return
	}

	if err := httputil.WriteSuccess(w, SelectResponse{Success: true, Lock: lock}); err != nil {
		h.log.Error("failed to write success response", "handler", "Select", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Deselect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.SlotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Deselect", err)
		return
	}

	released, err := h.service.Deselect(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Deselect", err)
		return
	}

	if err := httputil.WriteSuccess(w, DeselectResponse{Success: true, Released: released}); err != nil {
		h.log.Error("failed to write success response", "handler", "Deselect", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Locks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	employeeID, err := strconv.ParseInt(query.Get("employee_id"), 10, 64)
	if err != nil || employeeID <= 0 {
		h.writeError(w, "Locks", apperrors.InvalidInput("employee_id query parameter must be a positive integer"))
		return
	}
	date := query.Get("date")
	if date == "" {
		h.writeError(w, "Locks", apperrors.InvalidInput("date query parameter is required"))
		return
	}

	locks, err := h.service.Active(r.Context(), employeeID, date)
	if err != nil {
		h.writeError(w, "Locks", err)
		return
	}

	if err := httputil.WriteSuccess(w, LocksResponse{EmployeeID: employeeID, Date: date, Locks: locks}); err != nil {
		h.log.Error("failed to write success response", "handler", "Locks", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, "Stats", err)
		return
	}

	if err := httputil.WriteSuccess(w, stats); err != nil {
		h.log.Error("failed to write success response", "handler", "Stats", "operation", "WriteSuccess", "error", err)
	}
}

// RegisterRoutes mounts the handlers under /api/v1/realtime. wrap is applied
// to each route, typically the per-IP lock rate limiter.
func (h *LockHandler) RegisterRoutes(router *httprouter.Router, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	limited := func(handle httprouter.Handle) http.Handler {
		return wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(w, r, httprouter.ParamsFromContext(r.Context()))
		}))
	}

	router.Handler(http.MethodPost, "/api/v1/realtime/select", limited(h.Select))
	router.POST("/api/v1/realtime/deselect", h.Deselect)
	router.GET("/api/v1/realtime/locks", h.Locks)
	router.GET("/api/v1/realtime/stats", h.Stats)
}
