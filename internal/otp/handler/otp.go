package handler

import (
	"net/http"

	"appointease/internal/otp/service"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"
	"appointease/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// rejectedMessage is identical for unknown, expired and wrong codes.
const rejectedMessage = "Invalid or expired verification code"

type OtpHandler struct {
	service service.OtpService
	log     *logger.Logger
}

func NewOtpHandler(service service.OtpService, log *logger.Logger) *OtpHandler {
	return &OtpHandler{
		service: service,
		log:     log,
	}
}

func (h *OtpHandler) Generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.OtpIssueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Generate", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	resp, err := h.service.Issue(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Generate", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Generate", "operation", "WriteSuccess", "error", err)
	}
}

func (h *OtpHandler) Verify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.OtpVerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Verify", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	status, resp := http.StatusUnauthorized, model.OtpVerifyResponse{Verified: false, Message: rejectedMessage}
	if h.service.Verify(r.Context(), &req) {
		status, resp = http.StatusOK, model.OtpVerifyResponse{Verified: true, Message: "Email verified"}
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Verify", "operation", "WriteJSON", "error", err)
	}
}

// RegisterRoutes mounts both endpoints behind wrap, typically the per-IP
// rate limiter.
func (h *OtpHandler) RegisterRoutes(router *httprouter.Router, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	limited := func(handle httprouter.Handle) http.Handler {
		return wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(w, r, nil)
		}))
	}

	router.Handler(http.MethodPost, "/api/v1/generate-otp", limited(h.Generate))
	router.Handler(http.MethodPost, "/api/v1/verify-otp", limited(h.Verify))
}
