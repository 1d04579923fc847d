package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   New(CodeNotFound, "appointment not found", http.StatusNotFound),
			expected: "NOT_FOUND: appointment not found",
		},
		{
			name:     "with underlying error",
			appErr:   Internal("internal error", errors.New("mongo connection reset")),
			expected: "INTERNAL_ERROR: internal error (caused by: mongo connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestConstructors_StatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
	}{
		{"not found", NotFound("Appointment"), http.StatusNotFound, CodeNotFound},
		{"validation", Validation("bad slot", nil), http.StatusUnprocessableEntity, CodeValidation},
		{"invalid input", InvalidInput("bad json"), http.StatusBadRequest, CodeInvalidInput},
		{"unauthorized", Unauthorized("nope"), http.StatusUnauthorized, CodeUnauthorized},
		{"conflict", Conflict("cancelled"), http.StatusConflict, CodeConflict},
		{"lock unavailable", LockUnavailable("held"), http.StatusConflict, CodeLockUnavailable},
		{"idempotency reused", IdempotencyReused(), http.StatusUnprocessableEntity, CodeIdempotencyReused},
		{"idempotency in progress", IdempotencyInProgress(), http.StatusConflict, CodeIdempotencyInProgress},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests, CodeRateLimited},
		{"timeout", Timeout("too slow"), http.StatusGatewayTimeout, CodeTimeout},
		{"unavailable", Unavailable("redis"), http.StatusServiceUnavailable, CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Appointment", "APT-2025-000001")

	assert.Equal(t, "Appointment not found", err.Message)
	assert.Equal(t, "APT-2025-000001", err.Details["id"])
	assert.Equal(t, "Appointment", err.Details["resource"])
}

func TestAppError_StatusCodeDefaultsToInternal(t *testing.T) {
	err := &AppError{Code: "SOMETHING"}
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode())
}

func TestAsAppError(t *testing.T) {
	t.Run("passes through wrapped app errors", func(t *testing.T) {
		original := Conflict("taken")
		wrapped := fmt.Errorf("booking: %w", original)

		assert.True(t, IsAppError(wrapped))
		assert.Same(t, original, AsAppError(wrapped))
		assert.True(t, HasCode(wrapped, CodeConflict))
	})

	t.Run("converts plain errors to internal", func(t *testing.T) {
		plain := errors.New("boom")

		appErr := AsAppError(plain)
		assert.False(t, IsAppError(plain))
		assert.Equal(t, CodeInternal, appErr.Code)
		assert.ErrorIs(t, appErr, plain)
	})
}

func TestAppError_ToJSON(t *testing.T) {
	err := Validation("Invalid appointment", map[string]any{"field": "date"})

	var decoded ErrorResponse
	require.NoError(t, json.Unmarshal(err.ToJSON(), &decoded))
	assert.Equal(t, CodeValidation, decoded.Code)
	assert.Equal(t, "Invalid appointment", decoded.Message)
	assert.Equal(t, "date", decoded.Details["field"])
}
