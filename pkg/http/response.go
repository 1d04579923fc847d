package http

import (
	"encoding/json"
	"net/http"

	apperrors "appointease/pkg/errors"
)

const (
	HeaderIdempotencyKey     = "X-Idempotency-Key"
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteRaw writes an already encoded JSON body unchanged.
func WriteRaw(w http.ResponseWriter, statusCode int, body []byte) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err := w.Write(body)
	return err
}

func WriteError(w http.ResponseWriter, err error) error {
	appErr := apperrors.AsAppError(err)
	return WriteJSON(w, appErr.StatusCode(), appErr.Response())
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}
