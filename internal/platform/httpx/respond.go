package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "recvault/internal/platform/errors"
)

// JSON writes v as a JSON response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Fail maps a domain error onto an HTTP status.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err.Error())
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrActiveSessionExists), errors.Is(err, apperrors.ErrDeliveredImmutable):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrNotRecoverable):
		return http.StatusGone
	case errors.Is(err, apperrors.ErrRecoveryPending):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrStoreExhausted), errors.Is(err, apperrors.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
