// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Problem types surfaced to the kiosk and admin clients.
const (
	TypeValidation        = "validation"
	TypeNotFound          = "not-found"
	TypeInvalidState      = "invalid-state"
	TypeAlreadyProcessed  = "already-processed"
	TypeInsufficientStock = "insufficient-stock"
	TypeRetryable         = "retryable"
)

// Status maps domain errors onto an HTTP status and problem type.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, TypeValidation
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, TypeNotFound
	case errors.Is(err, shared.ErrAlreadyProcessed):
		return http.StatusConflict, TypeAlreadyProcessed
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusConflict, TypeInsufficientStock
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, TypeInvalidState
	case errors.Is(err, shared.ErrRetryable):
		return http.StatusServiceUnavailable, TypeRetryable
	default:
		return http.StatusInternalServerError, ""
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, kind := Status(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, kind, "Internal Error", "")
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	Problem(w, status, kind, http.StatusText(status), err.Error())
}
