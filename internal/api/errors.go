package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/home-gateway/internal/coap"
	"github.com/nerrad567/home-gateway/internal/device"
)

// ErrNotDiscovered indicates the requested id is not in the directory.
var ErrNotDiscovered = errors.New("api: device not discovered")

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeNotFound = "not_found"
	ErrCodeInternal = "internal_error"
)

// statusFor maps a device request error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotDiscovered):
		return http.StatusNotFound
	case errors.Is(err, device.ErrUntyped), errors.Is(err, device.ErrUnknownType):
		return http.StatusNotImplemented
	case errors.Is(err, device.ErrInvalidForm):
		return http.StatusBadRequest
	case errors.Is(err, coap.ErrTransport),
		errors.Is(err, coap.ErrMissingContentType),
		errors.Is(err, coap.ErrUnexpectedContentType),
		errors.Is(err, device.ErrUnexpectedPayload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
