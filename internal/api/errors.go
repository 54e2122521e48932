package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/climate-ip/internal/bridge"
)

// Error is the JSON body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeMethodNotAllow  = "method_not_allowed"
	ErrCodeUnavailable     = "service_unavailable"
	ErrCodeDeviceError     = "device_error"
	ErrCodeNotWritable     = "not_writable"
	ErrCodeUnknownProperty = "unknown_property"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps a bridge or controller error to an HTTP response.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch bridge.ErrorCode(err) {
	case bridge.ErrCodeNotConfigured:
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found")
	case bridge.ErrCodeUnknownProperty:
		writeError(w, http.StatusNotFound, ErrCodeUnknownProperty, err.Error())
	case bridge.ErrCodeNotWritable:
		writeError(w, http.StatusMethodNotAllowed, ErrCodeNotWritable, err.Error())
	case bridge.ErrCodeInvalidValue, bridge.ErrCodeInvalidCommand:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case bridge.ErrCodeDeviceUnavailable:
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	}
}
