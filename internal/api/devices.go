package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/climate-ip/internal/bridge"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	commandSourceAPI = "api"
)

// setPropertyRequest is the body of PUT /devices/{id}/properties/{name}.
type setPropertyRequest struct {
	Value *json.RawMessage `json:"value"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	snap, err := s.bridge.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.bridge.Refresh(r.Context(), id); err != nil {
		writeBridgeError(w, err)
		return
	}
	snap, err := s.bridge.Device(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetProperty applies {"value": ...} to one operation and returns the
// updated snapshot.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}
	value, err := decodeValue(*req.Value)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.bridge.SetProperty(r.Context(), id, name, value, commandSourceAPI); err != nil {
		s.logger.Warn("property write failed",
			"device", id,
			"property", name,
			"subject", subjectFrom(r.Context()),
			"error", err,
		)
		writeBridgeError(w, err)
		return
	}

	snap, err := s.bridge.Device(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	entries, err := s.bridge.History(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, bridge.ErrUnknownDevice) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found")
			return
		}
		s.logger.Error("history query failed", "device", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// decodeValue turns a JSON value into the Go value controllers accept:
// numbers become float64 and strings and bools pass through.
func decodeValue(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	switch v.(type) {
	case string, bool, float64:
		return v, nil
	default:
		return nil, errors.New("value must be a string, number or boolean")
	}
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}
