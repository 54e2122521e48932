package bridge

import (
	"errors"
	"time"

	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/climateip/property"
)

// StateMessage is published retained on climateip/state/{device}.
type StateMessage struct {
	DeviceID   string         `json:"device_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
}

// CommandMessage is received on climateip/command/{device}.
//
//	{"id": "c1", "property": "target_temp", "value": 22.5}
type CommandMessage struct {
	// ID correlates the command with its ack; generated when empty.
	ID string `json:"id,omitempty"`

	Property string `json:"property"`
	Value    any    `json:"value"`

	// Source names the sender for logs and metrics.
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage is published on climateip/ack/{device}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Property  string    `json:"property,omitempty"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError details a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in AckError.
const (
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeUnknownProperty   = "UNKNOWN_PROPERTY"
	ErrCodeNotWritable       = "NOT_WRITABLE"
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeDeviceUnavailable = "DEVICE_UNAVAILABLE"
	ErrCodeDeviceError       = "DEVICE_ERROR"
)

// ErrorCode classifies a SetProperty error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, controller.ErrUnknownProperty):
		return ErrCodeUnknownProperty
	case errors.Is(err, controller.ErrNotWritable), errors.Is(err, property.ErrReadOnly):
		return ErrCodeNotWritable
	case errors.Is(err, property.ErrInvalidValue):
		return ErrCodeInvalidValue
	case errors.Is(err, controller.ErrNotInitialized):
		return ErrCodeDeviceUnavailable
	default:
		return ErrCodeDeviceError
	}
}

// HealthStatus summarises the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on climateip/health and served by
// the API.
type HealthMessage struct {
	BridgeID      string         `json:"bridge_id"`
	Version       string         `json:"version"`
	Status        HealthStatus   `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	MQTTConnected bool           `json:"mqtt_connected"`
	Devices       []DeviceHealth `json:"devices"`
}

// DeviceHealth is the per-device part of a HealthMessage.
type DeviceHealth struct {
	ID          string     `json:"id"`
	Initialized bool       `json:"initialized"`
	Available   bool       `json:"available"`
	LastPoll    *time.Time `json:"last_poll,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}
