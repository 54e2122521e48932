package bridge

import "errors"

var (
	// ErrUnknownDevice is returned for device IDs the bridge does not run.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrNoDevices is returned by New when no device is configured.
	ErrNoDevices = errors.New("bridge: no devices configured")

	// ErrDuplicateDevice is returned by New when two devices share an ID.
	ErrDuplicateDevice = errors.New("bridge: duplicate device id")

	// ErrInvalidCommand is returned for command payloads that do not parse.
	ErrInvalidCommand = errors.New("bridge: invalid command")
)
