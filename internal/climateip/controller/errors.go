package controller

import "errors"

// Domain errors for the controller package.
var (
	// ErrNotInitialized is returned when a controller is used before Initialize succeeded.
	ErrNotInitialized = errors.New("controller: not initialized")

	// ErrDescriptor is returned when the descriptor is missing a required node.
	ErrDescriptor = errors.New("controller: invalid descriptor")

	// ErrUnknownProperty is returned for names that are neither operations nor attributes.
	ErrUnknownProperty = errors.New("controller: unknown property")

	// ErrNotWritable is returned by SetProperty for attributes.
	ErrNotWritable = errors.New("controller: property is not writable")

	// ErrStatusUnavailable is returned when the device state could not be
	// fetched and the retry budget is spent.
	ErrStatusUnavailable = errors.New("controller: device status unavailable")
)
