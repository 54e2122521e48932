package property

import "errors"

// Domain errors for the property package.
var (
	// ErrUnknownType is returned when no factory is registered for a type.
	ErrUnknownType = errors.New("property: unknown type")

	// ErrLoad is returned when a property node is invalid.
	ErrLoad = errors.New("property: invalid configuration")

	// ErrInvalidValue is returned when a value cannot be mapped or parsed.
	ErrInvalidValue = errors.New("property: invalid value")

	// ErrReadOnly is returned by SetValue on a property without a connection template.
	ErrReadOnly = errors.New("property: read only")

	// ErrNoStatus is returned when a status getter has not fetched any state yet.
	ErrNoStatus = errors.New("property: no device status")
)
