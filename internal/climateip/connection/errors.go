package connection

import "errors"

// Domain errors for the connection package.
var (
	// ErrUnknownType is returned when no factory is registered for a type.
	ErrUnknownType = errors.New("connection: unknown type")

	// ErrLoad is returned when a connection node cannot be turned into a connection.
	ErrLoad = errors.New("connection: invalid configuration")

	// ErrTemplate is returned when a rendered command is not valid JSON.
	ErrTemplate = errors.New("connection: invalid rendered command")

	// ErrRequest is returned when an HTTP request could not be sent.
	ErrRequest = errors.New("connection: request failed")

	// ErrStatus is returned when the device answers with a non-2xx status.
	ErrStatus = errors.New("connection: unexpected status")

	// ErrResponse is returned when a reply body cannot be decoded.
	ErrResponse = errors.New("connection: invalid response")

	// ErrConnect is returned when the device socket cannot be opened.
	ErrConnect = errors.New("connection: connect failed")

	// ErrAuth is returned when the device rejects the token.
	ErrAuth = errors.New("connection: authentication failed")

	// ErrHandshakeTimeout is returned when the device does not become ready in time.
	ErrHandshakeTimeout = errors.New("connection: handshake timed out")

	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("connection: closed")
)
