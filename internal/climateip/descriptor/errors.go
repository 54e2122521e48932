package descriptor

import "errors"

var (
	// ErrRead is returned when the descriptor source cannot be read.
	ErrRead = errors.New("descriptor: read failed")

	// ErrParse is returned when the descriptor is not valid YAML.
	ErrParse = errors.New("descriptor: invalid yaml")

	// ErrEmpty is returned when the descriptor contains no document.
	ErrEmpty = errors.New("descriptor: empty document")
)
