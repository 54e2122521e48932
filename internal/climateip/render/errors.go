package render

import "errors"

var (
	// ErrCompile is returned when a template source cannot be parsed.
	ErrCompile = errors.New("render: template compilation failed")

	// ErrRender is returned when a compiled template fails during execution.
	ErrRender = errors.New("render: template execution failed")
)
