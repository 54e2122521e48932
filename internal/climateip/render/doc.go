// Package render evaluates the Jinja-style templates that drive a climate-ip
// device descriptor.
//
// Templates are compiled with pongo2 inside a sandboxed template set: no file
// inclusion, no inheritance, no autoescaping (templates routinely produce JSON).
// Two variables are injected into every render:
//
//	device_state  the latest device state blob (JSON object, flat attribute map, ...)
//	value         the value being written, when rendering a command
//
// Rendering never panics; failures are returned wrapped in ErrRender so callers
// can apply the fallback rule in Keep or the execution policy in Decide.
package render
