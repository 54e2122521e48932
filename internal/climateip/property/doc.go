// Package property turns descriptor nodes into device properties and
// operations.
//
// A property renders its status_template against the latest device state
// to produce the value shown to users. An operation is a property that can
// also be written: SetValue converts the user-facing value to the device's
// vocabulary and executes connection_template on the bound connection.
//
// Built-in types (see DefaultRegistry):
//
//	value        free-form string, optionally writable
//	modes        ordered map of user values to device values
//	switch       modes restricted to on/off, accepting booleans
//	number       float clamped to [min, max]
//	temperature  number with Celsius/Fahrenheit conversion
//	json_status  status getter: fetches and caches the device state blob
//
// Failed renders never clear a value: a property keeps its last good value
// (initially "unknown") until a render succeeds again.
package property
