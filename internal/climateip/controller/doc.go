// Package controller builds a device from a YAML descriptor and drives its
// poll cycle.
//
// A descriptor has a single top-level device node:
//
//	device:
//	  name: Samsung AC
//	  poll: true
//	  validate_properties: true
//	  connection: { type: request, params: {...} }
//	  status: { type: json_status }
//	  operations:
//	    power: { type: switch, ... }
//	  attributes:
//	    current_temp: { type: temperature, ... }
//
// Lifecycle: New, then Initialize once, then UpdateState on every poll tick
// and SetProperty whenever a command arrives. Close releases the connection.
// All methods are serialised on one mutex, so a controller may be shared by
// a poll loop and command handlers.
package controller
