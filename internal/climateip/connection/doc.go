// Package connection implements the transports a climate-ip descriptor can
// bind its properties to.
//
// A descriptor's connection node names a type and its parameters:
//
//	connection:
//	  type: request
//	  params:
//	    method: GET
//	    url: https://__CLIMATE_IP_HOST__:8888/devices/0
//	    verify: false
//	    cert: ac14k_m.pem
//
// Types are resolved through an explicit Registry rather than package-level
// side effects. DefaultRegistry knows three types:
//
//	request        HTTPS + JSON, one retry on 5xx
//	request_print  renders and logs the request, returns a canned reply
//	samsung_2878   raw TLS line protocol used by older Samsung AC units
//
// Every connection executes a compiled template with the device state and an
// optional value to write, and returns the device's reply as a generic value
// (a JSON document for request, a flat attribute map for samsung_2878).
package connection
