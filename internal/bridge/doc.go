// Package bridge runs climate-ip devices and connects them to the outside
// world.
//
// For every configured device the bridge:
//   - initialises the YAML controller, retrying on the poll interval until
//     the descriptor and connection load
//   - polls UpdateState on the device's interval (when the controller polls)
//   - publishes changed attribute snapshots to climateip/state/{device}
//   - records changed snapshots in the SQLite state history
//   - writes numeric attributes to InfluxDB on every poll
//   - accepts commands on climateip/command/{device} and acknowledges them
//     on climateip/ack/{device}
//
// A health report is published to climateip/health on the health interval.
// All collaborators except the devices are optional.
//
// Thread Safety: All methods are safe for concurrent use.
package bridge
