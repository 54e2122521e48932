// Package history keeps a local record of climate device attribute snapshots.
//
// Every snapshot the bridge publishes is stored as JSON in the SQLite
// state_history table, giving a short audit trail even when InfluxDB is
// not configured. Old rows are pruned on the retention interval.
package history
