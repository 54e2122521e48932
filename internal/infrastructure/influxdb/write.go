package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementClimate      = "climate"
	MeasurementAvailability = "availability"
)

// WriteSnapshot records the numeric and boolean attributes of a device
// snapshot. Snapshots without any such attribute are skipped.
//
// Example:
//
//	client.WriteSnapshot("living-ac", map[string]any{"target_temp": 22.5, "mode": "cool"}, time.Now())
//	// climate,device_id=living-ac target_temp=22.5
func (c *Client) WriteSnapshot(deviceID string, attrs map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if p := SnapshotPoint(deviceID, attrs, ts); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// WriteAvailability records whether a device answered its last poll.
func (c *Client) WriteAvailability(deviceID string, available bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementAvailability,
		map[string]string{"device_id": deviceID},
		map[string]any{"available": available},
		ts,
	))
}

// SnapshotPoint builds the climate point for a snapshot, or nil when no
// attribute is numeric or boolean.
func SnapshotPoint(deviceID string, attrs map[string]any, ts time.Time) *write.Point {
	fields := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if f, ok := fieldValue(v); ok {
			fields[k] = f
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(MeasurementClimate, map[string]string{"device_id": deviceID}, fields, ts)
}

// fieldValue normalises numbers to float64 so a field keeps one type
// across writes regardless of how the template rendered it.
func fieldValue(v any) (any, bool) {
	switch n := v.(type) {
	case bool:
		return n, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return nil, false
}
