// Package influxdb writes climate device telemetry to InfluxDB v2.
//
// Every snapshot the bridge polls is turned into one point in the
// "climate" measurement, tagged with the device ID, carrying the numeric
// and boolean attributes as fields. Writes are non-blocking and batched by
// the client library; failures arrive on the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteSnapshot("living-ac", attrs, time.Now())
package influxdb
