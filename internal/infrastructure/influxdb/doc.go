// Package influxdb writes optional sync telemetry to InfluxDB v2.
//
// Two measurements are recorded:
//
//   - habsync_poll: one point per coordinator poll, tagged by result and
//     online state, with duration_ms and items fields
//   - habsync_stream: one point per event stream state transition, with
//     the stream's cumulative counters
//
// Item states themselves are not stored; openHAB's own persistence covers
// history.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePollMetric(influxdb.PollSample{Duration: d, Items: n, Online: true})
//
// Writes are batched (batch_size, flush_interval) and never block the
// sync path. Write errors are delivered to the SetOnError callback.
package influxdb
