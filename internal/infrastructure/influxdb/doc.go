// Package influxdb provides time-series recording for Greenhouse Core.
//
// SQLite remains the source of truth for device state and the decision
// trail; InfluxDB carries the high-volume history used for dashboards
// and trend inspection:
//   - Sensor readings (temperature, humidity, soil moisture)
//   - Decision outcomes (per cycle, tagged by source and result)
//   - Device runtime counters (duty cycle, daily budgets)
//
// # Write Model
//
// Writes are non-blocking: points are batched in memory and flushed on an
// interval. A failed flush never blocks the control cycle; errors surface
// through the SetOnError callback and are logged.
//
// InfluxDB is optional. When disabled in config, Connect returns
// ErrDisabled and callers run without time-series recording.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without recording
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("node_01", "temperature", 24.3, time.Now())
package influxdb
