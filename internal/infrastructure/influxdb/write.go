package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading records a validated sensor reading.
//
// This is the primary method for recording telemetry data. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sensorID: Identifier of the reporting node (e.g., "node_01")
//   - metric: The measurement kind ("temperature", "humidity", "soil_moisture")
//   - value: The reading value in the metric's native unit
//   - at: The reading's timestamp
//
// Example:
//
//	client.WriteSensorReading("node_01", "soil_moisture", 42.5, reading.At)
func (c *Client) WriteSensorReading(sensorID string, metric string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"sensor_id": sensorID,
			"metric":    metric,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDecisionOutcome records the outcome of a control decision.
//
// Every decision is recorded, including rejected and clamped ones, so the
// decision trail can be reconstructed from the time series alone.
//
// Parameters:
//   - source: Where the decision came from ("reasoner", "fallback", "manual")
//   - action: The commanded action ("activate", "deactivate", "none")
//   - deviceID: The target device, or "" for no-op decisions
//   - confidence: The decision confidence in [0,1]
//   - outcome: Execution result ("executed", "clamped", "rejected", "failed")
func (c *Client) WriteDecisionOutcome(source, action, deviceID string, confidence float64, outcome string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"source":  source,
		"action":  action,
		"outcome": outcome,
	}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}

	point := write.NewPoint(
		"decisions",
		tags,
		map[string]interface{}{
			"confidence": confidence,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceRuntime records device runtime counters after a state change.
//
// Used for tracking actuator duty cycles and daily runtime budgets.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "pump_01")
//   - isOn: Current relay state
//   - onTodayMinutes: Accumulated on-time since the last midnight reset
//   - activationsToday: Activation count since the last midnight reset
func (c *Client) WriteDeviceRuntime(deviceID string, isOn bool, onTodayMinutes float64, activationsToday int) {
	if !c.IsConnected() {
		return
	}

	on := 0
	if isOn {
		on = 1
	}

	point := write.NewPoint(
		"device_runtime",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"is_on":             on,
			"on_today_minutes":  onTodayMinutes,
			"activations_today": activationsToday,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., backfilled data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
