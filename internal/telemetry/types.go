package telemetry

import (
	"time"
)

// Measurement identifies a kind of sensor reading.
type Measurement string

const (
	Temperature  Measurement = "temperature"
	Humidity     Measurement = "humidity"
	SoilMoisture Measurement = "soil_moisture"
	Light        Measurement = "light"
)

// Controlled lists the measurements the decision rules consume, in
// tie-break order. Light is collected and stored but never drives a
// device.
var Controlled = []Measurement{Temperature, SoilMoisture, Humidity}

// Valid reports whether m is a known measurement kind.
func (m Measurement) Valid() bool {
	switch m {
	case Temperature, Humidity, SoilMoisture, Light:
		return true
	}
	return false
}

// Unit returns the display unit for the measurement.
func (m Measurement) Unit() string {
	switch m {
	case Temperature:
		return "°C"
	case Light:
		return "lux"
	default:
		return "%"
	}
}

// Reading is a single validated sensor observation.
type Reading struct {
	Measurement Measurement `json:"measurement"`
	Value       float64     `json:"value"`
	Unit        string      `json:"unit"`
	SensorID    string      `json:"sensor_id"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Age returns how old the reading is relative to now.
func (r Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.RecordedAt)
}

// Snapshot is the set of latest readings at a point in time.
//
// A measurement with no fresh reading is absent from the map; consumers
// must treat absence as unknown, never as zero.
type Snapshot struct {
	Readings map[Measurement]Reading `json:"readings"`
	TakenAt  time.Time               `json:"taken_at"`
}

// Get returns the reading for a measurement, if present.
func (s Snapshot) Get(m Measurement) (Reading, bool) {
	r, ok := s.Readings[m]
	return r, ok
}
