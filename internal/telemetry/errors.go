package telemetry

import "errors"

// Sentinel errors for telemetry processing.
var (
	// ErrInvalidPayload indicates a payload that could not be parsed.
	ErrInvalidPayload = errors.New("telemetry: invalid payload")

	// ErrUnknownMetric indicates a payload naming a metric the loop
	// does not consume.
	ErrUnknownMetric = errors.New("telemetry: unknown metric")

	// ErrOutOfRange indicates a reading outside the configured hard
	// validity range. Treated as a sensor fault, not a control input.
	ErrOutOfRange = errors.New("telemetry: reading out of range")

	// ErrStaleReading indicates a reading too old to feed a control cycle.
	ErrStaleReading = errors.New("telemetry: reading too old")
)
