package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
)

// rawUplink is the wire format sensor nodes publish on
// greenhouse/telemetry/{sensor_id}. One metric per message.
type rawUplink struct {
	Metric    string    `json:"metric"`
	Value     *float64  `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Processor parses and range-validates raw sensor uplinks.
//
// Validation is a hard gate: a value outside the configured range is a
// sensor fault and never reaches the store.
type Processor struct {
	ranges config.SensorsConfig
	now    func() time.Time
}

// NewProcessor creates a Processor with the given validity ranges.
func NewProcessor(ranges config.SensorsConfig) *Processor {
	return &Processor{
		ranges: ranges,
		now:    time.Now,
	}
}

// Process parses a raw uplink payload into a validated Reading.
//
// A missing timestamp is stamped with the receive time. Returns
// ErrInvalidPayload, ErrUnknownMetric or ErrOutOfRange on bad input.
func (p *Processor) Process(sensorID string, payload []byte) (Reading, error) {
	var raw rawUplink
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if raw.Value == nil {
		return Reading{}, fmt.Errorf("%w: missing value", ErrInvalidPayload)
	}

	m := Measurement(raw.Metric)
	if !m.Valid() {
		return Reading{}, fmt.Errorf("%w: %q", ErrUnknownMetric, raw.Metric)
	}

	value := *raw.Value
	r := p.rangeFor(m)
	if value < r.Min || value > r.Max {
		return Reading{}, fmt.Errorf("%w: %s %.2f outside [%.1f, %.1f]",
			ErrOutOfRange, m, value, r.Min, r.Max)
	}

	recordedAt := raw.Timestamp
	if recordedAt.IsZero() {
		recordedAt = p.now()
	}

	return Reading{
		Measurement: m,
		Value:       value,
		Unit:        m.Unit(),
		SensorID:    sensorID,
		RecordedAt:  recordedAt,
	}, nil
}

func (p *Processor) rangeFor(m Measurement) config.SensorRangeConfig {
	switch m {
	case Temperature:
		return p.ranges.Temperature
	case Humidity:
		return p.ranges.Humidity
	case Light:
		return p.ranges.Light
	default:
		return p.ranges.SoilMoisture
	}
}
