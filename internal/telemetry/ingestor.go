package telemetry

import (
	"strings"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/mqtt"
)

// Subscriber is the slice of the MQTT client the ingestor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Archiver receives validated readings for time-series recording.
// Implemented by the InfluxDB client; optional.
type Archiver interface {
	WriteSensorReading(sensorID string, metric string, value float64, at time.Time)
}

// Logger is the minimal logging interface the ingestor uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Ingestor subscribes to sensor uplinks and feeds validated readings
// into the store.
//
// Bad payloads are logged and dropped; a misbehaving sensor never
// stalls ingestion.
type Ingestor struct {
	processor *Processor
	store     *Store
	archive   Archiver
	logger    Logger
	qos       byte

	// onAccept is called after each accepted reading (metrics hook).
	onAccept func(Reading)
}

// IngestorOption configures optional Ingestor collaborators.
type IngestorOption func(*Ingestor)

// WithArchiver attaches a time-series archiver for accepted readings.
func WithArchiver(a Archiver) IngestorOption {
	return func(i *Ingestor) { i.archive = a }
}

// WithLogger attaches a logger for dropped payloads.
func WithLogger(l Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// WithAcceptHook registers a callback invoked for each accepted reading.
func WithAcceptHook(fn func(Reading)) IngestorOption {
	return func(i *Ingestor) { i.onAccept = fn }
}

// NewIngestor creates an Ingestor feeding the given store.
func NewIngestor(processor *Processor, store *Store, qos byte, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		processor: processor,
		store:     store,
		logger:    noopLogger{},
		qos:       qos,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start subscribes to all sensor uplink topics.
func (i *Ingestor) Start(sub Subscriber) error {
	return sub.Subscribe(mqtt.Topics{}.AllTelemetry(), i.qos, i.handle)
}

// handle processes one uplink message.
//
// Returning an error would only be logged by the MQTT layer; the
// ingestor logs locally and always acknowledges.
func (i *Ingestor) handle(topic string, payload []byte) error {
	sensorID := sensorIDFromTopic(topic)

	reading, err := i.processor.Process(sensorID, payload)
	if err != nil {
		i.logger.Warn("dropping telemetry payload",
			"topic", topic,
			"sensor_id", sensorID,
			"error", err,
		)
		return nil
	}

	i.store.Put(reading)

	i.logger.Debug("telemetry accepted",
		"sensor_id", sensorID,
		"metric", string(reading.Measurement),
		"value", reading.Value,
	)

	if i.archive != nil {
		i.archive.WriteSensorReading(sensorID, string(reading.Measurement), reading.Value, reading.RecordedAt)
	}
	if i.onAccept != nil {
		i.onAccept(reading)
	}

	return nil
}

// sensorIDFromTopic extracts the sensor ID from a telemetry topic
// (greenhouse/telemetry/{sensor_id}).
func sensorIDFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return topic
	}
	return topic[idx+1:]
}
