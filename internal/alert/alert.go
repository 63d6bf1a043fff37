// Package alert fans operational alerts out to MQTT and the log.
//
// Alerts are advisory. A publish failure is logged and swallowed so an
// unreachable broker can never block the control loop.
package alert

import (
	"encoding/json"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/mqtt"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const alertQoS = 1

// Alert is one operational event worth a human's attention.
type Alert struct {
	Severity Severity  `json:"severity"`
	Source   string    `json:"source"`
	Message  string    `json:"message"`
	DeviceID string    `json:"device_id,omitempty"`
	RaisedAt time.Time `json:"raised_at"`
}

// Publisher is the subset of the MQTT client the notifier needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger is the minimal logging interface the notifier needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier publishes alerts to greenhouse/alert/{severity} and the log.
type Notifier struct {
	publisher Publisher
	logger    Logger
	now       func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the notifier's logger.
func WithLogger(logger Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier creates an alert notifier. publisher may be nil, in which
// case alerts only reach the log.
func NewNotifier(publisher Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		publisher: publisher,
		logger:    noopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Raise emits one alert.
func (n *Notifier) Raise(severity Severity, source, message, deviceID string) {
	a := Alert{
		Severity: severity,
		Source:   source,
		Message:  message,
		DeviceID: deviceID,
		RaisedAt: n.now().UTC(),
	}

	switch severity {
	case SeverityCritical:
		n.logger.Error("alert raised", "severity", severity, "source", source, "message", message, "device_id", deviceID)
	case SeverityWarning:
		n.logger.Warn("alert raised", "severity", severity, "source", source, "message", message, "device_id", deviceID)
	default:
		n.logger.Info("alert raised", "severity", severity, "source", source, "message", message, "device_id", deviceID)
	}

	if n.publisher == nil || !n.publisher.IsConnected() {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		n.logger.Error("encoding alert", "error", err)
		return
	}
	topic := mqtt.Topics{}.Alert(string(severity))
	if err := n.publisher.Publish(topic, payload, alertQoS, false); err != nil {
		n.logger.Error("publishing alert", "topic", topic, "error", err)
	}
}

// Critical raises a critical alert.
func (n *Notifier) Critical(source, message, deviceID string) {
	n.Raise(SeverityCritical, source, message, deviceID)
}

// Warning raises a warning alert.
func (n *Notifier) Warning(source, message, deviceID string) {
	n.Raise(SeverityWarning, source, message, deviceID)
}

// Info raises an informational alert.
func (n *Notifier) Info(source, message, deviceID string) {
	n.Raise(SeverityInfo, source, message, deviceID)
}
