// Package relay publishes hardware commands to relay controllers over
// MQTT and mirrors the last commanded state on a retained topic.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/mqtt"
)

// Commands are delivered at least once; relay firmware deduplicates by
// command ID.
const commandQoS = 1

// Publisher is the subset of the MQTT client the relay needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// Command is the wire format sent to a relay controller.
type Command struct {
	CommandID       string  `json:"command_id"`
	Action          string  `json:"action"` // "on" or "off"
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	IssuedAt        string  `json:"issued_at"`
}

// stateMessage mirrors the last commanded state for dashboards and
// late-joining subscribers.
type stateMessage struct {
	DeviceID  string `json:"device_id"`
	On        bool   `json:"on"`
	CommandID string `json:"command_id"`
	UpdatedAt string `json:"updated_at"`
}

// Controller sends on/off commands to relay hardware.
type Controller struct {
	publisher Publisher
	topics    mqtt.Topics
	now       func() time.Time
	newID     func() string
}

// NewController creates a relay controller over an MQTT publisher.
func NewController(publisher Publisher) *Controller {
	return &Controller{
		publisher: publisher,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// TurnOn commands the device on for the given duration. The relay
// firmware enforces the duration as its own dead-man timer, so a core
// crash cannot leave hardware running indefinitely.
func (c *Controller) TurnOn(deviceID string, duration time.Duration) error {
	return c.send(deviceID, Command{
		CommandID:       c.newID(),
		Action:          "on",
		DurationSeconds: duration.Seconds(),
		IssuedAt:        c.now().UTC().Format(time.RFC3339),
	}, true)
}

// TurnOff commands the device off.
func (c *Controller) TurnOff(deviceID string) error {
	return c.send(deviceID, Command{
		CommandID: c.newID(),
		Action:    "off",
		IssuedAt:  c.now().UTC().Format(time.RFC3339),
	}, false)
}

func (c *Controller) send(deviceID string, cmd Command, on bool) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding relay command: %w", err)
	}

	topics := mqtt.Topics{}
	if err := c.publisher.Publish(topics.DeviceCommand(deviceID), payload, commandQoS, false); err != nil {
		return fmt.Errorf("publishing relay command for %s: %w", deviceID, err)
	}

	// State mirror is best effort: the command already went out.
	state, err := json.Marshal(stateMessage{
		DeviceID:  deviceID,
		On:        on,
		CommandID: cmd.CommandID,
		UpdatedAt: cmd.IssuedAt,
	})
	if err == nil {
		_ = c.publisher.PublishRetained(topics.DeviceState(deviceID), state)
	}
	return nil
}
