package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	messages []published
	failNext bool
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.failNext {
		return errors.New("mqtt: not connected to broker")
	}
	f.messages = append(f.messages, published{topic, payload, qos, retained})
	return nil
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	f.messages = append(f.messages, published{topic, payload, 1, true})
	return nil
}

func (f *fakePublisher) IsConnected() bool { return true }

func newTestController(pub *fakePublisher) *Controller {
	c := NewController(pub)
	c.now = func() time.Time { return time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC) }
	c.newID = func() string { return "cmd-fixed" }
	return c
}

func TestTurnOn(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestController(pub)

	if err := c.TurnOn("pump_01", 15*time.Minute); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}

	if len(pub.messages) != 2 {
		t.Fatalf("published %d messages, want command + retained state", len(pub.messages))
	}

	cmdMsg := pub.messages[0]
	if cmdMsg.topic != "greenhouse/command/pump_01" {
		t.Errorf("command topic = %s", cmdMsg.topic)
	}
	if cmdMsg.qos != 1 || cmdMsg.retained {
		t.Errorf("command qos/retained = %d/%v, want 1/false", cmdMsg.qos, cmdMsg.retained)
	}

	var cmd Command
	if err := json.Unmarshal(cmdMsg.payload, &cmd); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	if cmd.Action != "on" {
		t.Errorf("Action = %s, want on", cmd.Action)
	}
	if cmd.DurationSeconds != 900 {
		t.Errorf("DurationSeconds = %v, want 900", cmd.DurationSeconds)
	}
	if cmd.CommandID != "cmd-fixed" {
		t.Errorf("CommandID = %s", cmd.CommandID)
	}
	if cmd.IssuedAt != "2026-07-14T12:00:00Z" {
		t.Errorf("IssuedAt = %s", cmd.IssuedAt)
	}

	stateMsg := pub.messages[1]
	if stateMsg.topic != "greenhouse/state/pump_01" {
		t.Errorf("state topic = %s", stateMsg.topic)
	}
	if !stateMsg.retained {
		t.Error("state message not retained")
	}
}

func TestTurnOff(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestController(pub)

	if err := c.TurnOff("fan_01"); err != nil {
		t.Fatalf("TurnOff() error = %v", err)
	}

	var cmd Command
	if err := json.Unmarshal(pub.messages[0].payload, &cmd); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	if cmd.Action != "off" {
		t.Errorf("Action = %s, want off", cmd.Action)
	}
	if cmd.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %v, want omitted", cmd.DurationSeconds)
	}

	var state stateMessage
	if err := json.Unmarshal(pub.messages[1].payload, &state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if state.On {
		t.Error("state mirror reports on after off command")
	}
}

func TestTurnOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{failNext: true}
	c := newTestController(pub)

	if err := c.TurnOn("pump_01", time.Minute); err == nil {
		t.Fatal("TurnOn() error = nil, want publish failure")
	}
	if len(pub.messages) != 0 {
		t.Errorf("published %d messages after failure, want 0", len(pub.messages))
	}
}
