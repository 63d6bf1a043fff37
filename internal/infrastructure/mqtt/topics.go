package mqtt

import "fmt"

// Topic prefixes for the greenhouse MQTT namespace.
//
// Sensor nodes publish telemetry uplinks, the core publishes relay commands
// and alerts, and the retained system status topic carries liveness.
const (
	// TopicPrefix is the base for all greenhouse topics.
	TopicPrefix = "greenhouse"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "greenhouse/system"
)

// Topics provides builders for greenhouse MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("pump_01")
//	// Returns: "greenhouse/command/pump_01"
type Topics struct{}

// Telemetry returns the topic a sensor node publishes readings to.
//
// Example: greenhouse/telemetry/soil-probe-01
func (Topics) Telemetry(sensorID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, sensorID)
}

// AllTelemetry returns a pattern matching all sensor telemetry uplinks.
//
// Pattern: greenhouse/telemetry/+
func (Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/telemetry/+", TopicPrefix)
}

// DeviceCommand returns the topic for relay commands to a device.
//
// Example: greenhouse/command/pump_01
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// AllDeviceCommands returns a pattern matching all relay commands.
//
// Pattern: greenhouse/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// DeviceState returns the retained topic carrying a device's last commanded state.
//
// Example: greenhouse/state/pump_01
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// Alert returns the topic for alerts of a given severity.
//
// Example: greenhouse/alert/critical
func (Topics) Alert(severity string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefix, severity)
}

// AllAlerts returns a pattern matching all alerts.
//
// Pattern: greenhouse/alert/+
func (Topics) AllAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefix)
}

// SystemStatus returns the retained system status topic (online/offline, LWT).
//
// Example: greenhouse/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching the whole greenhouse namespace.
// Use with caution - this receives ALL traffic.
//
// Pattern: greenhouse/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
