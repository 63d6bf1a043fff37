// Package mqtt provides MQTT client connectivity for Greenhouse Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the field bus of the greenhouse: sensor nodes publish telemetry
// uplinks, the core publishes relay commands and alerts, and the retained
// system status topic carries liveness.
//
//	Sensor nodes → MQTT Broker → Greenhouse Core → MQTT Broker → Relay nodes
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all sensor telemetry
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a relay command
//	topic := mqtt.Topics{}.DeviceCommand("pump_01")
//	client.Publish(topic, []byte(`{"state":"on"}`), 1, false)
package mqtt
