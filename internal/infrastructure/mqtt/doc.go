// Package mqtt provides MQTT client connectivity for SchoolTrack Asset Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// SchoolTrack uses MQTT as the ingest path for device heartbeats. Agent
// software installed on managed laptops and desktops publishes a periodic
// heartbeat; the core consumes them to maintain last-seen timestamps.
//
//	Device Agents → MQTT Broker → SchoolTrack Asset Core
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device heartbeats
//	err = client.Subscribe(mqtt.Topics{}.AllHeartbeats(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a device lifecycle event
//	topic := mqtt.Topics{}.CoreDeviceEvent("RTB/LT/KIG/002", "assigned")
//	client.Publish(topic, []byte(`{"school":"sch-kigali-01"}`), 1, false)
package mqtt
