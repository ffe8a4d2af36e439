// Package mqtt provides MQTT client connectivity for ClearWave Core.
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
// ClearWave uses MQTT as the ingestion path for hospital environmental
// sensors that cannot speak HTTP. Sensors publish readings carrying their
// API key; Core authenticates each message through the same device key
// authority as the HTTP path.
//
//	Sensors → MQTT Broker → ClearWave Core
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Every reading is additionally authenticated by device API key
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to readings from every sensor
//	err = client.Subscribe(mqtt.Topics{}.AllSensorReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingestReading(topic, payload)
//	    })
package mqtt
