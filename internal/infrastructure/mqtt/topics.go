package mqtt

import "fmt"

// Topic prefixes for the ClearWave MQTT namespace.
//
// Sensors publish readings to: clearwave/sensors/{sensor_id}/readings
// Core publishes its own status to: clearwave/system/status
const (
	// TopicPrefixSensors is the base for all sensor topics.
	TopicPrefixSensors = "clearwave/sensors"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "clearwave/system"
)

// Topics provides builders for ClearWave MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// SensorReadings returns the topic a specific sensor publishes readings to.
//
// Example: clearwave/sensors/sensor-ward3-temp/readings
func (Topics) SensorReadings(sensorID string) string {
	return fmt.Sprintf("%s/%s/readings", TopicPrefixSensors, sensorID)
}

// AllSensorReadings returns a pattern matching readings from every sensor.
//
// Pattern: clearwave/sensors/+/readings
func (Topics) AllSensorReadings() string {
	return fmt.Sprintf("%s/+/readings", TopicPrefixSensors)
}

// SensorIDFromTopic extracts the sensor id from a readings topic.
// Returns "" if the topic does not match the readings scheme.
func (Topics) SensorIDFromTopic(topic string) string {
	prefix := TopicPrefixSensors + "/"
	suffix := "/readings"
	if len(topic) <= len(prefix)+len(suffix) {
		return ""
	}
	if topic[:len(prefix)] != prefix || topic[len(topic)-len(suffix):] != suffix {
		return ""
	}
	id := topic[len(prefix) : len(topic)-len(suffix)]
	for _, r := range id {
		if r == '/' || r == '+' || r == '#' {
			return ""
		}
	}
	return id
}

// SystemStatus returns the system status topic.
//
// Example: clearwave/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
