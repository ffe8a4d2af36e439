package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading mirrors an accepted environmental reading to InfluxDB.
//
// This is the primary method for the telemetry mirror. The write is
// non-blocking; data is batched and sent asynchronously. Nil field
// pointers are omitted so partial readings (e.g. a humidity-only probe)
// produce partial points.
//
// Parameters:
//   - hospitalID: Hospital the sensor is bound to (tag)
//   - sensorID: Sensor identifier (tag)
//   - temperature, humidity, airQuality: Optional reading fields
//   - recordedAt: Timestamp the sensor recorded the reading
func (c *Client) WriteSensorReading(hospitalID, sensorID string, temperature, humidity, airQuality *float64, recordedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{}, 3)
	if temperature != nil {
		fields["temperature"] = *temperature
	}
	if humidity != nil {
		fields["humidity"] = *humidity
	}
	if airQuality != nil {
		fields["air_quality"] = *airQuality
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"hospital_id": hospitalID,
			"sensor_id":   sensorID,
		},
		fields,
		recordedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
