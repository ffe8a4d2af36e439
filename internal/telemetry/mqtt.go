package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearwave/clearwave-core/internal/devicekey"
	"github.com/clearwave/clearwave-core/internal/infrastructure/mqtt"
)

// ingestTimeout bounds the handling of one MQTT message.
const ingestTimeout = 10 * time.Second

// maxMessageBytes caps the raw MQTT message: the payload ceiling plus
// room for the key, measurements, and timestamp around it. Checked
// before any JSON parsing so oversized messages cost nothing to refuse.
const maxMessageBytes = MaxPayloadBytes + 4<<10

// mqttReading is the JSON body a sensor publishes to its readings topic.
// The key authenticates the message; the topic's sensor id must match
// the one bound to the key.
type mqttReading struct {
	APIKey      string         `json:"api_key"`
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *float64       `json:"humidity,omitempty"`
	AirQuality  *float64       `json:"air_quality,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	RecordedAt  *time.Time     `json:"recorded_at,omitempty"`
}

// IngestHandler returns the MQTT message handler for sensor readings.
// Subscribe it to Topics{}.AllSensorReadings(). Bad messages are logged
// and dropped; the returned error only feeds the client's handler log.
func IngestHandler(authority *devicekey.Authority, svc *Service, logger *slog.Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		sensorID := mqtt.Topics{}.SensorIDFromTopic(topic)
		if sensorID == "" {
			logger.Warn("reading on unrecognised topic", "topic", topic)
			return fmt.Errorf("topic %q does not match the readings scheme", topic)
		}

		if len(payload) > maxMessageBytes {
			logger.Warn("oversized reading dropped", "topic", topic, "bytes", len(payload))
			return fmt.Errorf("reading from %q: %w", topic, ErrPayloadTooLarge)
		}

		var msg mqttReading
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("undecodable reading", "topic", topic, "error", err)
			return fmt.Errorf("decoding reading from %q: %w", topic, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()

		identity, err := authority.Authenticate(ctx, msg.APIKey, sensorID)
		if err != nil {
			logger.Warn("rejected reading", "sensor_id", sensorID, "error", err)
			return fmt.Errorf("authenticating sensor %q: %w", sensorID, err)
		}

		if _, err := svc.Ingest(ctx, identity, ReadingInput{
			Temperature: msg.Temperature,
			Humidity:    msg.Humidity,
			AirQuality:  msg.AirQuality,
			Payload:     msg.Payload,
			RecordedAt:  msg.RecordedAt,
		}); err != nil {
			logger.Warn("reading not accepted", "sensor_id", sensorID, "error", err)
			return fmt.Errorf("ingesting reading from %q: %w", sensorID, err)
		}

		return nil
	}
}
