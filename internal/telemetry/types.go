package telemetry

import (
	"errors"
	"time"
)

// Sensor fleet status labels.
const (
	StatusActive   = "active"   // reported within the last hour
	StatusStale    = "stale"    // silent for 1-24 hours
	StatusInactive = "inactive" // silent for 24 hours or more, or never reported
)

const (
	activeWindow   = time.Hour
	inactiveWindow = 24 * time.Hour
)

// Reading is a single accepted sensor measurement. All value fields are
// optional — a reading must just carry at least one of them.
type Reading struct {
	ID          string         `json:"id"`
	HospitalID  string         `json:"hospital_id"`
	SensorID    string         `json:"sensor_id"`
	RecordedAt  time.Time      `json:"recorded_at"`
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *float64       `json:"humidity,omitempty"`
	AirQuality  *float64       `json:"air_quality,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ReadingInput is the device-supplied part of a reading. The hospital
// and sensor identity come from the authenticated key, never from here.
type ReadingInput struct {
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *float64       `json:"humidity,omitempty"`
	AirQuality  *float64       `json:"air_quality,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	RecordedAt  *time.Time     `json:"recorded_at,omitempty"` // defaults to arrival time
}

// SensorStatus is one row of the fleet overview.
type SensorStatus struct {
	SensorID   string     `json:"sensor_id"`
	HospitalID string     `json:"hospital_id"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Status     string     `json:"status"`
}

// FleetStats summarises the sensor fleet for the admin dashboard API.
type FleetStats struct {
	TotalSensors    int `json:"total_sensors"`
	ActiveSensors   int `json:"active_sensors"`
	StaleSensors    int `json:"stale_sensors"`
	InactiveSensors int `json:"inactive_sensors"`
	Readings24h     int `json:"readings_24h"`
}

// Sentinel errors for telemetry operations.
var (
	ErrEmptyReading    = errors.New("reading carries no measurements")
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")
	ErrReadingNotFound = errors.New("reading not found")
	ErrForbidden       = errors.New("scope does not admit this hospital")
)
