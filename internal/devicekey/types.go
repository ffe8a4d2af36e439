package devicekey

import (
	"errors"
	"time"
)

// APIKey is a per-sensor credential bound to one hospital.
type APIKey struct {
	ID          string     `json:"id"`
	KeyHash     string     `json:"-"` // never serialised
	KeyPrefix   string     `json:"key_prefix"`
	SensorID    string     `json:"sensor_id"`
	HospitalID  string     `json:"hospital_id"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsValidated bool       `json:"is_validated"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// Identity is the resolved device identity of an authenticated request.
type Identity struct {
	KeyID      string `json:"key_id"`
	SensorID   string `json:"sensor_id"`
	HospitalID string `json:"hospital_id"`
}

// Sentinel errors for device key operations.
var (
	ErrKeyNotFound     = errors.New("api key not found")
	ErrSensorIDTaken   = errors.New("sensor already has a key issued")
	ErrInvalidKey      = errors.New("invalid api key")
	ErrKeyNotValidated = errors.New("api key pending admin validation")
	ErrSensorMismatch  = errors.New("api key does not belong to this sensor")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInvalidSensorID = errors.New("invalid sensor id")
)
