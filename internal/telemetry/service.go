package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearwave/clearwave-core/internal/audit"
	"github.com/clearwave/clearwave-core/internal/auth"
	"github.com/clearwave/clearwave-core/internal/devicekey"
	"github.com/clearwave/clearwave-core/internal/org"
)

// MaxPayloadBytes caps the serialised custom payload of one reading.
// Transports must admit bodies slightly larger than this so that a
// payload of exactly the ceiling still fits inside its envelope.
const MaxPayloadBytes = 1 << 20

// Mirror receives a copy of every accepted reading's numeric fields.
// Satisfied by the InfluxDB client; nil disables mirroring.
type Mirror interface {
	WriteSensorReading(hospitalID, sensorID string, temperature, humidity, airQuality *float64, recordedAt time.Time)
}

// Service is the telemetry ingest and query layer.
type Service struct {
	readings Repository
	orgs     org.Repository
	mirror   Mirror
	recorder *audit.Recorder
}

// NewService creates a telemetry service. mirror may be nil.
func NewService(readings Repository, orgs org.Repository, mirror Mirror, recorder *audit.Recorder) *Service {
	return &Service{readings: readings, orgs: orgs, mirror: mirror, recorder: recorder}
}

// Ingest accepts a reading from an authenticated device. The hospital
// and sensor identity come from the key, never from the input. At least
// one measurement (or a payload) must be present, and the payload is
// size-checked before anything is persisted.
func (s *Service) Ingest(ctx context.Context, identity *devicekey.Identity, input ReadingInput) (*Reading, error) {
	if input.Temperature == nil && input.Humidity == nil && input.AirQuality == nil && len(input.Payload) == 0 {
		return nil, ErrEmptyReading
	}

	if input.Payload != nil {
		b, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling reading payload: %w", err)
		}
		if len(b) > MaxPayloadBytes {
			return nil, ErrPayloadTooLarge
		}
	}

	reading := &Reading{
		HospitalID:  identity.HospitalID,
		SensorID:    identity.SensorID,
		Temperature: input.Temperature,
		Humidity:    input.Humidity,
		AirQuality:  input.AirQuality,
		Payload:     input.Payload,
	}
	if input.RecordedAt != nil {
		reading.RecordedAt = input.RecordedAt.UTC()
	}

	if err := s.readings.Insert(ctx, reading); err != nil {
		return nil, err
	}

	if s.mirror != nil {
		s.mirror.WriteSensorReading(reading.HospitalID, reading.SensorID,
			reading.Temperature, reading.Humidity, reading.AirQuality, reading.RecordedAt)
	}

	if s.recorder != nil {
		s.recorder.Record(audit.Entry{
			Action:       audit.ActionTelemetryIngest,
			ResourceType: "sensor",
			ResourceID:   reading.SensorID,
			Details:      map[string]any{"hospital_id": reading.HospitalID},
		})
	}

	return reading, nil
}

// ReadingsForScope lists a hospital's readings if the scope admits it.
func (s *Service) ReadingsForScope(ctx context.Context, scope auth.Scope, hospitalID string, q Query) ([]Reading, error) {
	if err := s.checkScope(ctx, scope, hospitalID); err != nil {
		return nil, err
	}
	return s.readings.ListByHospital(ctx, hospitalID, q)
}

// LatestForScope returns each sensor's newest reading for a hospital
// the scope admits.
func (s *Service) LatestForScope(ctx context.Context, scope auth.Scope, hospitalID string) ([]Reading, error) {
	if err := s.checkScope(ctx, scope, hospitalID); err != nil {
		return nil, err
	}
	return s.readings.LatestByHospital(ctx, hospitalID)
}

// HistoryForScope returns one sensor's readings. The sensor's readings
// determine which hospital the data belongs to; rows outside the scope
// are filtered out rather than erroring, since a sensor id alone does
// not identify a hospital.
func (s *Service) HistoryForScope(ctx context.Context, scope auth.Scope, sensorID string, q Query) ([]Reading, error) {
	readings, err := s.readings.History(ctx, sensorID, q)
	if err != nil {
		return nil, err
	}
	if scope.Unrestricted() {
		return readings, nil
	}

	regions, err := s.hospitalRegions(ctx)
	if err != nil {
		return nil, err
	}

	filtered := []Reading{}
	for _, rd := range readings {
		if scope.CanAccessHospital(regions[rd.HospitalID], rd.HospitalID) {
			filtered = append(filtered, rd)
		}
	}
	return filtered, nil
}

// OverviewForScope returns the fleet overview narrowed to the scope.
func (s *Service) OverviewForScope(ctx context.Context, scope auth.Scope, now time.Time) ([]SensorStatus, error) {
	statuses, err := s.readings.Overview(ctx, now)
	if err != nil {
		return nil, err
	}
	if scope.Unrestricted() {
		return statuses, nil
	}

	regions, err := s.hospitalRegions(ctx)
	if err != nil {
		return nil, err
	}

	filtered := []SensorStatus{}
	for _, st := range statuses {
		if scope.CanAccessHospital(regions[st.HospitalID], st.HospitalID) {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

// Stats returns fleet-wide counts. Admin only; enforced by the API layer.
func (s *Service) Stats(ctx context.Context, now time.Time) (*FleetStats, error) {
	return s.readings.Stats(ctx, now)
}

// checkScope resolves the hospital's region and asks the scope.
func (s *Service) checkScope(ctx context.Context, scope auth.Scope, hospitalID string) error {
	if scope.Unrestricted() {
		return nil
	}
	hospital, err := s.orgs.GetHospital(ctx, hospitalID)
	if err != nil {
		return err
	}
	if !scope.CanAccessHospital(hospital.RegionID, hospital.ID) {
		return ErrForbidden
	}
	return nil
}

// hospitalRegions builds the hospital → region lookup scope checks need.
func (s *Service) hospitalRegions(ctx context.Context) (map[string]string, error) {
	hospitals, err := s.orgs.ListHospitals(ctx)
	if err != nil {
		return nil, err
	}
	regions := make(map[string]string, len(hospitals))
	for _, h := range hospitals {
		regions[h.ID] = h.RegionID
	}
	return regions, nil
}
