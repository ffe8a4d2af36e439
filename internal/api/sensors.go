package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearwave/clearwave-core/internal/devicekey"
	"github.com/clearwave/clearwave-core/internal/org"
	"github.com/clearwave/clearwave-core/internal/telemetry"
)

// apiKeyHeader carries the device key on sensor ingest requests.
const apiKeyHeader = "X-API-Key"

// ingestRequest is the request body for POST /sensors/data. The sensor
// id is cross-checked against the key; it never decides where the
// reading lands.
type ingestRequest struct {
	SensorID    string         `json:"sensor_id"`
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *float64       `json:"humidity,omitempty"`
	AirQuality  *float64       `json:"air_quality,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	RecordedAt  *time.Time     `json:"recorded_at,omitempty"`
}

// handleIngestReading accepts a reading from a sensor authenticating
// with a device key.
func (s *Server) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	rawKey := r.Header.Get(apiKeyHeader)
	if rawKey == "" {
		writeUnauthorized(w, "missing "+apiKeyHeader+" header")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writePayloadTooLarge(w, "request body exceeds size limit")
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}

	identity, err := s.keys.Authenticate(r.Context(), rawKey, req.SensorID)
	if err != nil {
		switch {
		case errors.Is(err, devicekey.ErrRateLimited):
			writeRateLimited(w, "too many requests for this key")
		case errors.Is(err, devicekey.ErrKeyNotValidated):
			writeForbidden(w, "key is awaiting validation")
		case errors.Is(err, devicekey.ErrSensorMismatch):
			writeForbidden(w, "key is not bound to this sensor")
		default:
			writeUnauthorized(w, "invalid api key")
		}
		return
	}

	reading, err := s.telemetry.Ingest(r.Context(), identity, telemetry.ReadingInput{
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		AirQuality:  req.AirQuality,
		Payload:     req.Payload,
		RecordedAt:  req.RecordedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, telemetry.ErrEmptyReading):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "reading carries no measurements")
		case errors.Is(err, telemetry.ErrPayloadTooLarge):
			writePayloadTooLarge(w, "payload exceeds size limit")
		default:
			writeInternalError(w, "failed to store reading")
		}
		return
	}

	writeJSON(w, http.StatusCreated, reading)
}

// handleListReadings returns a hospital's readings. Hospital users get
// their own hospital implicitly; everyone else names one with
// ?hospital_id=.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := s.targetHospital(w, r)
	if !ok {
		return
	}

	readings, err := s.telemetry.ReadingsForScope(r.Context(), scopeFrom(r.Context()), hospitalID, readingQuery(r))
	if err != nil {
		writeTelemetryError(w, err, "failed to list readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// handleLatestReadings returns each sensor's newest reading for a hospital.
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := s.targetHospital(w, r)
	if !ok {
		return
	}

	readings, err := s.telemetry.LatestForScope(r.Context(), scopeFrom(r.Context()), hospitalID)
	if err != nil {
		writeTelemetryError(w, err, "failed to load latest readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// handleSensorHistory returns one sensor's readings, newest first,
// narrowed to the caller's scope.
func (s *Server) handleSensorHistory(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "sensorID")

	readings, err := s.telemetry.HistoryForScope(r.Context(), scopeFrom(r.Context()), sensorID, readingQuery(r))
	if err != nil {
		writeTelemetryError(w, err, "failed to load sensor history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_id": sensorID,
		"readings":  readings,
		"count":     len(readings),
	})
}

// handleSensorOverview classifies the caller's visible sensors as
// active, stale, or inactive.
func (s *Server) handleSensorOverview(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.telemetry.OverviewForScope(r.Context(), scopeFrom(r.Context()), time.Now().UTC())
	if err != nil {
		writeTelemetryError(w, err, "failed to build sensor overview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": statuses,
		"count":   len(statuses),
	})
}

// handleSensorStats returns fleet-wide counts for the admin dashboard.
func (s *Server) handleSensorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.telemetry.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		writeInternalError(w, "failed to compute fleet stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// targetHospital resolves which hospital a read targets: the explicit
// ?hospital_id= parameter, or the caller's own assignment. Writes the
// error response itself when neither is available.
func (s *Server) targetHospital(w http.ResponseWriter, r *http.Request) (string, bool) {
	if hospitalID := r.URL.Query().Get("hospital_id"); hospitalID != "" {
		return hospitalID, true
	}

	claims := claimsFrom(r.Context())
	if claims != nil && claims.HospitalID != "" {
		return claims.HospitalID, true
	}

	writeBadRequest(w, "hospital_id is required")
	return "", false
}

// readingQuery parses the optional from/to/limit query parameters.
func readingQuery(r *http.Request) telemetry.Query {
	var q telemetry.Query
	params := r.URL.Query()

	if v := params.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.From = t
		}
	}
	if v := params.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.To = t
		}
	}
	if v := params.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	return q
}

// writeTelemetryError maps telemetry and org sentinel errors onto HTTP
// responses.
func writeTelemetryError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, telemetry.ErrForbidden):
		writeForbidden(w, "hospital is outside your scope")
	case errors.Is(err, org.ErrHospitalNotFound):
		writeNotFound(w, "hospital not found")
	default:
		writeInternalError(w, fallback)
	}
}
