package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

const readingColumns = `id, hospital_id, sensor_id, recorded_at,
	temperature, humidity, air_quality, payload, created_at`

// Query bounds a reading listing: optional time range, capped page size.
type Query struct {
	From  time.Time // inclusive lower bound on recorded_at
	To    time.Time // exclusive upper bound on recorded_at
	Limit int       // default 100, max 1000
}

// Repository defines the interface for sensor reading persistence.
type Repository interface {
	Insert(ctx context.Context, reading *Reading) error
	ListByHospital(ctx context.Context, hospitalID string, q Query) ([]Reading, error)
	LatestByHospital(ctx context.Context, hospitalID string) ([]Reading, error)
	History(ctx context.Context, sensorID string, q Query) ([]Reading, error)
	Overview(ctx context.Context, now time.Time) ([]SensorStatus, error)
	Stats(ctx context.Context, now time.Time) (*FleetStats, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new reading repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert persists an accepted reading. The ID and timestamps are
// generated if empty.
func (r *SQLiteRepository) Insert(ctx context.Context, reading *Reading) error {
	if reading.ID == "" {
		reading.ID = "rdg-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = now
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = now
	}

	var payloadJSON *string
	if reading.Payload != nil {
		b, err := json.Marshal(reading.Payload)
		if err != nil {
			return fmt.Errorf("marshalling reading payload: %w", err)
		}
		s := string(b)
		payloadJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (id, hospital_id, sensor_id, recorded_at,
		   temperature, humidity, air_quality, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.HospitalID, reading.SensorID,
		reading.RecordedAt.UTC().Format(time.RFC3339),
		nullFloat(reading.Temperature), nullFloat(reading.Humidity), nullFloat(reading.AirQuality),
		payloadJSON, reading.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting reading %s: %w", reading.ID, err)
	}
	return nil
}

// ListByHospital returns one hospital's readings, newest first.
func (r *SQLiteRepository) ListByHospital(ctx context.Context, hospitalID string, q Query) ([]Reading, error) {
	conditions := []string{"hospital_id = ?"}
	args := []any{hospitalID}
	conditions, args = appendRange(conditions, args, q)

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT "+readingColumns+" FROM sensor_readings WHERE %s ORDER BY recorded_at DESC, id DESC LIMIT ?",
		strings.Join(conditions, " AND "))
	args = append(args, clampLimit(q.Limit))

	return r.queryReadings(ctx, query, args...)
}

// LatestByHospital returns the most recent reading of every sensor that
// has reported for the hospital.
func (r *SQLiteRepository) LatestByHospital(ctx context.Context, hospitalID string) ([]Reading, error) {
	const query = `SELECT ` + readingColumns + ` FROM sensor_readings r
		WHERE r.hospital_id = ? AND r.id = (
			SELECT id FROM sensor_readings
			WHERE sensor_id = r.sensor_id AND hospital_id = r.hospital_id
			ORDER BY recorded_at DESC, id DESC LIMIT 1)
		ORDER BY r.sensor_id`
	return r.queryReadings(ctx, query, hospitalID)
}

// History returns one sensor's readings, newest first.
func (r *SQLiteRepository) History(ctx context.Context, sensorID string, q Query) ([]Reading, error) {
	conditions := []string{"sensor_id = ?"}
	args := []any{sensorID}
	conditions, args = appendRange(conditions, args, q)

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT "+readingColumns+" FROM sensor_readings WHERE %s ORDER BY recorded_at DESC, id DESC LIMIT ?",
		strings.Join(conditions, " AND "))
	args = append(args, clampLimit(q.Limit))

	return r.queryReadings(ctx, query, args...)
}

// Overview classifies every registered sensor (issued a key, in any
// state) by the age of its newest reading.
func (r *SQLiteRepository) Overview(ctx context.Context, now time.Time) ([]SensorStatus, error) {
	const query = `SELECT k.sensor_id, k.hospital_id, MAX(sr.recorded_at)
		FROM api_keys k
		LEFT JOIN sensor_readings sr ON sr.sensor_id = k.sensor_id AND sr.hospital_id = k.hospital_id
		GROUP BY k.sensor_id, k.hospital_id
		ORDER BY k.sensor_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sensor overview: %w", err)
	}
	defer rows.Close()

	statuses := []SensorStatus{}
	for rows.Next() {
		var s SensorStatus
		var lastSeen sql.NullString
		if err := rows.Scan(&s.SensorID, &s.HospitalID, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning overview row: %w", err)
		}
		if lastSeen.Valid {
			t, _ := time.Parse(time.RFC3339, lastSeen.String) //nolint:errcheck // format is controlled
			s.LastSeen = &t
		}
		s.Status = classify(s.LastSeen, now)
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overview rows: %w", err)
	}
	return statuses, nil
}

// Stats rolls the overview up into fleet counts plus 24h volume.
func (r *SQLiteRepository) Stats(ctx context.Context, now time.Time) (*FleetStats, error) {
	statuses, err := r.Overview(ctx, now)
	if err != nil {
		return nil, err
	}

	var stats FleetStats
	stats.TotalSensors = len(statuses)
	for _, s := range statuses {
		switch s.Status {
		case StatusActive:
			stats.ActiveSensors++
		case StatusStale:
			stats.StaleSensors++
		default:
			stats.InactiveSensors++
		}
	}

	cutoff := now.UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sensor_readings WHERE recorded_at >= ?", cutoff).
		Scan(&stats.Readings24h); err != nil {
		return nil, fmt.Errorf("counting recent readings: %w", err)
	}

	return &stats, nil
}

// classify maps a last-seen timestamp to a fleet status label.
func classify(lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return StatusInactive
	}
	age := now.Sub(*lastSeen)
	switch {
	case age < activeWindow:
		return StatusActive
	case age >= inactiveWindow:
		return StatusInactive
	default:
		return StatusStale
	}
}

// appendRange adds the optional recorded_at bounds from a Query.
func appendRange(conditions []string, args []any, q Query) ([]string, []any) {
	if !q.From.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		conditions = append(conditions, "recorded_at < ?")
		args = append(args, q.To.UTC().Format(time.RFC3339))
	}
	return conditions, args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// queryReadings executes a query and returns a slice of Reading.
func (r *SQLiteRepository) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var rd Reading
		var temperature, humidity, airQuality sql.NullFloat64
		var payloadJSON sql.NullString
		var recordedAt, createdAt string

		if err := rows.Scan(&rd.ID, &rd.HospitalID, &rd.SensorID, &recordedAt,
			&temperature, &humidity, &airQuality, &payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}

		if temperature.Valid {
			rd.Temperature = &temperature.Float64
		}
		if humidity.Valid {
			rd.Humidity = &humidity.Float64
		}
		if airQuality.Valid {
			rd.AirQuality = &airQuality.Float64
		}
		if payloadJSON.Valid && payloadJSON.String != "" {
			var payload map[string]any
			if json.Unmarshal([]byte(payloadJSON.String), &payload) == nil {
				rd.Payload = payload
			}
		}
		rd.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt) //nolint:errcheck // format is controlled
		rd.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)   //nolint:errcheck // format is controlled

		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reading rows: %w", err)
	}
	return readings, nil
}

// nullFloat converts a *float64 to sql.NullFloat64 for nullable columns.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
