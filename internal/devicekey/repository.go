package devicekey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const keyColumns = `id, key_hash, key_prefix, sensor_id, hospital_id, description,
	is_active, is_validated, created_by, created_at, last_used`

// Repository defines the interface for API key persistence.
type Repository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByID(ctx context.Context, id string) (*APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)
	GetBySensorID(ctx context.Context, sensorID string) (*APIKey, error)
	List(ctx context.Context) ([]APIKey, error)
	ListByHospital(ctx context.Context, hospitalID string) ([]APIKey, error)
	SetValidated(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	UpdateLastUsed(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed key repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new API key record. The ID is generated if empty.
// The sensor_id uniqueness constraint covers revoked keys too: a sensor
// whose key was revoked needs the old record removed before reissue.
func (r *SQLiteRepository) Create(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = "key-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	key.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, sensor_id, hospital_id, description,
		   is_active, is_validated, created_by, created_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		key.ID, key.KeyHash, key.KeyPrefix, key.SensorID, key.HospitalID,
		nullString(key.Description), boolToInt(key.IsActive), boolToInt(key.IsValidated),
		nullString(key.CreatedBy), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSensorIDTaken
		}
		return fmt.Errorf("inserting api key %s: %w", key.ID, err)
	}
	return nil
}

// GetByID retrieves a key by its record ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*APIKey, error) {
	return r.getKey(ctx, "SELECT "+keyColumns+" FROM api_keys WHERE id = ?", id)
}

// GetByHash retrieves a key by the SHA-256 of its plaintext secret.
func (r *SQLiteRepository) GetByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	return r.getKey(ctx, "SELECT "+keyColumns+" FROM api_keys WHERE key_hash = ?", keyHash)
}

// GetBySensorID retrieves the key bound to a sensor, in any state.
func (r *SQLiteRepository) GetBySensorID(ctx context.Context, sensorID string) (*APIKey, error) {
	return r.getKey(ctx, "SELECT "+keyColumns+" FROM api_keys WHERE sensor_id = ?", sensorID)
}

// List returns every key, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]APIKey, error) {
	return r.queryKeys(ctx,
		"SELECT "+keyColumns+" FROM api_keys ORDER BY created_at DESC")
}

// ListByHospital returns the keys issued for one hospital, newest first.
func (r *SQLiteRepository) ListByHospital(ctx context.Context, hospitalID string) ([]APIKey, error) {
	return r.queryKeys(ctx,
		"SELECT "+keyColumns+" FROM api_keys WHERE hospital_id = ? ORDER BY created_at DESC",
		hospitalID)
}

// SetValidated marks a key as admin-validated. Validating an already
// validated key is a no-op, not an error.
func (r *SQLiteRepository) SetValidated(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET is_validated = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("validating api key %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Revoke deactivates a key. There is no un-revoke: the sensor gets a new
// key instead.
func (r *SQLiteRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking api key %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// UpdateLastUsed stamps the key's last successful authentication.
func (r *SQLiteRepository) UpdateLastUsed(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("stamping api key %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// getKey executes a query and scans a single key result.
func (r *SQLiteRepository) getKey(ctx context.Context, query string, args ...any) (*APIKey, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return key, nil
}

// queryKeys executes a query and returns a slice of APIKey.
func (r *SQLiteRepository) queryKeys(ctx context.Context, query string, args ...any) ([]APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}

	if keys == nil {
		keys = []APIKey{}
	}
	return keys, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanKey scans an API key from any scanner (Row or Rows).
func scanKey(s scanner) (*APIKey, error) {
	var k APIKey
	var description, createdBy, lastUsed sql.NullString
	var isActive, isValidated int
	var createdAt string

	err := s.Scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &k.SensorID, &k.HospitalID, &description,
		&isActive, &isValidated, &createdBy, &createdAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning api key: %w", err)
	}

	k.IsActive = isActive != 0
	k.IsValidated = isValidated != 0
	if description.Valid {
		k.Description = description.String
	}
	if createdBy.Valid {
		k.CreatedBy = createdBy.String
	}
	if lastUsed.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsed.String) //nolint:errcheck // format is controlled
		k.LastUsed = &t
	}
	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &k, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
