package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for region and hospital persistence.
type Repository interface {
	CreateRegion(ctx context.Context, region *Region) error
	ListRegions(ctx context.Context) ([]Region, error)
	GetRegion(ctx context.Context, id string) (*Region, error)
	UpdateRegion(ctx context.Context, region *Region) error
	DeleteRegion(ctx context.Context, id string) error

	CreateHospital(ctx context.Context, hospital *Hospital) error
	ListHospitals(ctx context.Context) ([]Hospital, error)
	ListHospitalsByRegion(ctx context.Context, regionID string) ([]Hospital, error)
	GetHospital(ctx context.Context, id string) (*Hospital, error)
	UpdateHospital(ctx context.Context, hospital *Hospital) error
	DeleteHospital(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed org repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRegion inserts a new region. The ID is generated if empty; name
// and code must both be validated and unused.
func (r *SQLiteRepository) CreateRegion(ctx context.Context, region *Region) error {
	if err := ValidateRegion(region); err != nil {
		return err
	}
	if region.ID == "" {
		region.ID = "reg-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	region.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO regions (id, name, code, created_at) VALUES (?, ?, ?, ?)",
		region.ID, strings.TrimSpace(region.Name), region.Code, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRegionExists
		}
		return fmt.Errorf("inserting region %s: %w", region.ID, err)
	}
	return nil
}

// ListRegions returns all regions ordered by name.
func (r *SQLiteRepository) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, code, created_at FROM regions ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying regions: %w", err)
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		var reg Region
		var createdAt string
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Code, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning region row: %w", err)
		}
		reg.CreatedAt = parseTime(createdAt)
		regions = append(regions, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating region rows: %w", err)
	}

	if regions == nil {
		regions = []Region{}
	}
	return regions, nil
}

// GetRegion returns a single region by ID.
func (r *SQLiteRepository) GetRegion(ctx context.Context, id string) (*Region, error) {
	var reg Region
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, code, created_at FROM regions WHERE id = ?", id).
		Scan(&reg.ID, &reg.Name, &reg.Code, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegionNotFound
		}
		return nil, fmt.Errorf("scanning region: %w", err)
	}
	reg.CreatedAt = parseTime(createdAt)
	return &reg, nil
}

// UpdateRegion updates a region's name and code.
func (r *SQLiteRepository) UpdateRegion(ctx context.Context, region *Region) error {
	if err := ValidateRegion(region); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE regions SET name = ?, code = ? WHERE id = ?",
		strings.TrimSpace(region.Name), region.Code, region.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRegionExists
		}
		return fmt.Errorf("updating region %s: %w", region.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrRegionNotFound
	}
	return nil
}

// DeleteRegion removes a region by ID. A region that still contains
// hospitals cannot be deleted.
func (r *SQLiteRepository) DeleteRegion(ctx context.Context, id string) error {
	var hospitalCount int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM hospitals WHERE region_id = ?", id).Scan(&hospitalCount); err != nil {
		return fmt.Errorf("counting hospitals for region %s: %w", id, err)
	}
	if hospitalCount > 0 {
		return ErrRegionHasHospitals
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM regions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting region %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrRegionNotFound
	}
	return nil
}

// CreateHospital inserts a new hospital. The region must already exist.
func (r *SQLiteRepository) CreateHospital(ctx context.Context, hospital *Hospital) error {
	if err := ValidateHospital(hospital); err != nil {
		return err
	}
	if _, err := r.GetRegion(ctx, hospital.RegionID); err != nil {
		return err
	}
	if hospital.ID == "" {
		hospital.ID = "hos-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	hospital.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hospitals (id, name, code, region_id, address, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hospital.ID, strings.TrimSpace(hospital.Name), hospital.Code,
		hospital.RegionID, nullStr(hospital.Address), now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHospitalExists
		}
		return fmt.Errorf("inserting hospital %s: %w", hospital.ID, err)
	}
	return nil
}

// ListHospitals returns all hospitals ordered by name.
func (r *SQLiteRepository) ListHospitals(ctx context.Context) ([]Hospital, error) {
	return r.queryHospitals(ctx,
		"SELECT id, name, code, region_id, address, created_at FROM hospitals ORDER BY name")
}

// ListHospitalsByRegion returns the hospitals inside one region.
func (r *SQLiteRepository) ListHospitalsByRegion(ctx context.Context, regionID string) ([]Hospital, error) {
	return r.queryHospitals(ctx,
		"SELECT id, name, code, region_id, address, created_at FROM hospitals WHERE region_id = ? ORDER BY name",
		regionID)
}

// GetHospital returns a single hospital by ID.
func (r *SQLiteRepository) GetHospital(ctx context.Context, id string) (*Hospital, error) {
	var h Hospital
	var address sql.NullString
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, code, region_id, address, created_at FROM hospitals WHERE id = ?", id).
		Scan(&h.ID, &h.Name, &h.Code, &h.RegionID, &address, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, fmt.Errorf("scanning hospital: %w", err)
	}

	if address.Valid {
		h.Address = address.String
	}
	h.CreatedAt = parseTime(createdAt)
	return &h, nil
}

// UpdateHospital updates a hospital's name, code, region, and address.
// Moving a hospital to another region re-checks that the region exists.
func (r *SQLiteRepository) UpdateHospital(ctx context.Context, hospital *Hospital) error {
	if err := ValidateHospital(hospital); err != nil {
		return err
	}
	if _, err := r.GetRegion(ctx, hospital.RegionID); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE hospitals SET name = ?, code = ?, region_id = ?, address = ? WHERE id = ?",
		strings.TrimSpace(hospital.Name), hospital.Code, hospital.RegionID,
		nullStr(hospital.Address), hospital.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHospitalExists
		}
		return fmt.Errorf("updating hospital %s: %w", hospital.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrHospitalNotFound
	}
	return nil
}

// DeleteHospital removes a hospital by ID. Device keys and readings
// reference hospitals without cascades, so the foreign keys refuse the
// delete while dependents remain — that error surfaces as-is.
func (r *SQLiteRepository) DeleteHospital(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM hospitals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting hospital %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrHospitalNotFound
	}
	return nil
}

// queryHospitals executes a query and returns a slice of Hospital.
func (r *SQLiteRepository) queryHospitals(ctx context.Context, query string, args ...any) ([]Hospital, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hospitals: %w", err)
	}
	defer rows.Close()

	var hospitals []Hospital
	for rows.Next() {
		var h Hospital
		var address sql.NullString
		var createdAt string
		if err := rows.Scan(&h.ID, &h.Name, &h.Code, &h.RegionID, &address, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning hospital row: %w", err)
		}
		if address.Valid {
			h.Address = address.String
		}
		h.CreatedAt = parseTime(createdAt)
		hospitals = append(hospitals, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hospital rows: %w", err)
	}

	if hospitals == nil {
		hospitals = []Hospital{}
	}
	return hospitals, nil
}

// nullStr converts an optional string to sql.NullString for nullable columns.
func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
