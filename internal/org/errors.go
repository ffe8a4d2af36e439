package org

import "errors"

var (
	// ErrRegionNotFound is returned when a region ID does not exist.
	ErrRegionNotFound = errors.New("region not found")

	// ErrHospitalNotFound is returned when a hospital ID does not exist.
	ErrHospitalNotFound = errors.New("hospital not found")

	// ErrRegionHasHospitals is returned when trying to delete a region that still has hospitals.
	ErrRegionHasHospitals = errors.New("region has hospitals: delete or move hospitals first")

	// ErrRegionExists is returned when a region name or code is already taken.
	ErrRegionExists = errors.New("region name or code already exists")

	// ErrHospitalExists is returned when a hospital name or code is already taken.
	ErrHospitalExists = errors.New("hospital name or code already exists")

	// ErrInvalidName is returned when a name fails validation.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidCode is returned when a short code fails validation.
	ErrInvalidCode = errors.New("invalid code")
)
