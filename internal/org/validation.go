package org

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength = 100
	maxCodeLength = 16
	codePattern   = `^[A-Z0-9]+(?:-[A-Z0-9]+)*$`
)

var codeRegex = regexp.MustCompile(codePattern)

// ValidateName checks that a region or hospital name is usable.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateCode checks a short code: uppercase alphanumeric with hyphens,
// the form that ends up on wristbands and sensor labels.
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: code cannot be empty", ErrInvalidCode)
	}
	if len(code) > maxCodeLength {
		return fmt.Errorf("%w: code exceeds %d characters", ErrInvalidCode, maxCodeLength)
	}
	if !codeRegex.MatchString(code) {
		return fmt.Errorf("%w: code must be uppercase alphanumeric with hyphens", ErrInvalidCode)
	}
	return nil
}

// ValidateRegion validates a Region before persistence.
func ValidateRegion(r *Region) error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	return ValidateCode(r.Code)
}

// ValidateHospital validates a Hospital before persistence.
func ValidateHospital(h *Hospital) error {
	if err := ValidateName(h.Name); err != nil {
		return err
	}
	return ValidateCode(h.Code)
}
