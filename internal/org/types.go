package org

import "time"

// Region is a top-level administrative grouping of hospitals.
type Region struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Hospital is a single facility inside a region. Sensors, device keys,
// and hospital_user accounts are all bound to exactly one hospital.
type Hospital struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	RegionID  string    `json:"region_id"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
