package auth

// Scope is the resolved data visibility of a request principal. It is
// built from token claims, so a role change narrows or widens access on
// the next refresh, not retroactively.
type Scope struct {
	Role       Role
	RegionID   string
	HospitalID string
}

// ScopeForUser builds a Scope from a user record.
func ScopeForUser(u *User) Scope {
	return Scope{Role: u.Role, RegionID: u.RegionID, HospitalID: u.HospitalID}
}

// ScopeForClaims builds a Scope from parsed token claims.
func ScopeForClaims(c *CustomClaims) Scope {
	return Scope{Role: c.Role, RegionID: c.RegionID, HospitalID: c.HospitalID}
}

// Unrestricted reports whether the scope bypasses region/hospital
// narrowing entirely.
func (s Scope) Unrestricted() bool {
	return s.Role == RoleAdmin
}

// CanAccessHospital reports whether the scope admits data belonging to
// the given hospital. hospitalRegionID is the region the hospital sits
// in (from the org layer); hospitalID is the hospital itself.
//
//   - admin: every hospital
//   - region_admin: hospitals whose region matches the assigned region
//   - hospital_user: only the assigned hospital
//   - pending (and anything unknown): nothing
func (s Scope) CanAccessHospital(hospitalRegionID, hospitalID string) bool {
	switch s.Role {
	case RoleAdmin:
		return true
	case RoleRegionAdmin:
		return s.RegionID != "" && s.RegionID == hospitalRegionID
	case RoleHospitalUser:
		return s.HospitalID != "" && s.HospitalID == hospitalID
	default:
		return false
	}
}
