package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermTelemetryRead   Permission = "telemetry:read"
	PermSensorOverview  Permission = "sensor:overview"
	PermUserManage      Permission = "user:manage"
	PermOrgRead         Permission = "org:read"
	PermOrgManage       Permission = "org:manage"
	PermKeyManage       Permission = "key:manage"
	PermWhitelistManage Permission = "whitelist:manage"
	PermAuditRead       Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
// Scope narrowing (region/hospital) is applied on top via Scope.
var rolePermissions = map[Role][]Permission{
	// Pending users can see their own profile only; that needs no
	// permission, just a valid session.
	RolePending: {},
	RoleHospitalUser: {
		PermTelemetryRead,
	},
	// Region admins read and assign users within their own region; the
	// handlers narrow every operation to scope. They never touch regions,
	// hospitals, device keys, or the whitelist.
	RoleRegionAdmin: {
		PermTelemetryRead,
		PermSensorOverview,
		PermUserManage,
		PermOrgRead,
	},
	RoleAdmin: {
		PermTelemetryRead,
		PermSensorOverview,
		PermUserManage,
		PermOrgRead,
		PermOrgManage,
		PermKeyManage,
		PermWhitelistManage,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
