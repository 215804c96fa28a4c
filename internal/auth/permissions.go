package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermDeviceRead      Permission = "device:read"
	PermDeviceWrite     Permission = "device:write"
	PermDeviceAssign    Permission = "device:assign"
	PermDeviceReport    Permission = "device:report"
	PermSchoolRead      Permission = "school:read"
	PermSchoolManage    Permission = "school:manage"
	PermRuleRun         Permission = "rule:run"
	PermRuleManage      Permission = "rule:manage"
	PermAuditRead       Permission = "audit:read"
	PermUserManage      Permission = "user:manage"
	PermSystemAdmin     Permission = "system:admin"
	PermSystemDangerous Permission = "system:dangerous"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleSchoolOwner: {
		PermDeviceRead,   // school-scoped: only devices assigned to owned schools
		PermDeviceReport, // heartbeats and maintenance reports for own devices
		PermSchoolRead,
	},
	RoleCoordinator: {
		PermDeviceRead,
		PermDeviceWrite,
		PermDeviceAssign,
		PermDeviceReport,
		PermSchoolRead,
		PermSchoolManage,
		PermRuleRun,
		PermAuditRead,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceWrite,
		PermDeviceAssign,
		PermDeviceReport,
		PermSchoolRead,
		PermSchoolManage,
		PermRuleRun,
		PermRuleManage,
		PermAuditRead,
		PermUserManage,
		PermSystemAdmin,
		PermSystemDangerous,
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
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// IsSchoolScoped returns true if the role's permissions are subject to
// school scoping. Only school owners are scoped; coordinators and admins
// see the whole fleet.
func IsSchoolScoped(role Role) bool {
	return role == RoleSchoolOwner
}
