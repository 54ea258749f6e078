package domain

import "strings"

// Role enumerates helpdesk roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleStaff      Role = "staff"
)

// ParseRole normalizes a role string from the wire. Unknown or empty values
// fall back to staff, the least privileged role.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleTechnician:
		return RoleTechnician
	default:
		return RoleStaff
	}
}

// CanManageTickets reports whether the role may alter ticket state at all.
func (r Role) CanManageTickets() bool {
	return r == RoleAdmin || r == RoleTechnician
}

// User is the authenticated identity record.
type User struct {
	ID       int64
	Username string
	FullName string
	Email    string
	Role     Role
	Branch   EntityRef
	IsActive bool
}
