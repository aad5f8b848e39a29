// Package domain defines shared domain constants and types.
package domain

const (
	// RoleAdmin represents operators allowed to manage the whitelist.
	RoleAdmin = "admin"
	// RoleUser represents a standard Mini App user.
	RoleUser = "user"
)

// Role priorities used when comparing privileges.
const (
	RolePriorityUser  = 1
	RolePriorityAdmin = 2
)

// RolePriority returns the privilege rank of role, or 0 for unknown roles.
func RolePriority(role string) int {
	switch role {
	case RoleAdmin:
		return RolePriorityAdmin
	case RoleUser:
		return RolePriorityUser
	default:
		return 0
	}
}
