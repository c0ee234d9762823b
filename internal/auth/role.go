package auth

import "strings"

// Role is an API role. Roles are ordered: admin > operator > viewer.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// NormalizeRole parses a role name.
func NormalizeRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleViewer:
		return RoleViewer, true
	case RoleOperator:
		return RoleOperator, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Allows reports whether r grants at least required.
func (r Role) Allows(required Role) bool {
	return rank(r) >= rank(required) && rank(required) > 0
}

func rank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleOperator:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}
