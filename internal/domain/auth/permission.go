package auth

// Rank returns the position of r in the role hierarchy: user=1, admin=2.
// Anything else, including RoleNone and unrecognized strings, ranks 0.
func Rank(r Role) int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}

// CanAccess reports whether a caller holding actual may see content requiring required.
// Anonymous callers (RoleNone) may only see lowest-tier content.
func CanAccess(required, actual Role) bool {
	if actual == RoleNone {
		return required == RoleUser
	}
	rank := Rank(actual)
	return rank > 0 && rank >= Rank(required)
}

// IsAdmin is an exact match against the highest rank.
func IsAdmin(r Role) bool { return r == RoleAdmin }
