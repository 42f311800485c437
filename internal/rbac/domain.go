package rbac

import "strings"

// Role is the account tier stored on every account.
type Role string

// Known roles, lowest tier first.
const (
	RoleFree         Role = "free"
	RoleSubscriber   Role = "subscriber"
	RoleCollegeAdmin Role = "college_admin"
	RoleSuperAdmin   Role = "super_admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleFree, RoleSubscriber, RoleCollegeAdmin, RoleSuperAdmin}

// ParseRole normalises raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleFree, RoleSubscriber, RoleCollegeAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r is one of the admin tiers.
func (r Role) IsAdmin() bool {
	return r == RoleCollegeAdmin || r == RoleSuperAdmin
}

// Principal describes the authenticated actor of a request. The zero value
// is the anonymous caller.
type Principal struct {
	AccountID int64
	Role      Role
}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{}

// Authenticated reports whether the principal came from a verified token.
func (p Principal) Authenticated() bool {
	return p.AccountID > 0
}

// Subject is implemented by records that are themselves accounts.
type Subject interface {
	SubjectID() int64
}

// Owned is implemented by records that belong to an account.
type Owned interface {
	OwnerID() int64
}
