package rbac

// Predicate answers a permission question about a principal.
type Predicate func(Principal) bool

// IsAuthenticated holds for any verified principal.
func IsAuthenticated(p Principal) bool {
	return p.Authenticated()
}

// IsSuperAdmin holds for super admins only.
func IsSuperAdmin(p Principal) bool {
	return p.Authenticated() && p.Role == RoleSuperAdmin
}

// IsCollegeAdmin holds for college admins and super admins.
func IsCollegeAdmin(p Principal) bool {
	return p.Authenticated() && p.Role.IsAdmin()
}

// IsSubscriber holds for subscribers and both admin tiers.
func IsSubscriber(p Principal) bool {
	if !p.Authenticated() {
		return false
	}
	return p.Role == RoleSubscriber || p.Role.IsAdmin()
}

// IsOwnerOrAdmin holds for admins, for the account obj itself, and for the
// owner of obj. obj may implement Subject, Owned, both or neither.
func IsOwnerOrAdmin(p Principal, obj any) bool {
	if !p.Authenticated() {
		return false
	}
	if p.Role.IsAdmin() {
		return true
	}
	if s, ok := obj.(Subject); ok && s.SubjectID() == p.AccountID {
		return true
	}
	if o, ok := obj.(Owned); ok && o.OwnerID() == p.AccountID {
		return true
	}
	return false
}
