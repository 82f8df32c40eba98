package authz

// Evaluation is pure: no I/O, no mutation of the grant slice. The caller
// supplies the grants it resolved for one subject at one scope instance,
// typically including the subject's platform grants so the universal
// platform-admin override can apply.

// HasCapability reports whether the grant set satisfies minRole at scope.
// A platform-admin grant satisfies any requirement regardless of scope; an
// empty grant set always denies.
func HasCapability(grants []Grant, minRole Role, scope ScopeType) bool {
	required := rankFor(scope, minRole)
	if required == 0 {
		return false
	}
	for _, g := range grants {
		if g.Role == RolePlatformAdmin {
			return true
		}
		if g.Scope != scope {
			continue
		}
		if rankFor(scope, g.Role) >= required {
			return true
		}
	}
	return false
}

// HighestRole returns the maximum rank held at scope. A platform-admin grant
// yields RoleAdmin unconditionally for non-platform scopes. The second return
// is false when the subject holds no grant at that scope.
//
// Duplicate grants at one scope should not occur (the data layer enforces
// uniqueness) but the evaluator takes the maximum rather than erroring.
func HighestRole(scope ScopeType, grants []Grant) (Role, bool) {
	var best Role
	bestRank := 0
	for _, g := range grants {
		if g.Role == RolePlatformAdmin && scope != ScopePlatform {
			return RoleAdmin, true
		}
		if g.Scope != scope {
			continue
		}
		if r := rankFor(scope, g.Role); r > bestRank {
			best, bestRank = g.Role, r
		}
	}
	if bestRank == 0 {
		return "", false
	}
	return best, true
}

// CanAccessScope reports whether the subject holds any grant at scope.
func CanAccessScope(scope ScopeType, grants []Grant) bool {
	_, ok := HighestRole(scope, grants)
	return ok
}
