package authz

// Grant is a role held by a subject at a specific scope instance. Platform
// grants carry a zero ScopeID since the platform is a singleton scope.
type Grant struct {
	SubjectID int64
	Scope     ScopeType
	ScopeID   int64
	Role      Role
}
