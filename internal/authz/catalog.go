// Package authz implements the hierarchical permission model: grants held by
// subjects at platform, workspace, client or location scope, a pure evaluator
// over those grants, and the HTTP middleware that enforces them.
package authz

// ScopeType identifies a level in the tenancy hierarchy. Workspaces contain
// clients, clients contain locations; the platform scope sits above all three.
type ScopeType string

const (
	ScopePlatform  ScopeType = "platform"
	ScopeWorkspace ScopeType = "workspace"
	ScopeClient    ScopeType = "client"
	ScopeLocation  ScopeType = "location"
)

// Role is a ranked capability level held at a scope.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"

	// Platform-only roles. RolePlatformAdmin implies admin at every scope.
	RolePlatformUser  Role = "platform_user"
	RolePlatformAdmin Role = "platform_admin"
)

// Rank tables. Roles from different scope families never compare against
// each other; unknown roles rank zero and therefore satisfy nothing.
var scopedRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

var platformRank = map[Role]int{
	RolePlatformUser:  1,
	RolePlatformAdmin: 2,
}

// rankFor returns the rank of role within the rank family of scope.
func rankFor(scope ScopeType, role Role) int {
	if scope == ScopePlatform {
		return platformRank[role]
	}
	return scopedRank[role]
}

// ValidRole reports whether role belongs to the rank family of scope.
func ValidRole(scope ScopeType, role Role) bool {
	return rankFor(scope, role) > 0
}

// ValidScope reports whether s names a known scope type.
func ValidScope(s ScopeType) bool {
	switch s {
	case ScopePlatform, ScopeWorkspace, ScopeClient, ScopeLocation:
		return true
	}
	return false
}
