package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCapabilityRankOrdering(t *testing.T) {
	tests := []struct {
		name    string
		held    Role
		minRole Role
		want    bool
	}{
		{"viewer satisfies viewer", RoleViewer, RoleViewer, true},
		{"viewer denied editor", RoleViewer, RoleEditor, false},
		{"viewer denied admin", RoleViewer, RoleAdmin, false},
		{"editor satisfies viewer", RoleEditor, RoleViewer, true},
		{"editor satisfies editor", RoleEditor, RoleEditor, true},
		{"editor denied admin", RoleEditor, RoleAdmin, false},
		{"admin satisfies viewer", RoleAdmin, RoleViewer, true},
		{"admin satisfies admin", RoleAdmin, RoleAdmin, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			grants := []Grant{{SubjectID: 1, Scope: ScopeWorkspace, ScopeID: 10, Role: tc.held}}
			assert.Equal(t, tc.want, HasCapability(grants, tc.minRole, ScopeWorkspace))
		})
	}
}

func TestHasCapabilityEmptyGrantsDeny(t *testing.T) {
	assert.False(t, HasCapability(nil, RoleViewer, ScopeWorkspace))
	assert.False(t, HasCapability([]Grant{}, RoleViewer, ScopeClient))
	assert.False(t, HasCapability(nil, RolePlatformUser, ScopePlatform))
}

func TestHasCapabilityPlatformAdminOverride(t *testing.T) {
	grants := []Grant{{SubjectID: 1, Scope: ScopePlatform, Role: RolePlatformAdmin}}

	for _, scope := range []ScopeType{ScopeWorkspace, ScopeClient, ScopeLocation} {
		assert.True(t, HasCapability(grants, RoleAdmin, scope), "platform admin must satisfy admin at %s", scope)
	}
	assert.True(t, HasCapability(grants, RolePlatformAdmin, ScopePlatform))
}

func TestHasCapabilityPlatformUserDoesNotOverride(t *testing.T) {
	grants := []Grant{{SubjectID: 1, Scope: ScopePlatform, Role: RolePlatformUser}}

	assert.True(t, HasCapability(grants, RolePlatformUser, ScopePlatform))
	assert.False(t, HasCapability(grants, RolePlatformAdmin, ScopePlatform))
	assert.False(t, HasCapability(grants, RoleViewer, ScopeWorkspace))
}

func TestHasCapabilityIgnoresOtherScopes(t *testing.T) {
	grants := []Grant{
		{SubjectID: 1, Scope: ScopeWorkspace, ScopeID: 10, Role: RoleAdmin},
	}
	// An admin grant at workspace scope says nothing about client scope.
	assert.False(t, HasCapability(grants, RoleViewer, ScopeClient))
	assert.False(t, HasCapability(grants, RoleViewer, ScopeLocation))
}

func TestHasCapabilityUnknownRolesRankZero(t *testing.T) {
	grants := []Grant{{SubjectID: 1, Scope: ScopeWorkspace, ScopeID: 10, Role: Role("superuser")}}
	assert.False(t, HasCapability(grants, RoleViewer, ScopeWorkspace))

	// A scoped role presented at platform scope ranks zero as well.
	grants = []Grant{{SubjectID: 1, Scope: ScopePlatform, Role: RoleAdmin}}
	assert.False(t, HasCapability(grants, RolePlatformUser, ScopePlatform))
}

func TestHighestRole(t *testing.T) {
	grants := []Grant{
		{SubjectID: 1, Scope: ScopeWorkspace, ScopeID: 10, Role: RoleViewer},
		{SubjectID: 1, Scope: ScopeWorkspace, ScopeID: 10, Role: RoleEditor},
		{SubjectID: 1, Scope: ScopeClient, ScopeID: 20, Role: RoleAdmin},
	}

	role, ok := HighestRole(ScopeWorkspace, grants)
	require.True(t, ok)
	assert.Equal(t, RoleEditor, role)

	role, ok = HighestRole(ScopeClient, grants)
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = HighestRole(ScopeLocation, grants)
	assert.False(t, ok)
}

func TestHighestRolePlatformAdminMapsToAdmin(t *testing.T) {
	grants := []Grant{{SubjectID: 1, Scope: ScopePlatform, Role: RolePlatformAdmin}}

	role, ok := HighestRole(ScopeWorkspace, grants)
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	role, ok = HighestRole(ScopePlatform, grants)
	require.True(t, ok)
	assert.Equal(t, RolePlatformAdmin, role)
}

func TestCanAccessScope(t *testing.T) {
	grants := []Grant{{SubjectID: 1, Scope: ScopeClient, ScopeID: 7, Role: RoleViewer}}

	assert.True(t, CanAccessScope(ScopeClient, grants))
	assert.False(t, CanAccessScope(ScopeWorkspace, grants))
	assert.False(t, CanAccessScope(ScopeClient, nil))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(ScopeWorkspace, RoleViewer))
	assert.True(t, ValidRole(ScopePlatform, RolePlatformAdmin))
	assert.False(t, ValidRole(ScopePlatform, RoleAdmin))
	assert.False(t, ValidRole(ScopeClient, RolePlatformUser))
	assert.False(t, ValidRole(ScopeClient, Role("owner")))
}

func TestValidScope(t *testing.T) {
	assert.True(t, ValidScope(ScopeWorkspace))
	assert.True(t, ValidScope(ScopePlatform))
	assert.False(t, ValidScope(ScopeType("region")))
}
