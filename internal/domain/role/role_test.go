package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

func TestGateLifecycle(t *testing.T) {
	g := NewGate()
	assert.Equal(t, StateUnauthenticated, g.State())

	g.SignIn()
	assert.Equal(t, StateAuthenticatedNoRole, g.State())
	assert.Equal(t, RoleNone, g.Role())

	require.NoError(t, g.ChooseRole(RoleKid))
	assert.Equal(t, StateAuthenticatedKid, g.State())
	assert.Equal(t, RoleKid, g.Role())

	g.SignOut()
	assert.Equal(t, StateUnauthenticated, g.State())
	assert.Equal(t, RoleNone, g.Role())
}

func TestFreshSignInAsksRoleAgain(t *testing.T) {
	g := NewGate()
	g.SignIn()
	require.NoError(t, g.ChooseRole(RoleParent))

	g.SignOut()
	g.SignIn()
	assert.Equal(t, StateAuthenticatedNoRole, g.State())

	g.SignIn()
	require.NoError(t, g.ChooseRole(RoleParent))
	g.SignIn()
	assert.Equal(t, RoleNone, g.Role(), "re-authentication clears the role")
}

func TestChooseRoleRejectsBadTransitions(t *testing.T) {
	g := NewGate()
	err := g.ChooseRole(RoleKid)
	assert.ErrorIs(t, err, vaulterr.ErrInvalidTransition)

	g.SignIn()
	require.NoError(t, g.ChooseRole(RoleKid))
	err = g.ChooseRole(RoleParent)
	assert.ErrorIs(t, err, vaulterr.ErrInvalidTransition)

	g.ClearRole()
	require.NoError(t, g.ChooseRole(RoleParent))

	err = g.ChooseRole(RoleNone)
	assert.ErrorIs(t, err, vaulterr.ErrValidation)
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(StateAuthenticatedKid, StateUnauthenticated))
	assert.True(t, IsValidTransition(StateUnauthenticated, StateAuthenticatedNoRole))
	assert.False(t, IsValidTransition(StateUnauthenticated, StateAuthenticatedKid))
	assert.False(t, IsValidTransition(StateAuthenticatedKid, StateAuthenticatedParent))
}

func TestDestination(t *testing.T) {
	cases := []struct {
		name  string
		state State
		loc   Location
		want  string
	}{
		{"signed out on pet screen", StateUnauthenticated, Location{}, RouteLogin},
		{"signed out at login", StateUnauthenticated, Location{AtAuth: true}, ""},
		{"no role on pet screen", StateAuthenticatedNoRole, Location{}, RouteChooseRole},
		{"no role at login", StateAuthenticatedNoRole, Location{AtAuth: true}, RouteChooseRole},
		{"no role at choose-role", StateAuthenticatedNoRole, Location{AtAuth: true, AtChooseRole: true}, ""},
		{"parent at choose-role", StateAuthenticatedParent, Location{AtAuth: true, AtChooseRole: true}, RouteDashboard},
		{"kid at choose-role", StateAuthenticatedKid, Location{AtAuth: true, AtChooseRole: true}, RouteKidTabs},
		{"kid on tabs", StateAuthenticatedKid, Location{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Destination(tc.state, tc.loc))
		})
	}
}

func TestAuthorize(t *testing.T) {
	g := NewGate()
	assert.ErrorIs(t, g.Authorize(ActionView), vaulterr.ErrUnauthenticated)

	g.SignIn()
	assert.ErrorIs(t, g.Authorize(ActionView), vaulterr.ErrForbidden)

	require.NoError(t, g.ChooseRole(RoleKid))
	assert.NoError(t, g.Authorize(ActionFeed))
	assert.NoError(t, g.Authorize(ActionCompleteTask))
	assert.ErrorIs(t, g.Authorize(ActionAddTask), vaulterr.ErrForbidden)

	g.ClearRole()
	require.NoError(t, g.ChooseRole(RoleParent))
	assert.NoError(t, g.Authorize(ActionAddTask))
	assert.ErrorIs(t, g.Authorize(ActionFeed), vaulterr.ErrForbidden)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("kid")
	require.NoError(t, err)
	assert.Equal(t, RoleKid, r)

	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, vaulterr.ErrValidation)
}
