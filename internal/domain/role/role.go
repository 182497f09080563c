// Package role implements the sign-in and role selection gate. Role lives
// only as long as the session: every fresh sign-in asks again.
package role

import (
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// Role is who is holding the device.
type Role string

const (
	RoleNone   Role = ""
	RoleKid    Role = "kid"
	RoleParent Role = "parent"
)

// ParseRole validates a role chosen by the client.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleKid, RoleParent:
		return Role(s), nil
	}
	return RoleNone, vaulterr.New(vaulterr.CodeValidation, "role must be kid or parent")
}

// State is the gate position.
type State string

const (
	StateUnauthenticated     State = "UNAUTHENTICATED"
	StateAuthenticatedNoRole State = "AUTHENTICATED_NO_ROLE"
	StateAuthenticatedKid    State = "AUTHENTICATED_KID"
	StateAuthenticatedParent State = "AUTHENTICATED_PARENT"
)

// validTransitions lists the gate edges other than sign-out, which is legal
// from every state.
var validTransitions = map[State]map[State]bool{
	StateUnauthenticated:     {StateAuthenticatedNoRole: true},
	StateAuthenticatedNoRole: {StateAuthenticatedKid: true, StateAuthenticatedParent: true},
	StateAuthenticatedKid:    {StateAuthenticatedNoRole: true},
	StateAuthenticatedParent: {StateAuthenticatedNoRole: true},
}

// IsValidTransition checks if a gate transition is legal.
func IsValidTransition(from, to State) bool {
	if to == StateUnauthenticated {
		return true
	}
	return validTransitions[from][to]
}

// Gate holds one session's position. Not safe for concurrent use.
type Gate struct {
	state State
}

// NewGate starts signed out.
func NewGate() *Gate {
	return &Gate{state: StateUnauthenticated}
}

// State returns the current position.
func (g *Gate) State() State {
	return g.state
}

// Role returns the chosen role, or RoleNone.
func (g *Gate) Role() Role {
	switch g.state {
	case StateAuthenticatedKid:
		return RoleKid
	case StateAuthenticatedParent:
		return RoleParent
	}
	return RoleNone
}

// Authenticated reports whether a user is signed in.
func (g *Gate) Authenticated() bool {
	return g.state != StateUnauthenticated
}

// SignIn moves to AuthenticatedNoRole. A sign-in from any authenticated
// state also clears the role.
func (g *Gate) SignIn() {
	g.state = StateAuthenticatedNoRole
}

// ChooseRole picks kid or parent. Only legal right after sign-in.
func (g *Gate) ChooseRole(r Role) error {
	var to State
	switch r {
	case RoleKid:
		to = StateAuthenticatedKid
	case RoleParent:
		to = StateAuthenticatedParent
	default:
		return vaulterr.New(vaulterr.CodeValidation, "role must be kid or parent")
	}
	if !IsValidTransition(g.state, to) {
		return vaulterr.New(vaulterr.CodeInvalidTransition,
			"cannot choose a role from "+string(g.state))
	}
	g.state = to
	return nil
}

// ClearRole returns to role selection without signing out.
func (g *Gate) ClearRole() {
	if g.Authenticated() {
		g.state = StateAuthenticatedNoRole
	}
}

// SignOut returns to Unauthenticated from anywhere.
func (g *Gate) SignOut() {
	g.state = StateUnauthenticated
}

// Client routes the gate redirects to.
const (
	RouteLogin      = "/auth/login"
	RouteChooseRole = "/auth/choose-role"
	RouteDashboard  = "/(parent)/dashboard"
	RouteKidTabs    = "/(tabs)"
)

// Location describes where the client currently is.
type Location struct {
	AtAuth       bool // Under /auth
	AtChooseRole bool // At /auth/choose-role
}

// Destination returns the route the client must be sent to, or "" to stay.
func Destination(s State, loc Location) string {
	switch {
	case s == StateUnauthenticated && !loc.AtAuth:
		return RouteLogin
	case s == StateAuthenticatedNoRole && !loc.AtChooseRole:
		return RouteChooseRole
	case s == StateAuthenticatedParent && loc.AtAuth:
		return RouteDashboard
	case s == StateAuthenticatedKid && loc.AtAuth:
		return RouteKidTabs
	}
	return ""
}

// Action is a capability checked against the role.
type Action string

const (
	ActionFeed         Action = "FEED"
	ActionPlay         Action = "PLAY"
	ActionAskTutor     Action = "ASK_TUTOR"
	ActionAddTask      Action = "ADD_TASK"
	ActionRemoveTask   Action = "REMOVE_TASK"
	ActionCompleteTask Action = "COMPLETE_TASK"
	ActionView         Action = "VIEW"
)

var permissions = map[Role]map[Action]bool{
	RoleKid: {
		ActionFeed: true, ActionPlay: true, ActionAskTutor: true,
		ActionCompleteTask: true, ActionView: true,
	},
	RoleParent: {
		ActionAddTask: true, ActionRemoveTask: true,
		ActionCompleteTask: true, ActionView: true,
	},
}

// Allowed reports whether the role may perform the action.
func Allowed(r Role, a Action) bool {
	return permissions[r][a]
}

// Authorize returns FORBIDDEN or UNAUTHENTICATED when the gate's role may
// not perform the action.
func (g *Gate) Authorize(a Action) error {
	if !g.Authenticated() {
		return vaulterr.ErrUnauthenticated
	}
	if !Allowed(g.Role(), a) {
		return vaulterr.New(vaulterr.CodeForbidden, string(a)+" is not allowed for role "+string(g.Role()))
	}
	return nil
}
