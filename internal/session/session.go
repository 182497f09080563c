// Package session owns signed-in users. A Session pairs the role gate with
// the user's engine; the Manager creates, finds and tears them down, and
// backs pet gauges up to the snapshot repository.
package session

import (
	"sync"
	"time"

	"github.com/dragonsvault/server/internal/domain/role"
	"github.com/dragonsvault/server/internal/engine"
)

// Session is one signed-in device. The role is never persisted.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	Engine    *engine.Engine

	mu   sync.Mutex
	gate *role.Gate
}

func newSession(token, userID string, eng *engine.Engine, now time.Time) *Session {
	g := role.NewGate()
	g.SignIn()
	return &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		Engine:    eng,
		gate:      g,
	}
}

// State returns the gate position.
func (s *Session) State() role.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.State()
}

// Role returns the chosen role, or role.RoleNone.
func (s *Session) Role() role.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.Role()
}

// Authorize checks an action against the current role.
func (s *Session) Authorize(a role.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.Authorize(a)
}

// Destination returns where a client at loc must be redirected, or "".
func (s *Session) Destination(loc role.Location) string {
	return role.Destination(s.State(), loc)
}

func (s *Session) chooseRole(r role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.ChooseRole(r)
}

func (s *Session) clearRole() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate.ClearRole()
}

func (s *Session) signOut() {
	s.mu.Lock()
	s.gate.SignOut()
	s.mu.Unlock()
	s.Engine.Stop()
}
