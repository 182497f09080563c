package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/domain/role"
	"github.com/dragonsvault/server/internal/engine"
	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/infra/storage"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

// Options tunes the manager.
type Options struct {
	Engine           engine.Config
	SnapshotInterval time.Duration // 0 disables the backup loop
}

// Forgetter drops per-user state held outside the engine, such as the
// tutor's conversation.
type Forgetter interface {
	Forget(userID string)
}

// Deps are the manager's collaborators. Snapshots and Recapper are optional.
type Deps struct {
	Store     storage.BalanceStore
	Snapshots storage.SnapshotRepository
	Recapper  *storage.Recapper
	EventLog  *events.EventLog
	Logger    *logger.Logger
	Metrics   *metrics.Collector
	Forget    Forgetter
}

// Manager tracks live sessions by token and by user. One user has at most
// one session; signing in again replaces it.
type Manager struct {
	opts Options
	deps Deps

	// ctx bounds every engine's clocks.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	byToken map[string]*Session
	byUser  map[string]*Session
	closed  bool
	now     func() time.Time
}

// NewManager creates a manager. Store is required.
func NewManager(opts Options, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Get()
	}
	if deps.EventLog == nil {
		deps.EventLog = events.NewEventLog(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:    opts,
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		byToken: make(map[string]*Session),
		byUser:  make(map[string]*Session),
		now:     time.Now,
	}
}

// EventLog returns the log every engine appends to.
func (m *Manager) EventLog() *events.EventLog {
	return m.deps.EventLog
}

// SignIn creates a session for userID with its engine restored and running.
// The balance document is ensured first; a store failure aborts sign-in and
// leaves any existing session alone. An existing session is stopped and saved
// before the new one is seeded, so its pet carries over.
func (m *Manager) SignIn(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, vaulterr.New(vaulterr.CodeValidation, "user id is required")
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, vaulterr.New(vaulterr.CodeUnauthenticated, "server is shutting down")
	}

	eng := engine.NewEngine(userID, m.opts.Engine, engine.Deps{
		Store:    m.deps.Store,
		EventLog: m.deps.EventLog,
		Logger:   m.deps.Logger,
		Metrics:  m.deps.Metrics,
	})
	if err := eng.Restore(ctx); err != nil {
		return nil, err
	}

	if old := m.detach(userID); old != nil {
		m.retire(ctx, old)
		st := old.Engine.PetStats()
		eng.RestorePet(st.Hunger, st.Happiness, st.Experience)
	} else {
		m.restorePet(ctx, eng)
	}

	s := newSession(uuid.NewString(), userID, eng, m.now())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		eng.Stop()
		return nil, vaulterr.New(vaulterr.CodeUnauthenticated, "server is shutting down")
	}
	// A concurrent sign-in for the same user may have landed in between.
	raced := m.byUser[userID]
	if raced != nil {
		delete(m.byToken, raced.Token)
	}
	m.byUser[userID] = s
	m.byToken[s.Token] = s
	m.mu.Unlock()

	if raced != nil {
		m.retire(ctx, raced)
	}

	eng.Start(m.ctx)
	m.deps.Metrics.RecordSession(1)
	m.emit(events.EventTypeSignedIn, s)
	m.deps.Logger.Info("signed in", zap.String("user", userID))
	return s, nil
}

// detach removes the user's live session from both indexes and returns it.
func (m *Manager) detach(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.byUser[userID]
	if old != nil {
		delete(m.byUser, userID)
		delete(m.byToken, old.Token)
	}
	return old
}

// retire ends a session replaced by a new sign-in.
func (m *Manager) retire(ctx context.Context, old *Session) {
	old.signOut()
	m.save(ctx, old)
	m.deps.Metrics.RecordSession(-1)
	m.deps.Logger.Info("replaced existing session", zap.String("user", old.UserID))
}

// restorePet seeds the gauges from the last snapshot, else from the event
// history, else leaves the configured initial values.
func (m *Manager) restorePet(ctx context.Context, eng *engine.Engine) {
	if m.deps.Snapshots != nil {
		snap, err := m.deps.Snapshots.GetByUserID(ctx, eng.UserID())
		if err != nil {
			m.deps.Logger.Warn("failed to load pet snapshot", zap.String("user", eng.UserID()), zap.Error(err))
		} else if snap != nil {
			eng.RestorePet(snap.Hunger, snap.Happiness, snap.Experience)
			return
		}
	}
	if m.deps.Recapper != nil {
		snap, ok, err := m.deps.Recapper.RebuildPet(ctx, eng.UserID())
		if err != nil {
			m.deps.Logger.Warn("failed to rebuild pet from history", zap.String("user", eng.UserID()), zap.Error(err))
			return
		}
		if ok {
			eng.RestorePet(snap.Hunger, snap.Happiness, snap.Experience)
		}
	}
}

// Get returns the live session for token.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byToken[token]
	if !ok {
		return nil, vaulterr.ErrUnauthenticated
	}
	return s, nil
}

// ChooseRole picks kid or parent for the session.
func (m *Manager) ChooseRole(token string, r role.Role) (*Session, error) {
	s, err := m.Get(token)
	if err != nil {
		return nil, err
	}
	if err := s.chooseRole(r); err != nil {
		return nil, err
	}
	m.emit(events.EventTypeRoleChanged, s)
	return s, nil
}

// ClearRole sends the session back to role selection.
func (m *Manager) ClearRole(token string) (*Session, error) {
	s, err := m.Get(token)
	if err != nil {
		return nil, err
	}
	s.clearRole()
	m.emit(events.EventTypeRoleChanged, s)
	return s, nil
}

// SignOut stops the engine, saves the pet and destroys the session.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	m.mu.Lock()
	s, ok := m.byToken[token]
	if ok {
		delete(m.byToken, token)
		if m.byUser[s.UserID] == s {
			delete(m.byUser, s.UserID)
		}
	}
	m.mu.Unlock()
	if !ok {
		return vaulterr.ErrUnauthenticated
	}

	s.signOut()
	m.save(ctx, s)
	if m.deps.Forget != nil {
		m.deps.Forget.Forget(s.UserID)
	}
	m.deps.Metrics.RecordSession(-1)
	m.emit(events.EventTypeSignedOut, s)
	m.deps.Logger.Info("signed out", zap.String("user", s.UserID))
	return nil
}

// Sessions returns the live sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byToken))
	for _, s := range m.byToken {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken)
}

// Run upserts every live session's pet gauges each SnapshotInterval until
// ctx is done. It returns nil on cancellation.
func (m *Manager) Run(ctx context.Context) error {
	if m.opts.SnapshotInterval <= 0 || m.deps.Snapshots == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.opts.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.BackupAll(ctx)
		}
	}
}

// BackupAll snapshots every live session now.
func (m *Manager) BackupAll(ctx context.Context) {
	for _, s := range m.Sessions() {
		m.backup(ctx, s)
	}
}

// backup snapshots a live session. Stopped sessions were saved when they
// stopped.
func (m *Manager) backup(ctx context.Context, s *Session) {
	if s.Engine.Closed() {
		return
	}
	m.save(ctx, s)
}

// save upserts the session's current gauges.
func (m *Manager) save(ctx context.Context, s *Session) {
	if m.deps.Snapshots == nil {
		return
	}
	st := s.Engine.PetStats()
	err := m.deps.Snapshots.Upsert(ctx, storage.PetSnapshot{
		UserID:      s.UserID,
		Hunger:      st.Hunger,
		Happiness:   st.Happiness,
		Experience:  st.Experience,
		LastUpdated: m.now(),
	})
	if err != nil {
		m.deps.Logger.Warn("pet snapshot failed", zap.String("user", s.UserID), zap.Error(err))
	}
}

// Close snapshots and stops every session. Later sign-ins are refused.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	live := make([]*Session, 0, len(m.byToken))
	for _, s := range m.byToken {
		live = append(live, s)
	}
	m.byToken = make(map[string]*Session)
	m.byUser = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range live {
		s.signOut()
		m.save(ctx, s)
		m.deps.Metrics.RecordSession(-1)
	}
	m.cancel()
	m.deps.Logger.Info("session manager closed", zap.Int("sessions", len(live)))
}

func (m *Manager) emit(typ events.EventType, s *Session) {
	m.deps.EventLog.Append(events.Event{
		Type:   typ,
		UserID: s.UserID,
		Payload: events.RolePayload{
			State: string(s.State()),
			Role:  string(s.Role()),
		},
	})
}
