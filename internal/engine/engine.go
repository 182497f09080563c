package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/domain/pet"
	"github.com/dragonsvault/server/internal/domain/rules"
	"github.com/dragonsvault/server/internal/domain/task"
	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/infra/storage"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

// eatingWindow is how long the dragon shows its eating pose after a feed.
const eatingWindow = 2 * time.Second

// Config tunes one engine.
type Config struct {
	InitialHunger    int
	InitialHappiness int

	DecayInterval time.Duration
	Decay         rules.DecayParams

	GrowthInterval time.Duration
	Growth         rules.GrowthParams
}

// DefaultConfig returns the observed behavior: decay 5 every minute, growth
// +3 checked every 10 seconds, both gauges starting empty.
func DefaultConfig() Config {
	return Config{
		DecayInterval:  60 * time.Second,
		Decay:          rules.DefaultDecay,
		GrowthInterval: 10 * time.Second,
		Growth:         rules.DefaultGrowth,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DecayInterval <= 0 {
		c.DecayInterval = d.DecayInterval
	}
	if c.GrowthInterval <= 0 {
		c.GrowthInterval = d.GrowthInterval
	}
	return c
}

// Deps are the collaborators an engine reports to.
type Deps struct {
	Store    storage.BalanceStore
	EventLog *events.EventLog
	Logger   *logger.Logger
	Metrics  *metrics.Collector
}

// Snapshot is a copy of everything a client renders.
type Snapshot struct {
	UserID   string      `json:"user_id"`
	Pet      pet.Stats   `json:"pet"`
	Mood     pet.Mood    `json:"mood"`
	Tasks    []task.Task `json:"tasks"`
	Coins    int64       `json:"coins"`
	CoinText string      `json:"coins_text"`
	Food     int64       `json:"food"`
}

// Engine is the single owner of a user's PetState and TaskLedger.
type Engine struct {
	userID string
	cfg    Config

	store    storage.BalanceStore
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	decayClock  *Clock
	growthClock *Clock

	// payMu serializes payouts so the cached balance follows store order.
	// It is taken before mu, never while holding it.
	payMu sync.Mutex

	mu       sync.Mutex
	pet      *pet.State
	ledger   *task.Ledger
	coins    int64 // last known, cents
	food     int64
	lastFeed time.Time
	closed   bool
	now      func() time.Time
}

// NewEngine creates an engine with fresh gauges. Call Restore to load the
// remote ledger, then Start to run the clocks.
func NewEngine(userID string, cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Get()
	}
	if deps.EventLog == nil {
		deps.EventLog = events.NewEventLog(nil)
	}

	cfg = cfg.withDefaults()

	e := &Engine{
		userID:   userID,
		cfg:      cfg,
		store:    deps.Store,
		eventLog: deps.EventLog,
		logger:   deps.Logger.With(zap.String("user", userID)),
		metrics:  deps.Metrics,
		pet:      pet.NewState(cfg.InitialHunger, cfg.InitialHappiness),
		ledger:   task.NewLedger(),
		now:      time.Now,
	}
	e.decayClock = NewClock("decay", cfg.DecayInterval, e.onDecayTick, e.logger)
	e.growthClock = NewClock("growth", cfg.GrowthInterval, e.onGrowthTick, e.logger)
	return e
}

// UserID returns the owner of this engine.
func (e *Engine) UserID() string {
	return e.userID
}

// Restore ensures the remote document exists and seeds the ledger and
// balance from it.
func (e *Engine) Restore(ctx context.Context) error {
	if err := e.store.Ensure(ctx, e.userID); err != nil {
		e.metrics.RecordRemoteError()
		return err
	}
	b, err := e.store.ReadBalance(ctx, e.userID)
	if err != nil {
		e.metrics.RecordRemoteError()
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Restore(b.Tasks)
	e.coins = b.Coins
	e.food = b.Food
	return nil
}

// RestorePet replaces the gauges with previously saved values.
func (e *Engine) RestorePet(hunger, happiness, experience int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pet = pet.Restore(hunger, happiness, experience)
}

// Start runs the decay and growth clocks until Stop or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.decayClock.Start(ctx)
	e.growthClock.Start(ctx)
	e.logger.Info("engine started")
}

// Stop halts both clocks and marks the engine closed. Late callbacks and
// further actions become no-ops. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	already := e.closed
	e.closed = true
	e.mu.Unlock()

	e.decayClock.Stop()
	e.growthClock.Stop()
	if !already {
		e.logger.Info("engine stopped")
	}
}

// Closed reports whether Stop was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	mood := e.pet.Mood()
	if !e.lastFeed.IsZero() && e.now().Sub(e.lastFeed) < eatingWindow {
		mood = pet.MoodEating
	}
	return Snapshot{
		UserID:   e.userID,
		Pet:      e.pet.Stats(),
		Mood:     mood,
		Tasks:    e.ledger.Items(),
		Coins:    e.coins,
		CoinText: task.FormatCents(e.coins),
		Food:     e.food,
	}
}

// PetStats returns the current gauges.
func (e *Engine) PetStats() pet.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pet.Stats()
}

// Tasks returns a copy of the ledger, newest first.
func (e *Engine) Tasks() []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Items()
}

// RefreshBalance rereads coins and food from the store.
func (e *Engine) RefreshBalance(ctx context.Context) (storage.Balance, error) {
	b, err := e.store.ReadBalance(ctx, e.userID)
	if err != nil {
		e.metrics.RecordRemoteError()
		return storage.Balance{}, err
	}
	e.mu.Lock()
	e.coins, e.food = b.Coins, b.Food
	e.mu.Unlock()
	return b, nil
}

var errClosed = vaulterr.New(vaulterr.CodeNotFound, "session has ended")

func (e *Engine) emit(typ events.EventType, payload interface{}) {
	e.eventLog.Append(events.Event{
		Type:    typ,
		UserID:  e.userID,
		Payload: payload,
	})
}

func (e *Engine) petPayload(cause string, delta int) events.PetPayload {
	s := e.pet.Stats()
	return events.PetPayload{
		Hunger:     s.Hunger,
		Happiness:  s.Happiness,
		Experience: s.Experience,
		Cause:      cause,
		Delta:      delta,
	}
}
