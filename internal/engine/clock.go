// Package engine owns the live pet and task ledger of one signed-in user.
//
// ARCHITECTURAL RULE: every mutation goes through the Engine's mutex. User
// actions and both clocks are concurrent writers to the same gauges.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/platform/logger"
)

// Clock fires a callback on a fixed interval until stopped. It holds no
// pet data.
type Clock struct {
	name     string
	interval time.Duration
	fire     func()
	logger   *logger.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewClock creates a stopped clock.
func NewClock(name string, interval time.Duration, fire func(), log *logger.Logger) *Clock {
	return &Clock{
		name:     name,
		interval: interval,
		fire:     fire,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start spawns the loop. It returns immediately; calling it again, or after
// Stop, is a no-op.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true

	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Clock) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Debug("clock started", zap.String("clock", c.name), zap.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("clock stopped by context", zap.String("clock", c.name))
			return
		case <-c.stopChan:
			c.logger.Debug("clock stopped", zap.String("clock", c.name))
			return
		case <-ticker.C:
			// A stop racing with a tick wins.
			select {
			case <-c.stopChan:
				return
			default:
			}
			c.fire()
		}
	}
}

// Stop halts the loop and waits for it to exit. Safe to call more than once.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stopChan)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Interval returns the firing period.
func (c *Clock) Interval() time.Duration {
	return c.interval
}
