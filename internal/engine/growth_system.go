package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/domain/rules"
	"github.com/dragonsvault/server/internal/events"
)

// onGrowthTick is the growth clock callback.
func (e *Engine) onGrowthTick() {
	e.CheckGrowth()
}

// CheckGrowth samples both gauges now and grants experience when both are
// full. It returns the points granted; actions that fill the gauges never
// grant experience themselves.
func (e *Engine) CheckGrowth() int {
	start := time.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0
	}
	granted := rules.ApplyGrowth(e.pet, e.cfg.Growth)
	payload := e.petPayload("growth", granted)
	e.mu.Unlock()

	e.metrics.RecordGrowth(time.Since(start), granted > 0)
	if granted > 0 {
		e.emit(events.EventTypeXPGranted, payload)
		e.logger.Debug("experience granted", zap.Int("points", granted), zap.Int("experience", payload.Experience))
	}
	return granted
}
