package engine

import (
	"time"

	"github.com/dragonsvault/server/internal/domain/rules"
	"github.com/dragonsvault/server/internal/events"
)

// onDecayTick is the decay clock callback.
func (e *Engine) onDecayTick() {
	e.Decay()
}

// Decay lowers hunger and happiness by the configured amount. It applies
// even at 0. Returns false once the engine is closed.
func (e *Engine) Decay() bool {
	start := time.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	rules.ApplyDecay(e.pet, e.cfg.Decay)
	payload := e.petPayload("decay", -e.cfg.Decay.Amount)
	e.mu.Unlock()

	e.emit(events.EventTypePetDecayed, payload)
	e.metrics.RecordDecay(time.Since(start))
	return true
}
