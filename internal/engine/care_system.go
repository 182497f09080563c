package engine

import (
	"github.com/dragonsvault/server/internal/domain/pet"
	"github.com/dragonsvault/server/internal/events"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// Feed raises hunger by the value of a food from the catalog.
func (e *Engine) Feed(name string) (pet.Stats, error) {
	item, ok := pet.LookupCare(pet.CareFood, name)
	if !ok {
		return pet.Stats{}, vaulterr.New(vaulterr.CodeValidation, "unknown food "+name)
	}
	return e.care(item)
}

// Play raises happiness by the value of an activity from the catalog.
func (e *Engine) Play(name string) (pet.Stats, error) {
	item, ok := pet.LookupCare(pet.CareActivity, name)
	if !ok {
		return pet.Stats{}, vaulterr.New(vaulterr.CodeValidation, "unknown activity "+name)
	}
	return e.care(item)
}

// FeedAmount raises hunger by a raw amount. Negative amounts do nothing.
func (e *Engine) FeedAmount(amount int) (pet.Stats, error) {
	return e.care(pet.CareItem{Name: "food", Kind: pet.CareFood, Value: amount})
}

// PlayAmount raises happiness by a raw amount. Negative amounts do nothing.
func (e *Engine) PlayAmount(amount int) (pet.Stats, error) {
	return e.care(pet.CareItem{Name: "play", Kind: pet.CareActivity, Value: amount})
}

func (e *Engine) care(item pet.CareItem) (pet.Stats, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return pet.Stats{}, errClosed
	}

	var before, after int
	evType := events.EventTypePetFed
	switch item.Kind {
	case pet.CareFood:
		before = e.pet.Hunger.Value()
		e.pet.Hunger.Increase(item.Value)
		after = e.pet.Hunger.Value()
		e.lastFeed = e.now()
	default:
		evType = events.EventTypePetPlayed
		before = e.pet.Happiness.Value()
		e.pet.Happiness.Increase(item.Value)
		after = e.pet.Happiness.Value()
	}
	stats := e.pet.Stats()
	payload := e.petPayload(item.Name, after-before)
	e.mu.Unlock()

	e.emit(evType, payload)
	e.metrics.RecordCare()
	return stats, nil
}
