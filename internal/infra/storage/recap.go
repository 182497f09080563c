package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dragonsvault/server/internal/domain/task"
	"github.com/dragonsvault/server/internal/events"
)

// Recapper turns a user's stored events into the activity feed and can
// rebuild the last pet gauges when no snapshot exists.
type Recapper struct {
	eventRepo EventRepository
}

// NewRecapper creates a recapper over an event repository.
func NewRecapper(eventRepo EventRepository) *Recapper {
	return &Recapper{eventRepo: eventRepo}
}

// RecapEntry is one line of the activity feed.
type RecapEntry struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// GenerateRecap returns up to limit recent entries for a user, oldest first.
func (r *Recapper) GenerateRecap(ctx context.Context, userID string, limit int) ([]RecapEntry, error) {
	stored, err := r.eventRepo.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for recap: %w", err)
	}

	recap := make([]RecapEntry, 0, len(stored))
	for _, e := range stored {
		recap = append(recap, RecapEntry{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			EventType: e.EventType,
			Summary:   Summarize(e.EventType, e.Payload),
			Impact:    Impact(e.EventType),
		})
	}
	return recap, nil
}

// RebuildPet returns the gauges carried by the most recent pet event
// (every pet event records the full state after it). ok is false when the
// user has no pet history.
func (r *Recapper) RebuildPet(ctx context.Context, userID string) (snap PetSnapshot, ok bool, err error) {
	stored, err := r.eventRepo.GetByUserID(ctx, userID, 0)
	if err != nil {
		return PetSnapshot{}, false, fmt.Errorf("failed to load events for rebuild: %w", err)
	}

	for i := len(stored) - 1; i >= 0; i-- {
		e := stored[i]
		switch events.EventType(e.EventType) {
		case events.EventTypePetFed, events.EventTypePetPlayed, events.EventTypePetDecayed, events.EventTypeXPGranted:
		default:
			continue
		}
		h, okH := intField(e.Payload, "hunger")
		hp, okHp := intField(e.Payload, "happiness")
		if !okH || !okHp {
			continue
		}
		xp, _ := intField(e.Payload, "experience")
		return PetSnapshot{
			UserID:      userID,
			Hunger:      h,
			Happiness:   hp,
			Experience:  xp,
			LastUpdated: e.Timestamp,
		}, true, nil
	}
	return PetSnapshot{}, false, nil
}

// Summarize creates a human-readable summary of an event payload.
func Summarize(eventType string, payload map[string]interface{}) string {
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}
	switch events.EventType(eventType) {
	case events.EventTypePetFed:
		return fmt.Sprintf("Your dragon ate %s.", orDefault(str("cause"), "a snack"))
	case events.EventTypePetPlayed:
		return fmt.Sprintf("Your dragon enjoyed %s.", orDefault(str("cause"), "some play time"))
	case events.EventTypePetDecayed:
		return "Your dragon got a little hungrier and lonelier."
	case events.EventTypeXPGranted:
		return "Your dragon grew stronger!"
	case events.EventTypeTaskAdded:
		return fmt.Sprintf("New task: %s.", str("title"))
	case events.EventTypeTaskRemoved:
		return fmt.Sprintf("Task removed: %s.", str("title"))
	case events.EventTypeTaskCompleted:
		cents, _ := intField(payload, "reward_cents")
		return fmt.Sprintf("Completed %s and earned %s coins.", str("title"), task.FormatCents(int64(cents)))
	case events.EventTypeRewardFailed:
		return fmt.Sprintf("The reward for %s could not be paid.", str("title"))
	case events.EventTypeRoleChanged:
		return "Switched role."
	case events.EventTypeSignedIn:
		return "Signed in."
	case events.EventTypeSignedOut:
		return "Signed out."
	case events.EventTypeTutorReply:
		return "The tutor answered a question."
	default:
		return "Something happened in the vault."
	}
}

// Impact classifies the event impact.
func Impact(eventType string) string {
	switch events.EventType(eventType) {
	case events.EventTypePetDecayed, events.EventTypeRewardFailed:
		return "NEGATIVE"
	case events.EventTypePetFed, events.EventTypePetPlayed, events.EventTypeXPGranted, events.EventTypeTaskCompleted:
		return "POSITIVE"
	default:
		return "NEUTRAL"
	}
}

func intField(payload map[string]interface{}, key string) (int, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
