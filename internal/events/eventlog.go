// Package events provides the append-only log of vault activity.
// Pollers (the WebSocket hub) and the history endpoint read from it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a vault event.
type EventType string

const (
	EventTypePetFed        EventType = "PET_FED"
	EventTypePetPlayed     EventType = "PET_PLAYED"
	EventTypePetDecayed    EventType = "PET_DECAYED"
	EventTypeXPGranted     EventType = "XP_GRANTED"
	EventTypeTaskAdded     EventType = "TASK_ADDED"
	EventTypeTaskRemoved   EventType = "TASK_REMOVED"
	EventTypeTaskCompleted EventType = "TASK_COMPLETED"
	EventTypeRewardFailed  EventType = "REWARD_FAILED"
	EventTypeRoleChanged   EventType = "ROLE_CHANGED"
	EventTypeSignedIn      EventType = "SIGNED_IN"
	EventTypeSignedOut     EventType = "SIGNED_OUT"
	EventTypeTutorReply    EventType = "TUTOR_REPLY"
)

// Event is an immutable record of something that happened to a user's vault.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"` // Whose vault changed
	Payload   interface{} `json:"payload"` // Event-specific data
}

// PetPayload carries the gauges after a pet event.
type PetPayload struct {
	Hunger     int    `json:"hunger"`
	Happiness  int    `json:"happiness"`
	Experience int    `json:"experience"`
	Cause      string `json:"cause,omitempty"` // Care item or clock name
	Delta      int    `json:"delta,omitempty"`
}

// TaskPayload carries the task an event is about.
type TaskPayload struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	RewardCents int64  `json:"reward_cents"`
	Coins       int64  `json:"coins,omitempty"` // Balance after payout
	Error       string `json:"error,omitempty"`
}

// RolePayload carries the gate position after a change.
type RolePayload struct {
	State string `json:"state"`
	Role  string `json:"role,omitempty"`
}

// TutorPayload records one tutor exchange. Question text is not kept.
type TutorPayload struct {
	Provider string `json:"provider"`
	Fallback bool   `json:"fallback"`
	Chars    int    `json:"chars"` // Length of the reply
}

// Persister defines how an event is durably stored.
type Persister interface {
	Append(event Event) error
}

// EventLog is the in-memory append-only log with optional write-through.
// Offsets are absolute: they count every event ever appended, including
// ones already trimmed by the retention limit.
type EventLog struct {
	mu        sync.RWMutex
	events    []Event
	base      int // absolute offset of events[0]
	retention int // 0 keeps everything
	persister Persister
	onError   func(Event, error)
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister Persister) *EventLog {
	return &EventLog{
		events:    make([]Event, 0),
		persister: persister,
	}
}

// OnPersistError registers a callback for failed write-throughs.
func (el *EventLog) OnPersistError(fn func(Event, error)) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.onError = fn
}

// SetRetention bounds how many recent events stay in memory. Older ones are
// dropped in batches; the persister still has them. n <= 0 keeps everything.
func (el *EventLog) SetRetention(n int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if n < 0 {
		n = 0
	}
	el.retention = n
	el.trimLocked()
}

// trimLocked drops the oldest events once the log is a quarter over the
// retention limit, so appends stay amortized O(1).
func (el *EventLog) trimLocked() {
	if el.retention == 0 {
		return
	}
	if len(el.events) <= el.retention+el.retention/4 {
		return
	}
	drop := len(el.events) - el.retention
	kept := make([]Event, el.retention, el.retention+el.retention/4+1)
	copy(kept, el.events[drop:])
	el.events = kept
	el.base += drop
}

// Append adds an event, filling in ID and timestamp when missing. Events are
// immutable once appended. Persistence happens synchronously outside the lock.
func (el *EventLog) Append(event Event) Event {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	el.trimLocked()
	persister, onError := el.persister, el.onError
	el.mu.Unlock()

	if persister != nil {
		if err := persister.Append(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
	return event
}

// Since returns a copy of the events after the given offset and the new
// offset to resume from. A reader that fell behind the retention window
// resumes at the oldest event still held.
func (el *EventLog) Since(offset int) ([]Event, int) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	end := el.base + len(el.events)
	if offset < el.base {
		offset = el.base
	}
	if offset >= end {
		return nil, end
	}
	out := make([]Event, end-offset)
	copy(out, el.events[offset-el.base:])
	return out, end
}

// GetByUser returns all events of one user, oldest first.
func (el *EventLog) GetByUser(userID string) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the retained history.
func (el *EventLog) Replay() []Event {
	out, _ := el.Since(0)
	return out
}

// Len returns the number of events ever appended, which is the offset a new
// reader starts from.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.base + len(el.events)
}

// Retained returns the number of events currently held in memory.
func (el *EventLog) Retained() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
