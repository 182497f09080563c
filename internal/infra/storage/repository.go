// Package storage provides the persistence layer for the vault server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"

	"github.com/dragonsvault/server/internal/domain/task"
)

// Balance is the per-user document: coins in cents, food units and the
// pending task list.
type Balance struct {
	Coins int64       `json:"coins"`
	Food  int64       `json:"food"`
	Tasks []task.Task `json:"tasks"`
}

// BalanceStore is the remote document holding a user's balance and tasks.
// Any call may fail; implementations wrap failures as REMOTE errors.
type BalanceStore interface {
	// Ensure creates the document with zero balances if it does not exist.
	Ensure(ctx context.Context, userID string) error

	// ReadBalance returns the current document (zero values if absent).
	ReadBalance(ctx context.Context, userID string) (Balance, error)

	// WriteCoins sets the coin balance to an absolute value.
	WriteCoins(ctx context.Context, userID string, cents int64) error

	// AddCoins adds delta (which may be negative) to the coin balance in one
	// atomic step and returns the new balance.
	AddCoins(ctx context.Context, userID string, delta int64) (int64, error)

	// WriteFood sets the food balance to an absolute value.
	WriteFood(ctx context.Context, userID string, food int64) error

	// WriteTasks replaces the whole task list.
	WriteTasks(ctx context.Context, userID string, tasks []task.Task) error

	// AddTaskRemote puts a task at the head of the list unless an identical
	// record is already present.
	AddTaskRemote(ctx context.Context, userID string, t task.Task) error

	// RemoveTaskRemote removes every record exactly equal to t.
	RemoveTaskRemote(ctx context.Context, userID string, t task.Task) error
}

// StoredEvent mirrors the domain event structure for persistence.
type StoredEvent struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetByUserID returns up to limit most recent events of a user, oldest
	// first. A limit of 0 returns everything.
	GetByUserID(ctx context.Context, userID string, limit int) ([]StoredEvent, error)

	// GetByEventType returns all events of a user with the given type.
	GetByEventType(ctx context.Context, userID, eventType string) ([]StoredEvent, error)
}

// PetSnapshot is the last backed-up pet state of a user.
type PetSnapshot struct {
	UserID      string    `json:"user_id" db:"user_id"`
	Hunger      int       `json:"hunger" db:"hunger"`
	Happiness   int       `json:"happiness" db:"happiness"`
	Experience  int       `json:"experience" db:"experience"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// SnapshotRepository defines the interface for pet snapshots.
type SnapshotRepository interface {
	// Upsert updates or inserts a user's snapshot.
	Upsert(ctx context.Context, snapshot PetSnapshot) error

	// GetByUserID returns the snapshot, or nil when none exists.
	GetByUserID(ctx context.Context, userID string) (*PetSnapshot, error)
}
