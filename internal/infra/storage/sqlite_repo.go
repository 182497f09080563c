package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, timestamp, event_type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.Timestamp.UTC(), event.EventType, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.EventType, &payloadStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteEventRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		return r.getMany(ctx,
			`SELECT id, user_id, timestamp, event_type, payload FROM events WHERE user_id = ? ORDER BY seq ASC`,
			userID)
	}
	// Newest N, returned oldest first.
	return r.getMany(ctx,
		`SELECT id, user_id, timestamp, event_type, payload FROM (
			SELECT seq, id, user_id, timestamp, event_type, payload FROM events
			WHERE user_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		userID, limit)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, userID, eventType string) ([]StoredEvent, error) {
	return r.getMany(ctx,
		`SELECT id, user_id, timestamp, event_type, payload FROM events WHERE user_id = ? AND event_type = ? ORDER BY seq ASC`,
		userID, eventType)
}

// EventPersister adapts an EventRepository to the event log's write-through.
// Metrics, when set, counts writes and failures.
type EventPersister struct {
	Repo    EventRepository
	Timeout time.Duration
	Metrics *metrics.Collector
}

func (p *EventPersister) Append(event events.Event) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		// Scalar payloads are kept under a single key.
		payload = map[string]interface{}{"value": event.Payload}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err = p.Repo.Append(ctx, StoredEvent{
		ID:        event.ID,
		UserID:    event.UserID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		Payload:   payload,
	})
	if p.Metrics != nil {
		p.Metrics.RecordEventWrite(err)
	}
	return err
}

// ---------------------------------------------------------
// SQLiteSnapshotRepository
// ---------------------------------------------------------

type SQLiteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

func (r *SQLiteSnapshotRepository) Upsert(ctx context.Context, snapshot PetSnapshot) error {
	updated := snapshot.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pet_snapshots (user_id, hunger, happiness, experience, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			hunger=excluded.hunger,
			happiness=excluded.happiness,
			experience=excluded.experience,
			last_updated=excluded.last_updated`,
		snapshot.UserID, snapshot.Hunger, snapshot.Happiness, snapshot.Experience, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pet snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteSnapshotRepository) GetByUserID(ctx context.Context, userID string) (*PetSnapshot, error) {
	var p PetSnapshot
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, hunger, happiness, experience, last_updated FROM pet_snapshots WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.Hunger, &p.Happiness, &p.Experience, &p.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MemorySnapshotRepository keeps snapshots in memory for --memory mode.
type MemorySnapshotRepository struct {
	mu    sync.Mutex
	snaps map[string]PetSnapshot
}

func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{snaps: make(map[string]PetSnapshot)}
}

func (r *MemorySnapshotRepository) Upsert(ctx context.Context, snapshot PetSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snapshot.LastUpdated.IsZero() {
		snapshot.LastUpdated = time.Now()
	}
	r.snaps[snapshot.UserID] = snapshot
	return nil
}

func (r *MemorySnapshotRepository) GetByUserID(ctx context.Context, userID string) (*PetSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[userID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}
