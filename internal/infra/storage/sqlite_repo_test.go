package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

func openRepos(t *testing.T) (*SQLiteEventRepository, *SQLiteSnapshotRepository) {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "vault.db"), PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db), NewSQLiteSnapshotRepository(db)
}

func TestEventPersisterWritesThrough(t *testing.T) {
	repo, _ := openRepos(t)
	m := metrics.New()
	el := events.NewEventLog(&EventPersister{Repo: repo, Metrics: m})

	el.Append(events.Event{Type: events.EventTypeTaskAdded, UserID: "kid",
		Payload: events.TaskPayload{TaskID: "t1", Title: "Clean room", RewardCents: 500}})
	el.Append(events.Event{Type: events.EventTypePetFed, UserID: "kid",
		Payload: events.PetPayload{Hunger: 40, Happiness: 0, Cause: "Treasure Chest", Delta: 40}})
	el.Append(events.Event{Type: events.EventTypePetFed, UserID: "other",
		Payload: events.PetPayload{Hunger: 10}})

	ctx := context.Background()
	got, err := repo.GetByUserID(ctx, "kid", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "TASK_ADDED", got[0].EventType)
	assert.Equal(t, "Clean room", got[0].Payload["title"])

	latest, err := repo.GetByUserID(ctx, "kid", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "PET_FED", latest[0].EventType)

	fed, err := repo.GetByEventType(ctx, "kid", "PET_FED")
	require.NoError(t, err)
	assert.Len(t, fed, 1)

	assert.EqualValues(t, 3, m.EventsWritten)
	assert.Zero(t, m.EventWriteErrors)
}

func TestSnapshotUpsert(t *testing.T) {
	_, snaps := openRepos(t)
	ctx := context.Background()

	none, err := snaps.GetByUserID(ctx, "kid")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, snaps.Upsert(ctx, PetSnapshot{UserID: "kid", Hunger: 80, Happiness: 60, Experience: 9}))
	require.NoError(t, snaps.Upsert(ctx, PetSnapshot{UserID: "kid", Hunger: 75, Happiness: 55, Experience: 9}))

	got, err := snaps.GetByUserID(ctx, "kid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 75, got.Hunger)
	assert.Equal(t, 55, got.Happiness)
	assert.Equal(t, 9, got.Experience)
}

func TestMemorySnapshotRepository(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, PetSnapshot{UserID: "kid", Hunger: 5}))
	got, err := repo.GetByUserID(ctx, "kid")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Hunger)
	assert.False(t, got.LastUpdated.IsZero())
}

func TestRecapAndRebuild(t *testing.T) {
	repo, _ := openRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	appendEvent := func(id string, offset time.Duration, typ events.EventType, payload map[string]interface{}) {
		require.NoError(t, repo.Append(ctx, StoredEvent{
			ID: id, UserID: "kid", Timestamp: base.Add(offset), EventType: string(typ), Payload: payload,
		}))
	}
	appendEvent("e1", 0, events.EventTypePetFed, map[string]interface{}{"hunger": 40, "happiness": 0, "experience": 0, "cause": "Treasure Chest"})
	appendEvent("e2", time.Minute, events.EventTypeTaskCompleted, map[string]interface{}{"title": "Clean room", "reward_cents": 550})
	appendEvent("e3", 2*time.Minute, events.EventTypePetDecayed, map[string]interface{}{"hunger": 35, "happiness": 0, "experience": 0})

	rc := NewRecapper(repo)
	recap, err := rc.GenerateRecap(ctx, "kid", 0)
	require.NoError(t, err)
	require.Len(t, recap, 3)
	assert.Equal(t, "Your dragon ate Treasure Chest.", recap[0].Summary)
	assert.Equal(t, "Completed Clean room and earned 5.50 coins.", recap[1].Summary)
	assert.Equal(t, "POSITIVE", recap[1].Impact)
	assert.Equal(t, "NEGATIVE", recap[2].Impact)

	snap, ok, err := rc.RebuildPet(ctx, "kid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 35, snap.Hunger)

	_, ok, err = rc.RebuildPet(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
