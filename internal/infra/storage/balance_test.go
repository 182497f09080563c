package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonsvault/server/internal/domain/task"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

var created = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTask(t *testing.T, id, title string, cents int64) task.Task {
	t.Helper()
	r, err := task.RewardFromCents(cents)
	require.NoError(t, err)
	return task.Task{ID: id, Title: title, Reward: r, CreatedAt: created, Status: task.StatusActive}
}

func ids(tasks []task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func openTestDB(t *testing.T) *SQLiteBalanceStore {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "vault.db"), PoolOptions{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteBalanceStore(db)
}

func stores(t *testing.T) map[string]BalanceStore {
	return map[string]BalanceStore{
		"memory": NewMemoryBalanceStore(),
		"sqlite": openTestDB(t),
	}
}

func TestBalanceStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			b, err := store.ReadBalance(ctx, "ghost")
			require.NoError(t, err)
			assert.Zero(t, b.Coins)
			assert.Empty(t, b.Tasks)

			require.NoError(t, store.Ensure(ctx, "kid"))
			require.NoError(t, store.WriteCoins(ctx, "kid", 550))
			require.NoError(t, store.WriteFood(ctx, "kid", 3))
			require.NoError(t, store.Ensure(ctx, "kid"), "ensure is idempotent")

			b, err = store.ReadBalance(ctx, "kid")
			require.NoError(t, err)
			assert.Equal(t, int64(550), b.Coins)
			assert.Equal(t, int64(3), b.Food)

			first := newTask(t, "t1", "Clean room", 500)
			second := newTask(t, "t2", "Walk dog", 250)
			require.NoError(t, store.AddTaskRemote(ctx, "kid", first))
			require.NoError(t, store.AddTaskRemote(ctx, "kid", second))
			require.NoError(t, store.AddTaskRemote(ctx, "kid", second))

			b, err = store.ReadBalance(ctx, "kid")
			require.NoError(t, err)
			assert.Equal(t, []string{"t2", "t1"}, ids(b.Tasks), "newest first, duplicates ignored")
			cents, err := b.Tasks[1].Reward.Cents()
			require.NoError(t, err)
			assert.Equal(t, int64(500), cents)

			// Same id but a different record is not removed.
			drifted := first
			drifted.Title = "Clean room now"
			require.NoError(t, store.RemoveTaskRemote(ctx, "kid", drifted))
			b, _ = store.ReadBalance(ctx, "kid")
			assert.Len(t, b.Tasks, 2)

			require.NoError(t, store.RemoveTaskRemote(ctx, "kid", first))
			b, _ = store.ReadBalance(ctx, "kid")
			assert.Equal(t, []string{"t2"}, ids(b.Tasks))

			require.NoError(t, store.WriteTasks(ctx, "kid", []task.Task{first}))
			b, _ = store.ReadBalance(ctx, "kid")
			assert.Equal(t, []string{"t1"}, ids(b.Tasks))
			assert.Equal(t, int64(550), b.Coins, "task writes leave coins alone")
		})
	}
}

func TestMemoryStoreFailures(t *testing.T) {
	store := NewMemoryBalanceStore()
	store.FailNext(1)

	err := store.WriteCoins(context.Background(), "kid", 100)
	require.Error(t, err)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeRemote))

	require.NoError(t, store.WriteCoins(context.Background(), "kid", 100))
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	ctx := context.Background()

	db, err := InitSQLite(path, PoolOptions{})
	require.NoError(t, err)
	store := NewSQLiteBalanceStore(db)
	require.NoError(t, store.AddTaskRemote(ctx, "kid", newTask(t, "t1", "Feed fish", 75)))
	require.NoError(t, db.Close())

	db, err = InitSQLite(path, PoolOptions{})
	require.NoError(t, err)
	defer db.Close()

	b, err := NewSQLiteBalanceStore(db).ReadBalance(ctx, "kid")
	require.NoError(t, err)
	require.Len(t, b.Tasks, 1)
	assert.Equal(t, "Feed fish", b.Tasks[0].Title)
	assert.True(t, b.Tasks[0].CreatedAt.Equal(created))
}

func TestSQLiteReadsLegacyDocument(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO users (user_id, coins, food, tasks, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"kid", 0, 0, `[{"name":"Dishes","value":300},{"title":"Homework","rewardInput":"$2.50"}]`, created, created)
	require.NoError(t, err)

	b, err := store.ReadBalance(ctx, "kid")
	require.NoError(t, err)
	require.Len(t, b.Tasks, 2)
	assert.Equal(t, "Dishes", b.Tasks[0].Title)
	assert.NotEmpty(t, b.Tasks[0].ID)

	cents, err := b.Tasks[1].Reward.Cents()
	require.NoError(t, err)
	assert.Equal(t, int64(250), cents)

	// Exact-match removal works on records that were stored without an id.
	require.NoError(t, store.RemoveTaskRemote(ctx, "kid", b.Tasks[0]))
	b, err = store.ReadBalance(ctx, "kid")
	require.NoError(t, err)
	require.Len(t, b.Tasks, 1)
	assert.Equal(t, "Homework", b.Tasks[0].Title)
}

func TestSQLiteTaskUpdatesKeepLegacyEntries(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO users (user_id, coins, food, tasks, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"kid", 0, 0, `["Clean room", {"name":"Dishes","value":50}, 7]`, created, created)
	require.NoError(t, err)

	require.NoError(t, store.AddTaskRemote(ctx, "kid", newTask(t, "t1", "Homework", 200)))

	b, err := store.ReadBalance(ctx, "kid")
	require.NoError(t, err)
	var titles []string
	for _, tk := range b.Tasks {
		titles = append(titles, tk.Title)
	}
	assert.Equal(t, []string{"Homework", "Clean room", "Dishes"}, titles)

	var raw string
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT tasks FROM users WHERE user_id = ?`, "kid").Scan(&raw))
	_, unknown, err := splitTasks([]byte(raw))
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	assert.Equal(t, "7", string(unknown[0]), "entries that do not decode are kept")

	// The bare title decodes to the same record after the rewrite.
	require.NoError(t, store.RemoveTaskRemote(ctx, "kid", b.Tasks[1]))
	b, err = store.ReadBalance(ctx, "kid")
	require.NoError(t, err)
	assert.Len(t, b.Tasks, 2)
}

func TestAddCoinsAccumulates(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			coins, err := store.AddCoins(ctx, "fresh", 250)
			require.NoError(t, err)
			assert.Equal(t, int64(250), coins, "creates the document")

			require.NoError(t, store.WriteCoins(ctx, "kid", 1000))
			done := make(chan error, 10)
			for i := 0; i < 10; i++ {
				go func(i int) {
					delta := int64(100)
					if i%2 == 1 {
						delta = -40
					}
					_, err := store.AddCoins(ctx, "kid", delta)
					done <- err
				}(i)
			}
			for i := 0; i < 10; i++ {
				require.NoError(t, <-done)
			}

			b, err := store.ReadBalance(ctx, "kid")
			require.NoError(t, err)
			assert.Equal(t, int64(1000+5*100-5*40), b.Coins)
		})
	}
}
