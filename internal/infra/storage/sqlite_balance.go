package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dragonsvault/server/internal/domain/task"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// SQLiteBalanceStore implements BalanceStore with one row per user and the
// task list kept as a JSON array, matching the document layout clients expect.
type SQLiteBalanceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteBalanceStore(db *sql.DB) *SQLiteBalanceStore {
	return &SQLiteBalanceStore{db: db, now: time.Now}
}

func remote(op string, err error) error {
	return vaulterr.Wrap(vaulterr.CodeRemote, "balance store: "+op, err)
}

func (s *SQLiteBalanceStore) Ensure(ctx context.Context, userID string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, coins, food, tasks, created_at, updated_at)
		 VALUES (?, 0, 0, '[]', ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, now, now,
	)
	if err != nil {
		return remote("ensure", err)
	}
	return nil
}

func (s *SQLiteBalanceStore) ReadBalance(ctx context.Context, userID string) (Balance, error) {
	var (
		b        Balance
		rawTasks string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT coins, food, tasks FROM users WHERE user_id = ?`, userID,
	).Scan(&b.Coins, &b.Food, &rawTasks)
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{}, nil
	}
	if err != nil {
		return Balance{}, remote("read balance", err)
	}

	tasks, _, err := DecodeTasks([]byte(rawTasks))
	if err != nil {
		return Balance{}, remote("read balance", err)
	}
	b.Tasks = tasks
	return b, nil
}

// upsertColumn writes one column, creating the row if needed, the way a
// document update would.
func (s *SQLiteBalanceStore) upsertColumn(ctx context.Context, op, userID, column string, value interface{}) error {
	now := s.now().UTC()
	query := `INSERT INTO users (user_id, ` + column + `, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET ` + column + ` = excluded.` + column + `, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, userID, value, now, now); err != nil {
		return remote(op, err)
	}
	return nil
}

func (s *SQLiteBalanceStore) WriteCoins(ctx context.Context, userID string, cents int64) error {
	return s.upsertColumn(ctx, "write coins", userID, "coins", cents)
}

// AddCoins increments the stored balance in SQL so concurrent payouts
// cannot overwrite each other.
func (s *SQLiteBalanceStore) AddCoins(ctx context.Context, userID string, delta int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, remote("add coins", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (user_id, coins, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET coins = users.coins + excluded.coins, updated_at = excluded.updated_at`,
		userID, delta, now, now,
	)
	if err != nil {
		return 0, remote("add coins", err)
	}

	var coins int64
	if err := tx.QueryRowContext(ctx, `SELECT coins FROM users WHERE user_id = ?`, userID).Scan(&coins); err != nil {
		return 0, remote("add coins", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, remote("add coins", err)
	}
	return coins, nil
}

func (s *SQLiteBalanceStore) WriteFood(ctx context.Context, userID string, food int64) error {
	return s.upsertColumn(ctx, "write food", userID, "food", food)
}

func (s *SQLiteBalanceStore) WriteTasks(ctx context.Context, userID string, tasks []task.Task) error {
	raw, err := EncodeTasks(tasks)
	if err != nil {
		return remote("write tasks", err)
	}
	return s.upsertColumn(ctx, "write tasks", userID, "tasks", string(raw))
}

func (s *SQLiteBalanceStore) AddTaskRemote(ctx context.Context, userID string, t task.Task) error {
	return s.updateTasks(ctx, "add task", userID, func(tasks []task.Task) []task.Task {
		return addUnique(tasks, t)
	})
}

func (s *SQLiteBalanceStore) RemoveTaskRemote(ctx context.Context, userID string, t task.Task) error {
	return s.updateTasks(ctx, "remove task", userID, func(tasks []task.Task) []task.Task {
		return removeExact(tasks, t)
	})
}

// updateTasks applies fn to the stored list inside one transaction. Entries
// that do not decode are carried through unchanged.
func (s *SQLiteBalanceStore) updateTasks(ctx context.Context, op, userID string, fn func([]task.Task) []task.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return remote(op, err)
	}
	defer tx.Rollback()

	var rawTasks string
	err = tx.QueryRowContext(ctx, `SELECT tasks FROM users WHERE user_id = ?`, userID).Scan(&rawTasks)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return remote(op, err)
	}
	tasks, unknown, err := splitTasks([]byte(rawTasks))
	if err != nil {
		return remote(op, err)
	}

	encoded, err := joinTasks(fn(tasks), unknown)
	if err != nil {
		return remote(op, err)
	}

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (user_id, tasks, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET tasks = excluded.tasks, updated_at = excluded.updated_at`,
		userID, string(encoded), now, now,
	)
	if err != nil {
		return remote(op, err)
	}
	if err := tx.Commit(); err != nil {
		return remote(op, err)
	}
	return nil
}
