package storage

import (
	"context"
	"sync"

	"github.com/dragonsvault/server/internal/domain/task"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// MemoryBalanceStore keeps balances in process memory. Used by tests and
// the --memory serve mode.
type MemoryBalanceStore struct {
	mu    sync.Mutex
	users map[string]*Balance

	// FailNext makes the next n calls fail with a REMOTE error.
	failNext int
}

// NewMemoryBalanceStore creates an empty store.
func NewMemoryBalanceStore() *MemoryBalanceStore {
	return &MemoryBalanceStore{users: make(map[string]*Balance)}
}

// FailNext arranges for the next n calls to fail.
func (s *MemoryBalanceStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *MemoryBalanceStore) fail(op string) error {
	if s.failNext > 0 {
		s.failNext--
		return vaulterr.New(vaulterr.CodeRemote, op+": store unavailable")
	}
	return nil
}

func (s *MemoryBalanceStore) doc(userID string) *Balance {
	b, ok := s.users[userID]
	if !ok {
		b = &Balance{}
		s.users[userID] = b
	}
	return b
}

func (s *MemoryBalanceStore) Ensure(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ensure"); err != nil {
		return err
	}
	s.doc(userID)
	return nil
}

func (s *MemoryBalanceStore) ReadBalance(ctx context.Context, userID string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("read balance"); err != nil {
		return Balance{}, err
	}
	b, ok := s.users[userID]
	if !ok {
		return Balance{}, nil
	}
	out := *b
	out.Tasks = append([]task.Task(nil), b.Tasks...)
	return out, nil
}

func (s *MemoryBalanceStore) WriteCoins(ctx context.Context, userID string, cents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("write coins"); err != nil {
		return err
	}
	s.doc(userID).Coins = cents
	return nil
}

func (s *MemoryBalanceStore) AddCoins(ctx context.Context, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("add coins"); err != nil {
		return 0, err
	}
	b := s.doc(userID)
	b.Coins += delta
	return b.Coins, nil
}

func (s *MemoryBalanceStore) WriteFood(ctx context.Context, userID string, food int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("write food"); err != nil {
		return err
	}
	s.doc(userID).Food = food
	return nil
}

func (s *MemoryBalanceStore) WriteTasks(ctx context.Context, userID string, tasks []task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("write tasks"); err != nil {
		return err
	}
	s.doc(userID).Tasks = append([]task.Task(nil), tasks...)
	return nil
}

func (s *MemoryBalanceStore) AddTaskRemote(ctx context.Context, userID string, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("add task"); err != nil {
		return err
	}
	b := s.doc(userID)
	b.Tasks = addUnique(b.Tasks, t)
	return nil
}

func (s *MemoryBalanceStore) RemoveTaskRemote(ctx context.Context, userID string, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("remove task"); err != nil {
		return err
	}
	b := s.doc(userID)
	b.Tasks = removeExact(b.Tasks, t)
	return nil
}
