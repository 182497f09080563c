// Package task defines reward-bearing chores and the ordered ledger that
// holds them. This package is PURE: it must NOT import storage, network or
// engine packages.
package task

import (
	"strings"
	"time"

	"github.com/google/uuid"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// Status tracks a task through two-phase completion.
type Status string

const (
	StatusActive     Status = "active"
	StatusCompleting Status = "completing" // Reward write in flight
)

// Task is a chore a parent posts and a kid completes for coins.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Reward    Reward    `json:"reward_cents"`
	CreatedAt time.Time `json:"created_at"`

	// Local only; the balance store always holds active tasks.
	Status Status `json:"-"`
}

// Completion is the outcome of completing a task. Found is false when the id
// was already gone, which callers treat as a benign race.
type Completion struct {
	Found       bool
	Task        Task
	RewardCents int64
}

// Ledger holds tasks newest first with unique ids.
// It is not safe for concurrent use; the owning engine serializes access.
type Ledger struct {
	items []Task
	now   func() time.Time
	newID func() string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Add validates input, assigns an id and timestamp, and prepends the task.
func (l *Ledger) Add(title, notes string, rewardCents int64) (Task, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return Task{}, vaulterr.New(vaulterr.CodeValidation, "task title is required")
	}
	reward, err := RewardFromCents(rewardCents)
	if err != nil {
		return Task{}, err
	}

	task := Task{
		ID:        l.newID(),
		Title:     t,
		Notes:     strings.TrimSpace(notes),
		Reward:    reward,
		CreatedAt: l.now().UTC(),
		Status:    StatusActive,
	}
	l.items = append([]Task{task}, l.items...)
	return task, nil
}

// Remove deletes the task with the given id. Absent ids are a no-op; the
// return value reports whether anything was removed.
func (l *Ledger) Remove(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return true
}

// Complete removes the task and returns its reward in one step. An invalid
// stored reward still removes the task and returns a REWARD_PARSE error with
// Found set.
func (l *Ledger) Complete(id string) (Completion, error) {
	c, err := l.BeginCompletion(id)
	if !c.Found {
		return c, nil
	}
	l.Finalize(id)
	return c, err
}

// BeginCompletion marks an active task as completing and returns its reward.
// Missing or already-completing tasks yield Found=false.
func (l *Ledger) BeginCompletion(id string) (Completion, error) {
	i := l.index(id)
	if i < 0 || l.items[i].Status == StatusCompleting {
		return Completion{}, nil
	}
	l.items[i].Status = StatusCompleting
	t := l.items[i]

	cents, err := t.Reward.Cents()
	if err != nil {
		return Completion{Found: true, Task: t}, err
	}
	return Completion{Found: true, Task: t, RewardCents: cents}, nil
}

// Finalize removes a task after its completion was applied.
func (l *Ledger) Finalize(id string) bool {
	return l.Remove(id)
}

// Rollback returns a completing task to active after a failed reward write.
func (l *Ledger) Rollback(id string) bool {
	i := l.index(id)
	if i < 0 || l.items[i].Status != StatusCompleting {
		return false
	}
	l.items[i].Status = StatusActive
	return true
}

// Restore replaces the contents with tasks loaded from the balance store,
// keeping their order and dropping repeated ids.
func (l *Ledger) Restore(tasks []Task) {
	seen := make(map[string]bool, len(tasks))
	items := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		t.Status = StatusActive
		items = append(items, t)
	}
	l.items = items
}

// Get returns the task with the given id.
func (l *Ledger) Get(id string) (Task, bool) {
	i := l.index(id)
	if i < 0 {
		return Task{}, false
	}
	return l.items[i], true
}

// Items returns a copy of the tasks, newest first.
func (l *Ledger) Items() []Task {
	out := make([]Task, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of tasks.
func (l *Ledger) Len() int {
	return len(l.items)
}

func (l *Ledger) index(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}
