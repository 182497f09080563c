package task

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

func newTestLedger() *Ledger {
	l := NewLedger()
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
	l.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	return l
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestAddValidates(t *testing.T) {
	l := newTestLedger()

	_, err := l.Add("", "", 10)
	assert.ErrorIs(t, err, vaulterr.ErrValidation)

	_, err = l.Add("   ", "notes", 10)
	assert.ErrorIs(t, err, vaulterr.ErrValidation)

	_, err = l.Add("Dishes", "", -5)
	assert.ErrorIs(t, err, vaulterr.ErrValidation)

	assert.Zero(t, l.Len())
}

func TestAddPrepends(t *testing.T) {
	l := newTestLedger()
	_, err := l.Add("Feed the cat", "", 100)
	require.NoError(t, err)

	created, err := l.Add("  Clean room ", " under the bed ", 500)
	require.NoError(t, err)

	assert.Equal(t, "Clean room", created.Title)
	assert.Equal(t, "under the bed", created.Notes)
	assert.Equal(t, StatusActive, created.Status)
	assert.Equal(t, []string{"task-2", "task-1"}, ids(l.Items()))
	assert.Equal(t, created, l.Items()[0])
}

func TestRemoveIsIdempotent(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Add("A", "", 1)

	assert.False(t, l.Remove("missing"))
	assert.Equal(t, 1, l.Len())
}

func TestAddThenRemoveRestoresLedger(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Add("A", "", 1)
	_, _ = l.Add("B", "", 2)
	before := l.Items()

	added, err := l.Add("C", "", 3)
	require.NoError(t, err)
	assert.True(t, l.Remove(added.ID))

	assert.Equal(t, before, l.Items())
	assert.False(t, l.Remove(added.ID), "second remove is a no-op")
}

func TestCompleteMissingIsNotFound(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Add("A", "", 1)
	before := l.Items()

	c, err := l.Complete("nope")
	require.NoError(t, err)
	assert.False(t, c.Found)
	assert.Equal(t, before, l.Items())
}

func TestCompleteRemovesExactlyThatTask(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Add("A", "", 100)
	b, _ := l.Add("B", "", 550)
	_, _ = l.Add("C", "", 300)

	c, err := l.Complete(b.ID)
	require.NoError(t, err)
	assert.True(t, c.Found)
	assert.Equal(t, int64(550), c.RewardCents)
	assert.Equal(t, "B", c.Task.Title)
	assert.Equal(t, []string{"task-3", "task-1"}, ids(l.Items()))
}

func TestCompleteWithBadRewardStillRemoves(t *testing.T) {
	l := newTestLedger()
	l.Restore([]Task{{ID: "legacy", Title: "Old chore", Reward: RewardFromText("a hug")}})

	c, err := l.Complete("legacy")
	assert.ErrorIs(t, err, vaulterr.ErrRewardParse)
	assert.True(t, c.Found)
	assert.Zero(t, c.RewardCents)
	assert.Zero(t, l.Len())
}

func TestTwoPhaseCompletion(t *testing.T) {
	l := newTestLedger()
	a, _ := l.Add("A", "", 250)

	c, err := l.BeginCompletion(a.ID)
	require.NoError(t, err)
	require.True(t, c.Found)
	got, _ := l.Get(a.ID)
	assert.Equal(t, StatusCompleting, got.Status)

	again, err := l.BeginCompletion(a.ID)
	require.NoError(t, err)
	assert.False(t, again.Found, "a double tap must not pay twice")

	assert.True(t, l.Rollback(a.ID))
	got, _ = l.Get(a.ID)
	assert.Equal(t, StatusActive, got.Status)
	assert.False(t, l.Rollback(a.ID))

	_, _ = l.BeginCompletion(a.ID)
	assert.True(t, l.Finalize(a.ID))
	assert.Zero(t, l.Len())
}

func TestRestoreDropsDuplicates(t *testing.T) {
	l := newTestLedger()
	l.Restore([]Task{
		{ID: "1", Title: "one"},
		{ID: "2", Title: "two", Status: StatusCompleting},
		{ID: "1", Title: "dup"},
		{ID: "", Title: "no id"},
	})

	items := l.Items()
	assert.Equal(t, []string{"1", "2"}, ids(items))
	assert.Equal(t, "one", items[0].Title)
	assert.Equal(t, StatusActive, items[1].Status)
}
