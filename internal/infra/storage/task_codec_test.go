package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

func TestDecodeTasksRewardSources(t *testing.T) {
	data := []byte(`[
		{"id":"a","title":"Cents","reward_cents":550},
		{"id":"b","title":"Text","reward":"5.50"},
		{"id":"c","title":"Input","rewardInput":"$3"},
		{"id":"d","title":"Missing"},
		{"id":"e","title":"Broken","reward":"lots"},
		42
	]`)

	tasks, skipped, err := DecodeTasks(data)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, tasks, 5)

	want := map[string]int64{"a": 550, "b": 550, "c": 300, "d": 0}
	for _, tk := range tasks[:4] {
		cents, err := tk.Reward.Cents()
		require.NoError(t, err, tk.ID)
		assert.Equal(t, want[tk.ID], cents, tk.ID)
	}

	_, err = tasks[4].Reward.Cents()
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeRewardParse))
}

func TestLegacyIDsAreStable(t *testing.T) {
	data := []byte(`[{"name":"Dishes","value":300}]`)
	a, _, err := DecodeTasks(data)
	require.NoError(t, err)
	b, _, err := DecodeTasks([]byte(`[{"name": "Dishes", "value": 300}]`))
	require.NoError(t, err)

	assert.Equal(t, a[0].ID, b[0].ID, "whitespace does not change a legacy id")
}

func TestDecodeBareTitle(t *testing.T) {
	tasks, skipped, err := DecodeTasks([]byte(`["Clean room", "  ", {"name":"Dishes","value":50}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped, "a blank title is not a task")
	require.Len(t, tasks, 2)

	assert.Equal(t, "Clean room", tasks[0].Title)
	assert.NotEmpty(t, tasks[0].ID)
	cents, err := tasks[0].Reward.Cents()
	require.NoError(t, err)
	assert.Zero(t, cents)

	again, _, err := DecodeTasks([]byte(`["Clean room"]`))
	require.NoError(t, err)
	assert.Equal(t, tasks[0].ID, again[0].ID)
}

func TestJoinTasksKeepsUnknownEntries(t *testing.T) {
	tasks, unknown, err := splitTasks([]byte(`[{"id":"a","title":"Dishes","reward_cents":50}, 42, [1,2]]`))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, unknown, 2)

	raw, err := joinTasks(tasks, unknown)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","title":"Dishes","reward_cents":50}, 42, [1,2]]`, string(raw))
}

func TestEncodeKeepsInvalidRewardText(t *testing.T) {
	tasks, _, err := DecodeTasks([]byte(`[{"id":"e","title":"Broken","reward":"lots"}]`))
	require.NoError(t, err)

	raw, err := EncodeTasks(tasks)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"reward_cents":"lots"`)

	again, _, err := DecodeTasks(raw)
	require.NoError(t, err)
	assert.False(t, again[0].Reward.Valid())
	assert.True(t, sameRecord(tasks[0], again[0]))
}

func TestDecodeEmptyAndMalformed(t *testing.T) {
	tasks, _, err := DecodeTasks(nil)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, _, err = DecodeTasks([]byte(`{"tasks":1}`))
	assert.Error(t, err)
}
