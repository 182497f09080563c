package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dragonsvault/server/internal/domain/task"
)

// taskRecord is the stored shape of a task. Older clients wrote {name, value}
// or kept the reward as free text under reward/rewardInput; those fields are
// read once here and never written back.
type taskRecord struct {
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Name        string          `json:"name,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	RewardCents json.RawMessage `json:"reward_cents,omitempty"`
	Reward      json.RawMessage `json:"reward,omitempty"`
	RewardInput json.RawMessage `json:"rewardInput,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

// legacyNamespace seeds ids for records that were stored without one, so the
// same record always decodes to the same id.
var legacyNamespace = uuid.MustParse("6f0c1d5e-4b7a-4c1e-9a52-2d0f3e8b7c61")

func decodeTask(raw json.RawMessage) (task.Task, error) {
	var title string
	if err := json.Unmarshal(raw, &title); err == nil {
		// Early clients stored a task as its bare title.
		title = strings.TrimSpace(title)
		if title == "" {
			return task.Task{}, fmt.Errorf("failed to decode task record: empty title")
		}
		return task.Task{
			ID:     uuid.NewSHA1(legacyNamespace, compact(raw)).String(),
			Title:  title,
			Reward: task.RewardFromText("0"),
			Status: task.StatusActive,
		}, nil
	}

	var rec taskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return task.Task{}, fmt.Errorf("failed to decode task record: %w", err)
	}

	t := task.Task{
		ID:     rec.ID,
		Title:  strings.TrimSpace(rec.Title),
		Notes:  rec.Notes,
		Status: task.StatusActive,
	}
	if t.Title == "" {
		t.Title = strings.TrimSpace(rec.Name)
	}
	if t.ID == "" {
		t.ID = uuid.NewSHA1(legacyNamespace, compact(raw)).String()
	}
	if rec.CreatedAt != nil {
		t.CreatedAt = rec.CreatedAt.UTC()
	}

	switch {
	case len(rec.RewardCents) > 0:
		t.Reward = task.RewardFromJSON(rec.RewardCents)
	case len(rec.Reward) > 0:
		t.Reward = task.RewardFromJSON(rec.Reward)
	case len(rec.RewardInput) > 0:
		t.Reward = task.RewardFromJSON(rec.RewardInput)
	case len(rec.Value) > 0:
		t.Reward = task.RewardFromJSON(rec.Value)
	default:
		t.Reward = task.RewardFromText("0")
	}
	return t, nil
}

func encodeTask(t task.Task) (json.RawMessage, error) {
	rec := struct {
		ID          string      `json:"id"`
		Title       string      `json:"title"`
		Notes       string      `json:"notes,omitempty"`
		RewardCents task.Reward `json:"reward_cents"`
		CreatedAt   *time.Time  `json:"created_at,omitempty"`
	}{
		ID:          t.ID,
		Title:       t.Title,
		Notes:       t.Notes,
		RewardCents: t.Reward,
	}
	if !t.CreatedAt.IsZero() {
		ts := t.CreatedAt.UTC()
		rec.CreatedAt = &ts
	}
	return json.Marshal(rec)
}

// DecodeTasks parses a stored task array. Undecodable entries are skipped
// and reported through skipped.
func DecodeTasks(data []byte) (tasks []task.Task, skipped int, err error) {
	tasks, unknown, err := splitTasks(data)
	return tasks, len(unknown), err
}

// splitTasks decodes what it can and returns the remaining entries verbatim.
func splitTasks(data []byte) ([]task.Task, []json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("failed to decode task list: %w", err)
	}
	var (
		tasks   = make([]task.Task, 0, len(raws))
		unknown []json.RawMessage
	)
	for _, raw := range raws {
		t, err := decodeTask(raw)
		if err != nil {
			unknown = append(unknown, raw)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, unknown, nil
}

// EncodeTasks renders tasks in the current stored shape.
func EncodeTasks(tasks []task.Task) ([]byte, error) {
	return joinTasks(tasks, nil)
}

// joinTasks encodes tasks and appends entries that could not be decoded, so
// a list update never discards data it does not understand.
func joinTasks(tasks []task.Task, unknown []json.RawMessage) ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(tasks)+len(unknown))
	for _, t := range tasks {
		raw, err := encodeTask(t)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	raws = append(raws, unknown...)
	return json.Marshal(raws)
}

// sameRecord compares two tasks by their encoded form, the way a document
// store compares array elements.
func sameRecord(a, b task.Task) bool {
	ra, errA := encodeTask(a)
	rb, errB := encodeTask(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func addUnique(tasks []task.Task, t task.Task) []task.Task {
	for _, existing := range tasks {
		if sameRecord(existing, t) {
			return tasks
		}
	}
	return append([]task.Task{t}, tasks...)
}

func removeExact(tasks []task.Task, t task.Task) []task.Task {
	out := tasks[:0:0]
	for _, existing := range tasks {
		if !sameRecord(existing, t) {
			out = append(out, existing)
		}
	}
	return out
}
