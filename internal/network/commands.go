package network

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dragonsvault/server/internal/domain/pet"
	"github.com/dragonsvault/server/internal/domain/role"
	"github.com/dragonsvault/server/internal/domain/task"
	"github.com/dragonsvault/server/internal/engine"
	"github.com/dragonsvault/server/internal/infra/ai"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
	"github.com/dragonsvault/server/internal/session"
	"github.com/dragonsvault/server/internal/tutor"
)

// Command types accepted over the WebSocket and mirrored by the HTTP API.
const (
	CommandFeed         = "FEED"
	CommandPlay         = "PLAY"
	CommandAddTask      = "ADD_TASK"
	CommandRemoveTask   = "REMOVE_TASK"
	CommandCompleteTask = "COMPLETE_TASK"
	CommandAskTutor     = "ASK_TUTOR"
	CommandGetState     = "GET_STATE"
)

// Command is an incoming request from a client.
type Command struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"` // Echoed in the reply
	Item      string          `json:"item,omitempty"`       // Catalog name for FEED/PLAY
	Amount    int             `json:"amount,omitempty"`     // Raw amount when Item is empty
	TaskID    string          `json:"task_id,omitempty"`
	Title     string          `json:"title,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Reward    json.RawMessage `json:"reward,omitempty"` // Number of cents or free text like "$5.50"
	Question  string          `json:"question,omitempty"`
}

// PetResult answers FEED and PLAY.
type PetResult struct {
	Pet  pet.Stats `json:"pet"`
	Mood pet.Mood  `json:"mood"`
}

// TaskResult answers ADD_TASK and REMOVE_TASK. SyncError is set when the
// local change stuck but the balance store write failed.
type TaskResult struct {
	Task      *task.Task `json:"task,omitempty"`
	Removed   bool       `json:"removed,omitempty"`
	SyncError string     `json:"sync_error,omitempty"`
}

// CompletionResult answers COMPLETE_TASK.
type CompletionResult struct {
	Found       bool       `json:"found"`
	Paid        bool       `json:"paid"`
	Task        *task.Task `json:"task,omitempty"`
	RewardCents int64      `json:"reward_cents"`
	Coins       int64      `json:"coins"`
	CoinText    string     `json:"coins_text"`
	Error       string     `json:"error,omitempty"`
}

var commandActions = map[string]role.Action{
	CommandFeed:         role.ActionFeed,
	CommandPlay:         role.ActionPlay,
	CommandAddTask:      role.ActionAddTask,
	CommandRemoveTask:   role.ActionRemoveTask,
	CommandCompleteTask: role.ActionCompleteTask,
	CommandAskTutor:     role.ActionAskTutor,
	CommandGetState:     role.ActionView,
}

// Executor runs a command on behalf of a session.
type Executor interface {
	Execute(ctx context.Context, s *session.Session, cmd Command) (interface{}, error)
}

// Dispatcher is the Executor shared by the HTTP handlers and WebSocket
// clients.
type Dispatcher struct {
	Tutor *tutor.Tutor
}

// Execute authorizes cmd against the session's role and runs it.
func (d *Dispatcher) Execute(ctx context.Context, s *session.Session, cmd Command) (interface{}, error) {
	cmd.Type = normalizeCommandType(cmd.Type)
	action, ok := commandActions[cmd.Type]
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeValidation, "unknown command "+cmd.Type)
	}
	if err := s.Authorize(action); err != nil {
		return nil, err
	}
	eng := s.Engine

	switch cmd.Type {
	case CommandFeed, CommandPlay:
		return care(eng, cmd)

	case CommandAddTask:
		cents, err := RewardInput(cmd.Reward)
		if err != nil {
			return nil, err
		}
		t, err := eng.AddTask(ctx, cmd.Title, cmd.Notes, cents)
		if err != nil && !vaulterr.HasCode(err, vaulterr.CodeRemote) {
			return nil, err
		}
		return TaskResult{Task: &t, SyncError: errText(err)}, nil

	case CommandRemoveTask:
		removed, err := eng.RemoveTask(ctx, cmd.TaskID)
		if err != nil && !vaulterr.HasCode(err, vaulterr.CodeRemote) {
			return nil, err
		}
		return TaskResult{Removed: removed, SyncError: errText(err)}, nil

	case CommandCompleteTask:
		return complete(ctx, eng, cmd.TaskID)

	case CommandAskTutor:
		return d.ask(ctx, s, cmd.Question)

	default:
		return eng.Snapshot(), nil
	}
}

func care(eng *engine.Engine, cmd Command) (interface{}, error) {
	var (
		stats pet.Stats
		err   error
	)
	switch {
	case cmd.Type == CommandFeed && cmd.Item != "":
		stats, err = eng.Feed(cmd.Item)
	case cmd.Type == CommandFeed:
		stats, err = eng.FeedAmount(cmd.Amount)
	case cmd.Item != "":
		stats, err = eng.Play(cmd.Item)
	default:
		stats, err = eng.PlayAmount(cmd.Amount)
	}
	if err != nil {
		return nil, err
	}
	return PetResult{Pet: stats, Mood: eng.Snapshot().Mood}, nil
}

func complete(ctx context.Context, eng *engine.Engine, id string) (interface{}, error) {
	c, err := eng.CompleteTask(ctx, id)
	switch {
	case vaulterr.HasCode(err, vaulterr.CodeRemote):
		return nil, err
	case err != nil && !vaulterr.HasCode(err, vaulterr.CodeRewardParse):
		return nil, err
	}

	snap := eng.Snapshot()
	res := CompletionResult{
		Found:    c.Found,
		Coins:    snap.Coins,
		CoinText: snap.CoinText,
	}
	if !c.Found {
		return res, nil
	}
	t := c.Task
	res.Task = &t
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.Paid = true
	res.RewardCents = c.RewardCents
	return res, nil
}

func (d *Dispatcher) ask(ctx context.Context, s *session.Session, question string) (interface{}, error) {
	if d.Tutor == nil {
		return nil, vaulterr.New(vaulterr.CodeRemote, "tutor is not configured")
	}
	snap := s.Engine.Snapshot()
	pc := &ai.PetContext{
		Hunger:     snap.Pet.Hunger,
		Happiness:  snap.Pet.Happiness,
		Experience: snap.Pet.Experience,
		Coins:      snap.CoinText,
		OpenTasks:  len(snap.Tasks),
	}
	return d.Tutor.Ask(ctx, s.UserID, question, pc)
}

// RewardInput normalizes a reward from client input: a JSON number is a
// count of cents, a JSON string is free text such as "$5.50". Missing means
// zero. Anything unusable is a validation error.
func RewardInput(raw json.RawMessage) (int64, error) {
	cents, err := task.RewardFromJSON(raw).Cents()
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeValidation, "reward must be a non-negative amount", err)
	}
	return cents, nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// normalizeCommandType accepts lower-case command names from clients.
func normalizeCommandType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
