package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/domain/task"
	"github.com/dragonsvault/server/internal/events"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// AddTask validates and prepends a task locally, then mirrors it to the
// balance store. A remote failure is returned alongside the created task;
// the local ledger keeps it.
func (e *Engine) AddTask(ctx context.Context, title, notes string, rewardCents int64) (task.Task, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return task.Task{}, errClosed
	}
	t, err := e.ledger.Add(title, notes, rewardCents)
	e.mu.Unlock()
	if err != nil {
		return task.Task{}, err
	}

	e.emit(events.EventTypeTaskAdded, events.TaskPayload{TaskID: t.ID, Title: t.Title, RewardCents: rewardCents})
	e.metrics.RecordTaskAdded()

	if err := e.store.AddTaskRemote(ctx, e.userID, t); err != nil {
		e.remoteFailed("add task", t, err)
		return t, err
	}
	return t, nil
}

// RemoveTask deletes a task locally, then remotely. Absent ids are a
// silent no-op. A remote failure is returned but not rolled back.
func (e *Engine) RemoveTask(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, errClosed
	}
	t, ok := e.ledger.Get(id)
	if ok && t.Status == task.StatusCompleting {
		// The in-flight completion owns this task now.
		e.mu.Unlock()
		return false, nil
	}
	removed := ok && e.ledger.Remove(id)
	e.mu.Unlock()
	if !removed {
		return false, nil
	}

	e.emit(events.EventTypeTaskRemoved, events.TaskPayload{TaskID: t.ID, Title: t.Title})
	e.metrics.RecordTaskRemoved()

	if err := e.store.RemoveTaskRemote(ctx, e.userID, t); err != nil {
		e.remoteFailed("remove task", t, err)
		return true, err
	}
	return true, nil
}

// CompleteTask pays a task's reward in two phases. The task is marked
// completing under the lock, the balance store is updated without holding
// it, and the task is then either removed or rolled back to active.
//
// Absent ids return Found=false and no error. A stored reward that cannot
// be parsed removes the task without paying and returns a REWARD_PARSE
// error. A store failure leaves the task active and returns a REMOTE error.
func (e *Engine) CompleteTask(ctx context.Context, id string) (task.Completion, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return task.Completion{}, errClosed
	}
	c, parseErr := e.ledger.BeginCompletion(id)
	e.mu.Unlock()

	if !c.Found {
		return c, nil
	}
	if parseErr != nil {
		return c, e.dropUnpayable(ctx, c, parseErr)
	}

	e.payMu.Lock()
	coins, err := e.payout(ctx, c)

	e.mu.Lock()
	if err != nil {
		e.ledger.Rollback(id)
		e.mu.Unlock()
		e.payMu.Unlock()
		e.remoteFailed("complete task", c.Task, err)
		return task.Completion{Found: true, Task: c.Task}, vaulterr.Wrap(vaulterr.CodeRemote, "reward was not applied", err)
	}
	e.ledger.Finalize(id)
	e.coins = coins
	e.mu.Unlock()
	e.payMu.Unlock()

	e.emit(events.EventTypeTaskCompleted, events.TaskPayload{
		TaskID: c.Task.ID, Title: c.Task.Title, RewardCents: c.RewardCents, Coins: coins,
	})
	e.metrics.RecordCompletion(c.RewardCents)
	e.logger.Info("task completed",
		zap.String("task", c.Task.ID),
		zap.Int64("reward_cents", c.RewardCents),
		zap.Int64("coins", coins),
	)
	return c, nil
}

// payout credits the reward with an atomic increment and removes the remote
// task. If the remove fails the credit is reversed with the opposite delta,
// so payments made by other completions in the meantime are kept.
func (e *Engine) payout(ctx context.Context, c task.Completion) (int64, error) {
	coins, err := e.store.AddCoins(ctx, e.userID, c.RewardCents)
	if err != nil {
		return 0, err
	}
	if err := e.store.RemoveTaskRemote(ctx, e.userID, c.Task); err != nil {
		if _, undoErr := e.store.AddCoins(ctx, e.userID, -c.RewardCents); undoErr != nil {
			e.logger.Error("failed to reverse reward after remote task removal failed",
				zap.String("task", c.Task.ID), zap.Int64("reward_cents", c.RewardCents), zap.Error(undoErr))
		}
		return 0, err
	}
	return coins, nil
}

func (e *Engine) dropUnpayable(ctx context.Context, c task.Completion, parseErr error) error {
	e.mu.Lock()
	e.ledger.Finalize(c.Task.ID)
	e.mu.Unlock()

	e.emit(events.EventTypeRewardFailed, events.TaskPayload{
		TaskID: c.Task.ID, Title: c.Task.Title, Error: parseErr.Error(),
	})
	e.metrics.RecordRewardParseFailure()
	e.logger.Warn("task completed without reward", zap.String("task", c.Task.ID), zap.Error(parseErr))

	if err := e.store.RemoveTaskRemote(ctx, e.userID, c.Task); err != nil {
		e.remoteFailed("remove unpayable task", c.Task, err)
	}
	return parseErr
}

func (e *Engine) remoteFailed(op string, t task.Task, err error) {
	e.metrics.RecordRemoteError()
	e.logger.Warn("balance store call failed",
		zap.String("op", op),
		zap.String("task", t.ID),
		zap.Error(err),
	)
}
