// Package task implements the per-user to-do list. Every add and
// completion is charged against the daily quota before it touches the
// list; removal hands the task back to the quota manager for possible
// slot reclamation.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	ferrors "github.com/focusguild/focusbot/internal/errors"
	"github.com/focusguild/focusbot/internal/quota"
	"github.com/focusguild/focusbot/internal/store"
)

// Store is the task persistence the service needs.
type Store interface {
	AddTask(userID, title string) (*store.Task, error)
	ListTasks(userID string) ([]*store.Task, error)
	CompleteTask(taskID, userID string) error
	DeleteTask(taskID, userID string) (*store.Task, error)
}

// Quota gates task actions and processes slot refunds.
type Quota interface {
	CanAddTask(ctx context.Context, userID string) (quota.CheckResult, error)
	CanCompleteTask(ctx context.Context, userID string) (quota.CheckResult, error)
	RecordAction(ctx context.Context, userID string, action store.ActionType) error
	ReclaimSlot(ctx context.Context, userID string, taskCreatedAt time.Time) (quota.ReclaimResult, error)
	Stats(ctx context.Context, userID string) (quota.DailyStats, error)
	Limit() int
}

// Awarder credits points for completed tasks.
type Awarder interface {
	AwardTaskCompletion(ctx context.Context, userID string, when time.Time) (int, error)
}

// AddResult is the outcome of an add attempt.
type AddResult struct {
	Task     *store.Task
	Refused  bool
	Message  string
	UsedSlot int
	Limit    int
}

// CompleteResult is the outcome of a completion attempt.
type CompleteResult struct {
	Refused       bool
	Message       string
	PointsAwarded int
}

// RemoveResult is the outcome of a removal, including what happened to
// the quota slot the task had consumed.
type RemoveResult struct {
	Task          *store.Task
	SlotReclaimed bool
	ReclaimReason string
}

// Service is the task list manager.
type Service struct {
	store   Store
	quota   Quota
	awarder Awarder
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates the task Service. The awarder may be nil, in which
// case completions earn no points.
func NewService(st Store, q Quota, awarder Awarder, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		quota:   q,
		awarder: awarder,
		logger:  logger.With().Str("component", "task").Logger(),
		now:     time.Now,
	}
}

// Add creates a task if the user has quota left. A refusal is a result,
// not an error, so the command surface can relay the numbers.
func (s *Service) Add(ctx context.Context, userID, title string) (AddResult, error) {
	res := AddResult{Limit: s.quota.Limit()}
	if title == "" {
		return res, fmt.Errorf("add task: %w: empty title", ferrors.ErrInvalidInput)
	}

	check, err := s.quota.CanAddTask(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("add task: %w", err)
	}
	res.UsedSlot = check.CurrentActions
	if !check.Allowed {
		res.Refused = true
		res.Message = fmt.Sprintf(
			"daily limit reached: %d of %d task actions used today",
			check.CurrentActions, check.Limit,
		)
		return res, nil
	}

	task, err := s.store.AddTask(userID, title)
	if err != nil {
		return res, fmt.Errorf("add task: %w", err)
	}
	if err := s.quota.RecordAction(ctx, userID, store.ActionAdd); err != nil {
		// The task exists but its slot was not charged. Surface the
		// error; the stats row will self-correct at the next reset.
		return res, fmt.Errorf("add task: record action: %w", err)
	}

	res.Task = task
	res.UsedSlot = check.CurrentActions + 1
	s.logger.Info().Str("user", userID).Str("task", task.ID).Msg("task added")
	return res, nil
}

// List returns the user's tasks, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Task, error) {
	tasks, err := s.store.ListTasks(userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Complete marks a task done, charges a quota action and awards
// completion points. Completing an already-completed task returns
// ErrNotFound rather than charging twice.
func (s *Service) Complete(ctx context.Context, userID, taskID string) (CompleteResult, error) {
	var res CompleteResult

	check, err := s.quota.CanCompleteTask(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("complete task: %w", err)
	}
	if !check.Allowed {
		res.Refused = true
		res.Message = fmt.Sprintf(
			"daily limit reached: %d of %d task actions used today",
			check.CurrentActions, check.Limit,
		)
		return res, nil
	}

	if err := s.store.CompleteTask(taskID, userID); err != nil {
		return res, fmt.Errorf("complete task: %w", err)
	}
	if err := s.quota.RecordAction(ctx, userID, store.ActionComplete); err != nil {
		return res, fmt.Errorf("complete task: record action: %w", err)
	}

	if s.awarder != nil {
		points, err := s.awarder.AwardTaskCompletion(ctx, userID, s.now())
		if err != nil {
			// Points are a side effect; the completion itself stands.
			s.logger.Warn().Err(err).Str("user", userID).Msg("task completion award failed")
		} else {
			res.PointsAwarded = points
		}
	}

	s.logger.Info().Str("user", userID).Str("task", taskID).Msg("task completed")
	return res, nil
}

// Remove deletes a task and attempts to reclaim the quota slot it
// consumed. The removal succeeds even when reclamation is refused.
func (s *Service) Remove(ctx context.Context, userID, taskID string) (RemoveResult, error) {
	var res RemoveResult

	task, err := s.store.DeleteTask(taskID, userID)
	if err != nil {
		return res, fmt.Errorf("remove task: %w", err)
	}
	res.Task = task

	if task.IsComplete {
		res.ReclaimReason = "completed tasks do not return their slot"
		return res, nil
	}

	reclaim, err := s.quota.ReclaimSlot(ctx, userID, time.UnixMilli(task.CreatedAt))
	if err != nil {
		// The task is gone either way; report the removal and log the
		// reclamation failure.
		s.logger.Warn().Err(err).Str("user", userID).Msg("slot reclamation errored")
		res.ReclaimReason = "slot reclamation unavailable"
		return res, nil
	}

	res.SlotReclaimed = reclaim.SlotReclaimed
	res.ReclaimReason = reclaim.Reason
	return res, nil
}

// Stats returns the user's quota usage for today.
func (s *Service) Stats(ctx context.Context, userID string) (quota.DailyStats, error) {
	return s.quota.Stats(ctx, userID)
}
