// Package quota enforces the daily task-action limit and decides slot
// reclamation. The store only counts; refusal happens here, at the
// call site, with the numeric bounds attached so the command surface
// can explain itself.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	ferrors "github.com/focusguild/focusbot/internal/errors"
	"github.com/focusguild/focusbot/internal/metrics"
	"github.com/focusguild/focusbot/internal/retry"
	"github.com/focusguild/focusbot/internal/store"
)

// Store is the persistence the quota manager needs.
type Store interface {
	RecordTaskAction(userID string, action store.ActionType, date string) error
	GetDailyQuota(userID, date string) (*store.DailyQuota, error)
	ReclaimSlot(userID, date string, limit int) (store.ReclaimOutcome, error)
}

// Invalidator drops cached aggregates after a mutation.
type Invalidator interface {
	Invalidate(key string) bool
	InvalidatePattern(pattern string) int
}

// CheckResult says whether a task action is currently allowed.
type CheckResult struct {
	Allowed        bool
	CurrentActions int
	Remaining      int
	Limit          int
}

// DailyStats is the user's quota usage for today.
type DailyStats struct {
	TasksAdded     int
	TasksCompleted int
	TotalActions   int
	Remaining      int
	Limit          int
	LimitReached   bool
}

// ReclaimResult is the structured outcome of a reclamation attempt.
// Refusals are results, not errors.
type ReclaimResult struct {
	SlotReclaimed       bool
	Reason              string
	Limit               int
	TasksCompleted      int
	MaxRecoverableSlots int
	NewAvailableSlots   int
}

// Manager is the quota store front plus the slot reclamation engine.
type Manager struct {
	store    Store
	cache    Invalidator
	limit    int
	metrics  *metrics.Metrics
	retryCfg retry.Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates a quota Manager with the given daily limit.
// Metrics may be nil.
func NewManager(st Store, cache Invalidator, limit int, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    st,
		cache:    cache,
		limit:    limit,
		metrics:  m,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "quota").Logger(),
		now:      time.Now,
	}
}

// Limit returns the configured daily action limit.
func (m *Manager) Limit() int { return m.limit }

// CanAddTask reports whether the user may consume another quota action today.
func (m *Manager) CanAddTask(ctx context.Context, userID string) (CheckResult, error) {
	return m.check(ctx, userID)
}

// CanCompleteTask reports whether the user may complete a task today.
// Adds and completions draw from the same daily allowance.
func (m *Manager) CanCompleteTask(ctx context.Context, userID string) (CheckResult, error) {
	return m.check(ctx, userID)
}

func (m *Manager) check(ctx context.Context, userID string) (CheckResult, error) {
	res := CheckResult{Limit: m.limit}
	if userID == "" {
		return res, ferrors.ErrMissingUser
	}

	today := store.DateOf(m.now())

	var q *store.DailyQuota
	err := retry.Do(ctx, m.retryCfg, func(ctx context.Context) error {
		var err error
		q, err = m.store.GetDailyQuota(userID, today)
		return err
	})
	if err != nil {
		return res, err
	}

	if q != nil {
		res.CurrentActions = q.TotalActions
	}
	res.Remaining = m.limit - res.CurrentActions
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.Allowed = res.CurrentActions < m.limit
	return res, nil
}

// RecordAction charges one quota action and drops the user's cached
// aggregates. The upsert-and-increment is a single transactional unit
// in the store.
func (m *Manager) RecordAction(ctx context.Context, userID string, action store.ActionType) error {
	if userID == "" {
		return ferrors.ErrMissingUser
	}

	today := store.DateOf(m.now())
	err := retry.Do(ctx, m.retryCfg, func(ctx context.Context) error {
		return m.store.RecordTaskAction(userID, action, today)
	})
	if err != nil {
		return err
	}

	m.invalidateUser(userID)
	return nil
}

// Stats returns the user's quota usage for today.
func (m *Manager) Stats(ctx context.Context, userID string) (DailyStats, error) {
	stats := DailyStats{Limit: m.limit, Remaining: m.limit}
	if userID == "" {
		return stats, ferrors.ErrMissingUser
	}

	today := store.DateOf(m.now())

	var q *store.DailyQuota
	err := retry.Do(ctx, m.retryCfg, func(ctx context.Context) error {
		var err error
		q, err = m.store.GetDailyQuota(userID, today)
		return err
	})
	if err != nil {
		return stats, err
	}

	if q != nil {
		stats.TasksAdded = q.TasksAdded
		stats.TasksCompleted = q.TasksCompleted
		stats.TotalActions = q.TotalActions
		stats.Remaining = m.limit - q.TotalActions
		if stats.Remaining < 0 {
			stats.Remaining = 0
		}
	}
	stats.LimitReached = stats.TotalActions >= m.limit
	return stats, nil
}

// ReclaimSlot refunds the quota action a removed task consumed, when
// permitted. Only tasks created today qualify, and the refund may never
// push available slots past limit - tasksCompleted.
func (m *Manager) ReclaimSlot(ctx context.Context, userID string, taskCreatedAt time.Time) (ReclaimResult, error) {
	res := ReclaimResult{Limit: m.limit}
	if userID == "" {
		return res, ferrors.ErrMissingUser
	}

	today := store.DateOf(m.now())
	if store.DateOf(taskCreatedAt) != today {
		res.Reason = "task was created on a different day"
		return res, nil
	}

	var out store.ReclaimOutcome
	err := retry.Do(ctx, m.retryCfg, func(ctx context.Context) error {
		var err error
		out, err = m.store.ReclaimSlot(userID, today, m.limit)
		return err
	})
	if err != nil {
		return res, err
	}

	res.TasksCompleted = out.TasksCompleted
	res.MaxRecoverableSlots = out.MaxRecoverableSlots
	res.NewAvailableSlots = out.NewAvailableSlots

	switch out.Code {
	case store.ReclaimNoRow, store.ReclaimNothingAdded:
		res.Reason = "no task additions recorded for today"
	case store.ReclaimBoundExceeded:
		res.Reason = fmt.Sprintf(
			"cannot reclaim slot: maximum recoverable slots is %d (you've completed %d tasks today)",
			out.MaxRecoverableSlots, out.TasksCompleted,
		)
	case store.ReclaimOK:
		res.SlotReclaimed = true
		res.Reason = "task slot successfully reclaimed"
		m.invalidateUser(userID)
	}

	m.logger.Debug().
		Str("user", userID).
		Bool("reclaimed", res.SlotReclaimed).
		Str("reason", res.Reason).
		Msg("slot reclamation decided")

	return res, nil
}

func (m *Manager) invalidateUser(userID string) {
	n := m.cache.InvalidatePattern("user_tasks:" + userID + "*")
	n += m.cache.InvalidatePattern("user_stats:" + userID + "*")
	if m.cache.Invalidate("daily_quota:" + userID) {
		n++
	}
	if m.metrics != nil {
		m.metrics.CacheInvalidations.Add(float64(n))
	}
}
