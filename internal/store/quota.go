package store

import (
	"database/sql"
	"time"
)

// ActionType is a daily quota action.
type ActionType string

const (
	ActionAdd      ActionType = "add"
	ActionComplete ActionType = "complete"
)

// DailyQuota is the per-user-per-day task action counter row.
type DailyQuota struct {
	UserID         string
	Date           string
	TasksAdded     int
	TasksCompleted int
	TotalActions   int
}

// ReclaimCode classifies the outcome of a slot reclamation attempt.
type ReclaimCode int

const (
	ReclaimOK ReclaimCode = iota
	ReclaimNoRow
	ReclaimNothingAdded
	ReclaimBoundExceeded
)

// ReclaimOutcome carries the numeric bounds of a reclamation decision so
// callers can render an explanation.
type ReclaimOutcome struct {
	Code                  ReclaimCode
	Limit                 int
	TasksCompleted        int
	MaxRecoverableSlots   int
	CurrentAvailableSlots int
	NewAvailableSlots     int
}

// RecordTaskAction upserts the quota row for (userID, date) and
// increments the action counters in a single statement, so interleaved
// callers cannot lose an increment.
func (s *Store) RecordTaskAction(userID string, action ActionType, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	tx, err := s.db.Begin()
	if err != nil {
		return wrapErr("record_action_begin", err)
	}
	defer tx.Rollback()

	// Ensure user exists
	if _, err := tx.Exec(
		`INSERT INTO users (user_id, username, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, userID, now,
	); err != nil {
		return wrapErr("record_action_user", err)
	}

	addInc, completeInc := 0, 0
	if action == ActionAdd {
		addInc = 1
	} else {
		completeInc = 1
	}

	if _, err := tx.Exec(
		`INSERT INTO daily_task_stats (user_id, date, tasks_added, tasks_completed, total_task_actions, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			tasks_added = tasks_added + excluded.tasks_added,
			tasks_completed = tasks_completed + excluded.tasks_completed,
			total_task_actions = total_task_actions + 1,
			updated_at = excluded.updated_at`,
		userID, date, addInc, completeInc, now,
	); err != nil {
		return wrapErr("record_action_upsert", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("record_action_commit", err)
	}
	return nil
}

// GetDailyQuota reads the quota row for (userID, date).
// Returns nil if no action has been recorded for that day.
func (s *Store) GetDailyQuota(userID, date string) (*DailyQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := &DailyQuota{UserID: userID, Date: date}
	err := s.db.QueryRow(
		`SELECT tasks_added, tasks_completed, total_task_actions
		 FROM daily_task_stats WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&q.TasksAdded, &q.TasksCompleted, &q.TotalActions)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get_daily_quota", err)
	}
	return q, nil
}

// ReclaimSlot refunds one "add" action for (userID, date), bounded by
// the recoverability invariant: available slots after the refund must not
// exceed limit - tasksCompleted. The check and the decrement run inside
// one transaction so concurrent calls cannot race past the bound.
func (s *Store) ReclaimSlot(userID, date string, limit int) (ReclaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ReclaimOutcome{Limit: limit}

	tx, err := s.db.Begin()
	if err != nil {
		return out, wrapErr("reclaim_begin", err)
	}
	defer tx.Rollback()

	var added, completed, total int
	err = tx.QueryRow(
		`SELECT tasks_added, tasks_completed, total_task_actions
		 FROM daily_task_stats WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&added, &completed, &total)

	if err == sql.ErrNoRows {
		out.Code = ReclaimNoRow
		return out, nil
	}
	if err != nil {
		return out, wrapErr("reclaim_select", err)
	}

	if added == 0 {
		out.Code = ReclaimNothingAdded
		return out, nil
	}

	out.TasksCompleted = completed
	out.MaxRecoverableSlots = limit - completed
	out.CurrentAvailableSlots = limit - total
	out.NewAvailableSlots = limit - (total - 1)

	if out.NewAvailableSlots > out.MaxRecoverableSlots {
		out.Code = ReclaimBoundExceeded
		return out, nil
	}

	if _, err := tx.Exec(
		`UPDATE daily_task_stats
		 SET tasks_added = MAX(0, tasks_added - 1),
			 total_task_actions = MAX(0, total_task_actions - 1),
			 updated_at = ?
		 WHERE user_id = ? AND date = ?`,
		time.Now().UnixMilli(), userID, date,
	); err != nil {
		return out, wrapErr("reclaim_update", err)
	}

	if err := tx.Commit(); err != nil {
		return out, wrapErr("reclaim_commit", err)
	}

	out.Code = ReclaimOK
	return out, nil
}

// ResetQuotasBefore zeroes every quota row dated strictly before the
// given date. Returns the number of rows reset.
func (s *Store) ResetQuotasBefore(date string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE daily_task_stats
		 SET tasks_added = 0, tasks_completed = 0, total_task_actions = 0, updated_at = ?
		 WHERE date < ?`,
		time.Now().UnixMilli(), date,
	)
	if err != nil {
		return 0, wrapErr("reset_quotas", err)
	}
	return res.RowsAffected()
}
