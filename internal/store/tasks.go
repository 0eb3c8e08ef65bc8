package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	ferrors "github.com/focusguild/focusbot/internal/errors"
)

// Task represents a to-do list entry.
type Task struct {
	ID          string
	UserID      string
	Title       string
	IsComplete  bool
	CreatedAt   int64 // unix ms
	CompletedAt int64 // unix ms, 0 = not completed
}

// PendingCleanup summarizes one user's incomplete tasks for the midnight sweep.
type PendingCleanup struct {
	UserID string
	Count  int
	Titles []string
}

// titleSep joins aggregated titles; unit separator never occurs in user text.
const titleSep = "\x1f"

// AddTask inserts a new incomplete task for the user.
func (s *Store) AddTask(userID, title string) (*Task, error) {
	if userID == "" {
		return nil, ferrors.ErrMissingUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UnixMilli(),
	}

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, user_id, title, is_complete, created_at) VALUES (?, ?, ?, 0, ?)`,
		t.ID, t.UserID, t.Title, t.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("add_task", err)
	}
	return t, nil
}

// ListTasks returns the user's tasks ordered by creation time.
func (s *Store) ListTasks(userID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, title, is_complete, created_at, completed_at
		 FROM tasks WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, wrapErr("list_tasks", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		var complete int
		var completedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &complete, &t.CreatedAt, &completedAt); err != nil {
			return nil, wrapErr("scan_task", err)
		}
		t.IsComplete = complete != 0
		if completedAt.Valid {
			t.CompletedAt = completedAt.Int64
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CompleteTask marks a task complete, scoped to its owner. Completing
// an already-complete task is reported as not found so quota is not
// consumed twice.
func (s *Store) CompleteTask(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE tasks SET is_complete = 1, completed_at = ?
		 WHERE id = ? AND user_id = ? AND is_complete = 0`,
		time.Now().UnixMilli(), id, userID,
	)
	if err != nil {
		return wrapErr("complete_task", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrapErr("complete_task_rows", err)
	}
	if rows == 0 {
		return ferrors.ErrNotFound
	}
	return nil
}

// DeleteTask removes a task, scoped to its owner, and returns the
// deleted row so callers can decide on slot reclamation.
func (s *Store) DeleteTask(id, userID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{}
	var complete int
	var completedAt sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, user_id, title, is_complete, created_at, completed_at
		 FROM tasks WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &complete, &t.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ferrors.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("delete_task_lookup", err)
	}
	t.IsComplete = complete != 0
	if completedAt.Valid {
		t.CompletedAt = completedAt.Int64
	}

	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, wrapErr("delete_task", err)
	}
	return t, nil
}

// UsersWithPendingTasks returns, per user, the count and titles of
// incomplete tasks, for the midnight cleanup sweep.
func (s *Store) UsersWithPendingTasks() ([]PendingCleanup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT user_id, COUNT(*), GROUP_CONCAT(title, ?)
		 FROM (SELECT user_id, title FROM tasks WHERE is_complete = 0 ORDER BY created_at)
		 GROUP BY user_id`,
		titleSep,
	)
	if err != nil {
		return nil, wrapErr("pending_tasks", err)
	}
	defer rows.Close()

	var result []PendingCleanup
	for rows.Next() {
		var p PendingCleanup
		var titles string
		if err := rows.Scan(&p.UserID, &p.Count, &titles); err != nil {
			return nil, wrapErr("scan_pending", err)
		}
		if titles != "" {
			p.Titles = strings.Split(titles, titleSep)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeleteIncompleteTasks removes every incomplete task for the user.
// Returns how many were deleted.
func (s *Store) DeleteIncompleteTasks(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM tasks WHERE user_id = ? AND is_complete = 0`, userID)
	if err != nil {
		return 0, wrapErr("delete_incomplete", err)
	}
	return res.RowsAffected()
}
