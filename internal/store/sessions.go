package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	ferrors "github.com/focusguild/focusbot/internal/errors"
)

// VoiceSession is one persisted focus session. Open sessions have
// EndedAt == 0.
type VoiceSession struct {
	ID              string
	UserID          string
	ChannelID       string
	Date            string
	StartedAt       int64 // unix ms
	EndedAt         int64 // unix ms, 0 = open
	DurationMinutes int
	PointsEarned    int
}

// OpenSession inserts a fresh open session starting at start.
func (s *Store) OpenSession(userID, channelID string, start time.Time) (*VoiceSession, error) {
	if userID == "" {
		return nil, ferrors.ErrMissingUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := &VoiceSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		ChannelID: channelID,
		Date:      DateOf(start),
		StartedAt: start.UnixMilli(),
	}

	_, err := s.db.Exec(
		`INSERT INTO voice_sessions (id, user_id, channel_id, date, started_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.ChannelID, v.Date, v.StartedAt,
	)
	if err != nil {
		return nil, wrapErr("open_session", err)
	}
	return v, nil
}

// CloseSession finalizes an open session with its scored duration and points.
func (s *Store) CloseSession(id string, end time.Time, durationMinutes, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE voice_sessions SET ended_at = ?, duration_minutes = ?, points_earned = ?
		 WHERE id = ? AND ended_at IS NULL`,
		end.UnixMilli(), durationMinutes, points, id,
	)
	if err != nil {
		return wrapErr("close_session", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrapErr("close_session_rows", err)
	}
	if rows == 0 {
		return ferrors.ErrNotFound
	}
	return nil
}

// GetOpenSession returns the user's open session, or nil if none.
func (s *Store) GetOpenSession(userID string) (*VoiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := &VoiceSession{UserID: userID}
	err := s.db.QueryRow(
		`SELECT id, channel_id, date, started_at FROM voice_sessions
		 WHERE user_id = ? AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		userID,
	).Scan(&v.ID, &v.ChannelID, &v.Date, &v.StartedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get_open_session", err)
	}
	return v, nil
}

// GetSession returns a session by ID, or nil if absent.
func (s *Store) GetSession(id string) (*VoiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := &VoiceSession{ID: id}
	var endedAt, duration, points sql.NullInt64
	err := s.db.QueryRow(
		`SELECT user_id, channel_id, date, started_at, ended_at, duration_minutes, points_earned
		 FROM voice_sessions WHERE id = ?`,
		id,
	).Scan(&v.UserID, &v.ChannelID, &v.Date, &v.StartedAt, &endedAt, &duration, &points)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get_session", err)
	}
	if endedAt.Valid {
		v.EndedAt = endedAt.Int64
	}
	if duration.Valid {
		v.DurationMinutes = int(duration.Int64)
	}
	if points.Valid {
		v.PointsEarned = int(points.Int64)
	}
	return v, nil
}
