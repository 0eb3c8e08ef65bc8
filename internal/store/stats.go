package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DailyVoiceStats is one user's accumulated focus time for a date.
type DailyVoiceStats struct {
	UserID       string
	Date         string
	TotalMinutes int
	PointsEarned int
	SessionCount int
	Archived     bool
}

// AccumulateVoiceStats adds minutes, points and closed sessions into
// the user's daily row, creating it if needed. Task awards pass
// sessions = 0 so they do not inflate the session count.
func (s *Store) AccumulateVoiceStats(userID, date string, minutes, points, sessions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO daily_voice_stats (user_id, date, total_minutes, points_earned, session_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			total_minutes = total_minutes + excluded.total_minutes,
			points_earned = points_earned + excluded.points_earned,
			session_count = session_count + excluded.session_count,
			archived = 0,
			updated_at = excluded.updated_at`,
		userID, date, minutes, points, sessions, time.Now().UnixMilli(),
	)
	if err != nil {
		return wrapErr("accumulate_voice_stats", err)
	}
	return nil
}

// GetVoiceStats reads one user's daily voice stats row, or nil if absent.
func (s *Store) GetVoiceStats(userID, date string) (*DailyVoiceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := &DailyVoiceStats{UserID: userID, Date: date}
	var archived int
	err := s.db.QueryRow(
		`SELECT total_minutes, points_earned, session_count, archived
		 FROM daily_voice_stats WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&v.TotalMinutes, &v.PointsEarned, &v.SessionCount, &archived)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get_voice_stats", err)
	}
	v.Archived = archived != 0
	return v, nil
}

// LeaderboardEntry is one row of the daily points ranking.
type LeaderboardEntry struct {
	UserID       string
	TotalMinutes int
	PointsEarned int
}

// Leaderboard returns the top users by points for the date.
func (s *Store) Leaderboard(date string, limit int) ([]LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT user_id, total_minutes, points_earned
		 FROM daily_voice_stats WHERE date = ?
		 ORDER BY points_earned DESC, total_minutes DESC LIMIT ?`,
		date, limit,
	)
	if err != nil {
		return nil, wrapErr("leaderboard", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TotalMinutes, &e.PointsEarned); err != nil {
			return nil, wrapErr("scan_leaderboard", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ArchiveVoiceStats marks every stats row for the date as archived,
// except rows for the excluded users (whose rows were just rewritten by
// the midnight split). Returns how many rows were archived.
func (s *Store) ArchiveVoiceStats(date string, excludeIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE daily_voice_stats SET archived = 1, updated_at = ? WHERE date = ?`
	args := []interface{}{time.Now().UnixMilli(), date}

	if len(excludeIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(excludeIDs)), ",")
		query += fmt.Sprintf(` AND user_id NOT IN (%s)`, placeholders)
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, wrapErr("archive_voice_stats", err)
	}
	return res.RowsAffected()
}
