// Package scoring closes focus sessions, converts their duration into
// points, and splits sessions that span the day boundary.
package scoring

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	ferrors "github.com/focusguild/focusbot/internal/errors"
	"github.com/focusguild/focusbot/internal/store"
)

// SessionStore is the persistence the scorer needs.
type SessionStore interface {
	OpenSession(userID, channelID string, start time.Time) (*store.VoiceSession, error)
	CloseSession(id string, end time.Time, durationMinutes, points int) error
	GetSession(id string) (*store.VoiceSession, error)
	GetOpenSession(userID string) (*store.VoiceSession, error)
	AccumulateVoiceStats(userID, date string, minutes, points, sessions int) error
}

// ClosedSession is the scored outcome of a closed session half.
type ClosedSession struct {
	ID              string
	DurationMinutes int
	PointsEarned    int
}

// SplitResult is the outcome of a midnight crossover for one user.
// TodaySession is nil when no new session was opened (grace branch).
type SplitResult struct {
	YesterdaySession ClosedSession
	TodaySession     *store.VoiceSession
}

// Service scores sessions against the configured points model.
type Service struct {
	store  SessionStore
	cfg    Config
	logger zerolog.Logger
}

// NewService creates a scoring Service.
func NewService(st SessionStore, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "scoring").Logger(),
	}
}

// TaskCompletionPoints returns the configured per-completion award.
func (s *Service) TaskCompletionPoints() int {
	return s.cfg.TaskCompletionPoints
}

// AwardTaskCompletion credits the per-completion points into the
// user's daily stats and returns the amount awarded.
func (s *Service) AwardTaskCompletion(ctx context.Context, userID string, when time.Time) (int, error) {
	points := s.cfg.TaskCompletionPoints
	if points == 0 {
		return 0, nil
	}
	if err := s.store.AccumulateVoiceStats(userID, store.DateOf(when), 0, points, 0); err != nil {
		return 0, err
	}
	return points, nil
}

// ScoredHours converts a duration in minutes into scored hours: full
// hours, plus one more when the trailing partial hour reaches the
// round-up threshold.
func (s *Service) ScoredHours(minutes int) int {
	if minutes < 0 {
		return 0
	}
	hours := minutes / 60
	if minutes%60 >= s.cfg.RoundUpMinutes {
		hours++
	}
	return hours
}

// SessionPoints returns the points a session of the given length earns.
func (s *Service) SessionPoints(minutes int) int {
	return s.ScoredHours(minutes) * s.cfg.PointsPerHour
}

// OpenSession starts a persisted session and returns its ID.
func (s *Service) OpenSession(ctx context.Context, userID, channelID string, start time.Time) (string, error) {
	if userID == "" {
		return "", ferrors.ErrMissingUser
	}
	v, err := s.store.OpenSession(userID, channelID, start)
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

// CloseSession finalizes an open session at end, scoring the elapsed
// time and folding it into the session's daily stats row.
func (s *Service) CloseSession(ctx context.Context, sessionID string, end time.Time) error {
	_, err := s.close(ctx, sessionID, end)
	return err
}

// CloseAndSplitAtBoundary implements the midnight crossover for one
// user: the open session is closed at the boundary with its elapsed
// duration and points attributed to the old day; when openNew is set a
// fresh session is opened at the boundary on the same channel.
func (s *Service) CloseAndSplitAtBoundary(ctx context.Context, userID, channelID string, boundary time.Time, openNew bool) (SplitResult, error) {
	var result SplitResult
	if userID == "" {
		return result, ferrors.ErrMissingUser
	}

	open, err := s.store.GetOpenSession(userID)
	if err != nil {
		return result, err
	}
	if open == nil {
		return result, ferrors.ErrNotFound
	}

	closed, err := s.close(ctx, open.ID, boundary)
	if err != nil {
		return result, err
	}
	result.YesterdaySession = closed

	if openNew {
		today, err := s.store.OpenSession(userID, channelID, boundary)
		if err != nil {
			return result, err
		}
		result.TodaySession = today
	}

	return result, nil
}

func (s *Service) close(ctx context.Context, sessionID string, end time.Time) (ClosedSession, error) {
	var closed ClosedSession

	v, err := s.store.GetSession(sessionID)
	if err != nil {
		return closed, err
	}
	if v == nil {
		return closed, ferrors.ErrNotFound
	}

	minutes := int(end.Sub(time.UnixMilli(v.StartedAt)).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	points := s.SessionPoints(minutes)

	if err := s.store.CloseSession(sessionID, end, minutes, points); err != nil {
		return closed, err
	}
	if err := s.store.AccumulateVoiceStats(v.UserID, v.Date, minutes, points, 1); err != nil {
		return closed, err
	}

	s.logger.Debug().
		Str("session", sessionID).
		Str("user", v.UserID).
		Int("minutes", minutes).
		Int("points", points).
		Msg("session closed")

	return ClosedSession{ID: sessionID, DurationMinutes: minutes, PointsEarned: points}, nil
}
