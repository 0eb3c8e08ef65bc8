// Package reset runs the daily boundary: sessions spanning midnight
// are split so each day keeps its own share, yesterday's stats are
// archived, incomplete tasks are swept with a DM to their owners, and
// the quota counters start fresh.
package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/focusguild/focusbot/internal/metrics"
	"github.com/focusguild/focusbot/internal/notify"
	"github.com/focusguild/focusbot/internal/scoring"
	"github.com/focusguild/focusbot/internal/session"
	"github.com/focusguild/focusbot/internal/store"
)

// Splitter closes and reopens persisted sessions at the day boundary.
type Splitter interface {
	CloseAndSplitAtBoundary(ctx context.Context, userID, channelID string, boundary time.Time, openNew bool) (scoring.SplitResult, error)
}

// ResetStore is the persistence the engine needs beyond sessions.
type ResetStore interface {
	ArchiveVoiceStats(date string, excludeIDs []string) (int64, error)
	UsersWithPendingTasks() ([]store.PendingCleanup, error)
	DeleteIncompleteTasks(userID string) (int64, error)
	ResetQuotasBefore(date string) (int64, error)
}

// GraceCanceler stops a pending grace timer once the engine has
// finalized that user's session itself.
type GraceCanceler interface {
	CancelGrace(userID string)
}

// Invalidator drops cached aggregates after the reset.
type Invalidator interface {
	InvalidatePattern(pattern string) int
}

// Summary is the audit record of one reset run.
type Summary struct {
	Trigger          string
	Boundary         time.Time
	UsersCrossed     int
	CrossoverErrors  int
	SessionsSplit    int
	SessionsClosed   int
	MinutesProcessed int
	PointsAwarded    int
	StatsArchived    int64
	TasksDeleted     int64
	UsersNotified    int
	QuotaRowsReset   int64
	PhaseErrors      []string
	Duration         time.Duration
}

// Engine executes the daily reset. Each phase runs even when an
// earlier one failed; per-user crossover errors never stop the other
// users.
type Engine struct {
	registry *session.Registry
	splitter Splitter
	canceler GraceCanceler
	store    ResetStore
	cache    Invalidator
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewEngine creates a reset Engine. The canceler, notifier and metrics
// may be nil.
func NewEngine(
	registry *session.Registry,
	splitter Splitter,
	canceler GraceCanceler,
	st ResetStore,
	cache Invalidator,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{
		registry: registry,
		splitter: splitter,
		canceler: canceler,
		store:    st,
		cache:    cache,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "reset").Logger(),
	}
}

// Run executes a full reset at the given boundary. Trigger is "timer"
// or "manual" and only feeds logs and metrics.
func (e *Engine) Run(ctx context.Context, trigger string, boundary time.Time) Summary {
	started := time.Now()
	sum := Summary{Trigger: trigger, Boundary: boundary}

	e.logger.Info().Str("trigger", trigger).Time("boundary", boundary).Msg("daily reset starting")

	// One snapshot drives both the crossover and the archive exclusion:
	// the crossover empties the grace set, and grace users' rewritten
	// rows must not be archived either.
	users := e.registry.UnionUsers()

	e.runCrossover(ctx, boundary, users, &sum)
	e.runArchive(boundary, users, &sum)
	e.runCacheFlush(&sum)
	e.runTaskSweep(ctx, &sum)
	e.runQuotaReset(boundary, &sum)

	sum.Duration = time.Since(started)

	if e.metrics != nil {
		e.metrics.RecordResetRun(trigger)
		e.metrics.ResetDuration.Observe(sum.Duration.Seconds())
		for range sum.PhaseErrors {
			e.metrics.ResetErrorsTotal.Inc()
		}
	}

	e.logger.Info().
		Int("users_crossed", sum.UsersCrossed).
		Int("crossover_errors", sum.CrossoverErrors).
		Int("minutes_processed", sum.MinutesProcessed).
		Int("points_awarded", sum.PointsAwarded).
		Int64("stats_archived", sum.StatsArchived).
		Int64("tasks_deleted", sum.TasksDeleted).
		Int64("quota_rows_reset", sum.QuotaRowsReset).
		Dur("duration", sum.Duration).
		Msg("daily reset finished")

	return sum
}

// runCrossover splits every in-flight session at the boundary.
// Active users get a fresh session starting at the boundary in the
// same channel; grace users are closed for good.
func (e *Engine) runCrossover(ctx context.Context, boundary time.Time, users []string, sum *Summary) {
	sum.UsersCrossed = len(users)

	for _, userID := range users {
		closed, err := e.crossUser(ctx, userID, boundary)
		if err != nil {
			sum.CrossoverErrors++
			e.logger.Error().Err(err).Str("user", userID).Msg("crossover failed")
			continue
		}
		sum.MinutesProcessed += closed.DurationMinutes
		sum.PointsAwarded += closed.PointsEarned
		if e.registry.HasActive(userID) {
			sum.SessionsSplit++
		} else {
			sum.SessionsClosed++
		}
	}
}

// crossUser splits one user's session and returns the scored yesterday
// half for the run's totals.
func (e *Engine) crossUser(ctx context.Context, userID string, boundary time.Time) (scoring.ClosedSession, error) {
	if g, ok := e.registry.GetGrace(userID); ok {
		// Never reconnected before midnight: the session ends at the
		// boundary and the user leaves both maps.
		if e.canceler != nil {
			e.canceler.CancelGrace(userID)
		}
		res, err := e.splitter.CloseAndSplitAtBoundary(ctx, userID, g.ChannelID, boundary, false)
		if err != nil {
			return scoring.ClosedSession{}, fmt.Errorf("close grace session: %w", err)
		}
		e.registry.DeleteGrace(userID)
		e.registry.DeleteActive(userID)
		return res.YesterdaySession, nil
	}

	a, ok := e.registry.GetActive(userID)
	if !ok {
		return scoring.ClosedSession{}, nil
	}

	res, err := e.splitter.CloseAndSplitAtBoundary(ctx, userID, a.ChannelID, boundary, true)
	if err != nil {
		return scoring.ClosedSession{}, fmt.Errorf("split active session: %w", err)
	}
	if res.TodaySession == nil {
		return scoring.ClosedSession{}, fmt.Errorf("split active session: no new session opened")
	}

	e.registry.SetActive(userID, session.ActiveEntry{
		ChannelID: a.ChannelID,
		JoinTime:  boundary,
		SessionID: res.TodaySession.ID,
		LastSeen:  boundary,
	})
	return res.YesterdaySession, nil
}

// runArchive marks yesterday's stats rows archived, except for users
// who had a session in flight at the boundary (active or grace).
func (e *Engine) runArchive(boundary time.Time, exclude []string, sum *Summary) {
	yesterday := store.DateOf(boundary.AddDate(0, 0, -1))

	n, err := e.store.ArchiveVoiceStats(yesterday, exclude)
	if err != nil {
		sum.PhaseErrors = append(sum.PhaseErrors, fmt.Sprintf("archive: %v", err))
		e.logger.Error().Err(err).Msg("stats archive failed")
		return
	}
	sum.StatsArchived = n
}

func (e *Engine) runCacheFlush(sum *Summary) {
	if e.cache == nil {
		return
	}
	n := e.cache.InvalidatePattern("user_stats*")
	n += e.cache.InvalidatePattern("daily_voice*")
	n += e.cache.InvalidatePattern("leaderboard*")
	if e.metrics != nil {
		e.metrics.CacheInvalidations.Add(float64(n))
	}
	e.logger.Debug().Int("entries", n).Msg("caches flushed")
}

// runTaskSweep deletes every incomplete task and tells each owner what
// was removed. Notification failures are logged and swallowed.
func (e *Engine) runTaskSweep(ctx context.Context, sum *Summary) {
	pending, err := e.store.UsersWithPendingTasks()
	if err != nil {
		sum.PhaseErrors = append(sum.PhaseErrors, fmt.Sprintf("task sweep: %v", err))
		e.logger.Error().Err(err).Msg("pending task lookup failed")
		return
	}

	for _, p := range pending {
		n, err := e.store.DeleteIncompleteTasks(p.UserID)
		if err != nil {
			sum.PhaseErrors = append(sum.PhaseErrors, fmt.Sprintf("task sweep %s: %v", p.UserID, err))
			e.logger.Error().Err(err).Str("user", p.UserID).Msg("incomplete task deletion failed")
			continue
		}
		sum.TasksDeleted += n

		msg := notify.CleanupMessage(p.Count, p.Titles)
		if err := e.notifier.NotifyUser(ctx, p.UserID, msg); err != nil {
			e.logger.Warn().Err(err).Str("user", p.UserID).Msg("cleanup dm failed")
			continue
		}
		sum.UsersNotified++
	}
}

func (e *Engine) runQuotaReset(boundary time.Time, sum *Summary) {
	n, err := e.store.ResetQuotasBefore(store.DateOf(boundary))
	if err != nil {
		sum.PhaseErrors = append(sum.PhaseErrors, fmt.Sprintf("quota reset: %v", err))
		e.logger.Error().Err(err).Msg("quota reset failed")
		return
	}
	sum.QuotaRowsReset = n
}
