package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	ferrors "github.com/focusguild/focusbot/internal/errors"
	"github.com/focusguild/focusbot/internal/metrics"
	"github.com/focusguild/focusbot/internal/quota"
	"github.com/focusguild/focusbot/internal/session"
	"github.com/focusguild/focusbot/internal/store"
	"github.com/focusguild/focusbot/internal/task"
)

// TaskService is the to-do list surface the handler delegates to.
type TaskService interface {
	Add(ctx context.Context, userID, title string) (task.AddResult, error)
	Complete(ctx context.Context, userID, taskID string) (task.CompleteResult, error)
	Remove(ctx context.Context, userID, taskID string) (task.RemoveResult, error)
	List(ctx context.Context, userID string) ([]*store.Task, error)
	Stats(ctx context.Context, userID string) (quota.DailyStats, error)
}

// PresenceTracker receives the simulated join/leave events behind
// /focus start and /focus stop.
type PresenceTracker interface {
	HandleJoin(ctx context.Context, userID, channelID string) error
	HandleLeave(ctx context.Context, userID string)
}

// SessionCloser finalizes a persisted session. Used by /recovery save.
type SessionCloser interface {
	CloseSession(ctx context.Context, sessionID string, end time.Time) error
}

// StatsReader serves /dailystats and /leaderboard.
type StatsReader interface {
	GetVoiceStats(userID, date string) (*store.DailyVoiceStats, error)
	Leaderboard(date string, limit int) ([]store.LeaderboardEntry, error)
}

// StatsCache memoizes read-heavy aggregates between invalidations.
type StatsCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, val interface{})
}

const leaderboardSize = 10

// Handler routes slash commands into the services and renders the
// reply text. Every reply is ephemeral to the caller.
type Handler struct {
	tasks    TaskService
	tracker  PresenceTracker
	closer   SessionCloser
	stats    StatsReader
	registry *session.Registry
	cache    StatsCache
	metrics  *metrics.Metrics
	admins   map[string]struct{}
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a slash command handler. adminIDs may be empty, in
// which case the admin commands are open to everyone.
func NewHandler(
	tasks TaskService,
	tracker PresenceTracker,
	closer SessionCloser,
	stats StatsReader,
	registry *session.Registry,
	cache StatsCache,
	m *metrics.Metrics,
	adminIDs []string,
	logger zerolog.Logger,
) *Handler {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		tasks:    tasks,
		tracker:  tracker,
		closer:   closer,
		stats:    stats,
		registry: registry,
		cache:    cache,
		metrics:  m,
		admins:   admins,
		logger:   logger.With().Str("component", "bot.handler").Logger(),
		now:      time.Now,
	}
}

// HandleCommand dispatches one slash command and returns the reply text.
func (h *Handler) HandleCommand(ctx context.Context, cmd slack.SlashCommand) string {
	text := strings.TrimSpace(cmd.Text)
	var reply string
	var err error

	switch cmd.Command {
	case "/addtask":
		reply, err = h.addTask(ctx, cmd.UserID, text)
	case "/completetask":
		reply, err = h.completeTask(ctx, cmd.UserID, text)
	case "/removetask":
		reply, err = h.removeTask(ctx, cmd.UserID, text)
	case "/viewtasks":
		reply, err = h.viewTasks(ctx, cmd.UserID)
	case "/dailystats":
		reply, err = h.dailyStats(ctx, cmd.UserID)
	case "/leaderboard":
		reply, err = h.leaderboard(ctx)
	case "/focus":
		reply, err = h.focus(ctx, cmd.UserID, cmd.ChannelID, text)
	case "/recovery":
		reply, err = h.recovery(ctx, cmd.UserID, text)
	default:
		h.record(cmd.Command, "unknown")
		return fmt.Sprintf("Unknown command %s", cmd.Command)
	}

	if err != nil {
		h.record(cmd.Command, "error")
		h.logger.Error().Err(err).Str("command", cmd.Command).Str("user", cmd.UserID).Msg("command failed")
		return "Something went wrong, please try again."
	}
	h.record(cmd.Command, "ok")
	return reply
}

func (h *Handler) record(command, status string) {
	if h.metrics != nil {
		h.metrics.RecordCommand(strings.TrimPrefix(command, "/"), status)
	}
}

func (h *Handler) addTask(ctx context.Context, userID, title string) (string, error) {
	if title == "" {
		return "Usage: /addtask <description>", nil
	}

	res, err := h.tasks.Add(ctx, userID, title)
	if err != nil {
		return "", err
	}
	if res.Refused {
		if h.metrics != nil {
			h.metrics.QuotaRefusalsTotal.Inc()
		}
		return "❌ " + res.Message, nil
	}
	return fmt.Sprintf("✅ Task added: *%s* (%d/%d daily actions used)",
		res.Task.Title, res.UsedSlot, res.Limit), nil
}

func (h *Handler) completeTask(ctx context.Context, userID, arg string) (string, error) {
	t, msg, err := h.resolveTask(ctx, userID, arg, "/completetask")
	if t == nil {
		return msg, err
	}
	if t.IsComplete {
		return fmt.Sprintf("*%s* is already complete.", t.Title), nil
	}

	res, err := h.tasks.Complete(ctx, userID, t.ID)
	if errors.Is(err, ferrors.ErrNotFound) {
		return "That task no longer exists.", nil
	}
	if err != nil {
		return "", err
	}
	if res.Refused {
		if h.metrics != nil {
			h.metrics.QuotaRefusalsTotal.Inc()
		}
		return "❌ " + res.Message, nil
	}
	return fmt.Sprintf("🎉 Completed *%s* (+%d points)", t.Title, res.PointsAwarded), nil
}

func (h *Handler) removeTask(ctx context.Context, userID, arg string) (string, error) {
	t, msg, err := h.resolveTask(ctx, userID, arg, "/removetask")
	if t == nil {
		return msg, err
	}

	res, err := h.tasks.Remove(ctx, userID, t.ID)
	if errors.Is(err, ferrors.ErrNotFound) {
		return "That task no longer exists.", nil
	}
	if err != nil {
		return "", err
	}
	if h.metrics != nil {
		outcome := "refused"
		if res.SlotReclaimed {
			outcome = "reclaimed"
		}
		h.metrics.RecordReclaim(outcome)
	}
	return fmt.Sprintf("🗑 Removed *%s*. %s.", t.Title, capitalize(res.ReclaimReason)), nil
}

// resolveTask turns a 1-based list position into the task itself.
// Returns a usage message when the argument does not resolve.
func (h *Handler) resolveTask(ctx context.Context, userID, arg, usage string) (*store.Task, string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return nil, fmt.Sprintf("Usage: %s <task number> (see /viewtasks)", usage), nil
	}

	tasks, err := h.tasks.List(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if n > len(tasks) {
		return nil, fmt.Sprintf("You have %d task(s); there is no task %d.", len(tasks), n), nil
	}
	return tasks[n-1], "", nil
}

func (h *Handler) viewTasks(ctx context.Context, userID string) (string, error) {
	tasks, err := h.tasks.List(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "Your task list is empty. Add one with /addtask.", nil
	}

	var b strings.Builder
	b.WriteString("*Your tasks today:*\n")
	for i, t := range tasks {
		mark := "◻️"
		if t.IsComplete {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, mark, t.Title)
	}
	return b.String(), nil
}

func (h *Handler) dailyStats(ctx context.Context, userID string) (string, error) {
	today := store.DateOf(h.now())

	var voice *store.DailyVoiceStats
	key := "user_stats:" + userID + ":" + today
	if h.cache != nil {
		if v, ok := h.cache.Get(key); ok {
			voice = v.(*store.DailyVoiceStats)
		}
	}
	if voice == nil {
		v, err := h.stats.GetVoiceStats(userID, today)
		if err != nil {
			return "", err
		}
		voice = v
		if h.cache != nil && voice != nil {
			h.cache.Set(key, voice)
		}
	}

	q, err := h.tasks.Stats(ctx, userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("*Today's stats:*\n")
	if voice == nil {
		b.WriteString("🎧 No focus time yet.\n")
	} else {
		fmt.Fprintf(&b, "🎧 Focus time: %dh %dm over %d session(s), %d points\n",
			voice.TotalMinutes/60, voice.TotalMinutes%60, voice.SessionCount, voice.PointsEarned)
	}
	fmt.Fprintf(&b, "📋 Tasks: %d added, %d completed\n", q.TasksAdded, q.TasksCompleted)
	fmt.Fprintf(&b, "🎯 Daily actions: %d/%d used (%d remaining)", q.TotalActions, q.Limit, q.Remaining)
	return b.String(), nil
}

func (h *Handler) leaderboard(ctx context.Context) (string, error) {
	today := store.DateOf(h.now())
	key := "leaderboard:" + today

	var entries []store.LeaderboardEntry
	if h.cache != nil {
		if v, ok := h.cache.Get(key); ok {
			entries = v.([]store.LeaderboardEntry)
		}
	}
	if entries == nil {
		var err error
		entries, err = h.stats.Leaderboard(today, leaderboardSize)
		if err != nil {
			return "", err
		}
		if h.cache != nil && len(entries) > 0 {
			h.cache.Set(key, entries)
		}
	}

	if len(entries) == 0 {
		return "No focus points earned yet today.", nil
	}

	var b strings.Builder
	b.WriteString("*Today's leaderboard:*\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. <@%s> — %d points (%dh %dm)\n",
			i+1, e.UserID, e.PointsEarned, e.TotalMinutes/60, e.TotalMinutes%60)
	}
	return b.String(), nil
}

func (h *Handler) focus(ctx context.Context, userID, channelID, arg string) (string, error) {
	switch arg {
	case "start":
		if h.registry.HasActive(userID) {
			return "You already have a focus session running.", nil
		}
		if err := h.tracker.HandleJoin(ctx, userID, channelID); err != nil {
			return "", err
		}
		return "🎧 Focus session started. Stop it with /focus stop.", nil
	case "stop":
		if !h.registry.HasActive(userID) {
			return "No focus session is running.", nil
		}
		h.tracker.HandleLeave(ctx, userID)
		return "🛑 Focus session ending. Rejoin within the grace window to resume it.", nil
	default:
		return "Usage: /focus start | stop", nil
	}
}

// recovery is the admin surface: status reports the in-memory session
// state; save finalizes every in-flight session ahead of maintenance.
func (h *Handler) recovery(ctx context.Context, userID, arg string) (string, error) {
	if len(h.admins) > 0 {
		if _, ok := h.admins[userID]; !ok {
			return "You are not allowed to run /recovery.", nil
		}
	}

	switch arg {
	case "status":
		active, grace := h.registry.Counts()
		return fmt.Sprintf("Sessions: %d active, %d in grace window.", active, grace), nil
	case "save":
		return h.recoverySave(ctx)
	default:
		return "Usage: /recovery status | save", nil
	}
}

func (h *Handler) recoverySave(ctx context.Context) (string, error) {
	now := h.now()
	closed, failed := 0, 0

	for _, id := range h.registry.UnionUsers() {
		sessionID := ""
		if a, ok := h.registry.GetActive(id); ok {
			sessionID = a.SessionID
		} else if g, ok := h.registry.GetGrace(id); ok {
			sessionID = g.SessionID
		}
		if sessionID == "" {
			continue
		}

		if err := h.closer.CloseSession(ctx, sessionID, now); err != nil {
			failed++
			h.logger.Error().Err(err).Str("user", id).Msg("recovery save failed to close session")
			continue
		}
		h.registry.DeleteActive(id)
		h.registry.DeleteGrace(id)
		closed++
	}

	if failed > 0 {
		return fmt.Sprintf("Saved %d session(s); %d failed to close.", closed, failed), nil
	}
	return fmt.Sprintf("Saved %d session(s). All focus time is persisted.", closed), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
