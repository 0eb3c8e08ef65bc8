package bot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusguild/focusbot/internal/cache"
	"github.com/focusguild/focusbot/internal/quota"
	"github.com/focusguild/focusbot/internal/scoring"
	"github.com/focusguild/focusbot/internal/session"
	"github.com/focusguild/focusbot/internal/store"
	"github.com/focusguild/focusbot/internal/task"
)

type handlerFixture struct {
	handler  *Handler
	store    *store.Store
	registry *session.Registry
	tracker  *session.Tracker
}

func newHandlerFixture(t *testing.T, limit int, admins []string) *handlerFixture {
	t.Helper()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	st, err := store.New(t.TempDir()+"/bot.db", logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c := cache.New(64, time.Minute)
	q := quota.NewManager(st, c, limit, nil, logger)
	scorer := scoring.NewService(st, scoring.DefaultConfig(), logger)
	tasks := task.NewService(st, q, scorer, logger)
	registry := session.NewRegistry()
	tracker := session.NewTracker(registry, scorer, time.Minute, logger)
	t.Cleanup(tracker.Stop)

	return &handlerFixture{
		handler:  NewHandler(tasks, tracker, scorer, st, registry, c, nil, admins, logger),
		store:    st,
		registry: registry,
		tracker:  tracker,
	}
}

func cmd(command, userID, text string) slack.SlashCommand {
	return slack.SlashCommand{Command: command, UserID: userID, ChannelID: "C-huddle", Text: text}
}

func TestHandler_AddViewComplete(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()

	reply := f.handler.HandleCommand(ctx, cmd("/addtask", "u1", "write report"))
	assert.Contains(t, reply, "Task added")
	assert.Contains(t, reply, "1/10")

	f.handler.HandleCommand(ctx, cmd("/addtask", "u1", "review notes"))

	reply = f.handler.HandleCommand(ctx, cmd("/viewtasks", "u1", ""))
	assert.Contains(t, reply, "1. ◻️ write report")
	assert.Contains(t, reply, "2. ◻️ review notes")

	reply = f.handler.HandleCommand(ctx, cmd("/completetask", "u1", "1"))
	assert.Contains(t, reply, "Completed *write report*")
	assert.Contains(t, reply, "+2 points")

	reply = f.handler.HandleCommand(ctx, cmd("/completetask", "u1", "1"))
	assert.Contains(t, reply, "already complete")
}

func TestHandler_AddTask_LimitRefusal(t *testing.T) {
	f := newHandlerFixture(t, 1, nil)
	ctx := context.Background()

	f.handler.HandleCommand(ctx, cmd("/addtask", "u1", "one"))
	reply := f.handler.HandleCommand(ctx, cmd("/addtask", "u1", "two"))
	assert.Contains(t, reply, "daily limit reached")
	assert.Contains(t, reply, "1 of 1")
}

func TestHandler_RemoveTask_Reclaims(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()

	f.handler.HandleCommand(ctx, cmd("/addtask", "u1", "changed my mind"))
	reply := f.handler.HandleCommand(ctx, cmd("/removetask", "u1", "1"))
	assert.Contains(t, reply, "Removed *changed my mind*")
	assert.Contains(t, reply, "reclaimed")

	// The slot is free again.
	reply = f.handler.HandleCommand(ctx, cmd("/dailystats", "u1", ""))
	assert.Contains(t, reply, "0/10 used")
}

func TestHandler_BadTaskNumber(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()

	reply := f.handler.HandleCommand(ctx, cmd("/completetask", "u1", "nope"))
	assert.Contains(t, reply, "Usage: /completetask")

	reply = f.handler.HandleCommand(ctx, cmd("/removetask", "u1", "7"))
	assert.Contains(t, reply, "no task 7")
}

func TestHandler_FocusStartStop(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()

	reply := f.handler.HandleCommand(ctx, cmd("/focus", "u1", "start"))
	assert.Contains(t, reply, "Focus session started")
	assert.True(t, f.registry.HasActive("u1"))

	reply = f.handler.HandleCommand(ctx, cmd("/focus", "u1", "start"))
	assert.Contains(t, reply, "already have")

	reply = f.handler.HandleCommand(ctx, cmd("/focus", "u1", "stop"))
	assert.Contains(t, reply, "grace window")
	assert.False(t, f.registry.HasActive("u1"))
	assert.True(t, f.registry.HasGrace("u1"))

	reply = f.handler.HandleCommand(ctx, cmd("/focus", "u1", "stop"))
	assert.Contains(t, reply, "No focus session")
}

func TestHandler_DailyStats(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()
	today := store.DateOf(time.Now())

	require.NoError(t, f.store.AccumulateVoiceStats("u1", today, 95, 5, 2))
	f.handler.HandleCommand(ctx, cmd("/addtask", "u1", "one"))

	reply := f.handler.HandleCommand(ctx, cmd("/dailystats", "u1", ""))
	assert.Contains(t, reply, "1h 35m")
	assert.Contains(t, reply, "2 session(s)")
	assert.Contains(t, reply, "1 added, 0 completed")
	assert.Contains(t, reply, "1/10 used")
}

func TestHandler_Leaderboard(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()
	today := store.DateOf(time.Now())

	require.NoError(t, f.store.AccumulateVoiceStats("u1", today, 120, 10, 1))
	require.NoError(t, f.store.AccumulateVoiceStats("u2", today, 240, 20, 1))

	reply := f.handler.HandleCommand(ctx, cmd("/leaderboard", "u1", ""))
	assert.Contains(t, reply, "1. <@u2> — 20 points")
	assert.Contains(t, reply, "2. <@u1> — 10 points")
}

func TestHandler_RecoveryAdminGate(t *testing.T) {
	f := newHandlerFixture(t, 10, []string{"admin"})
	ctx := context.Background()

	reply := f.handler.HandleCommand(ctx, cmd("/recovery", "u1", "status"))
	assert.Contains(t, reply, "not allowed")

	reply = f.handler.HandleCommand(ctx, cmd("/recovery", "admin", "status"))
	assert.Contains(t, reply, "0 active, 0 in grace")
}

func TestHandler_RecoverySave(t *testing.T) {
	f := newHandlerFixture(t, 10, nil)
	ctx := context.Background()

	f.handler.HandleCommand(ctx, cmd("/focus", "u1", "start"))
	f.handler.HandleCommand(ctx, cmd("/focus", "u2", "start"))
	f.handler.HandleCommand(ctx, cmd("/focus", "u2", "stop"))

	reply := f.handler.HandleCommand(ctx, cmd("/recovery", "u1", "save"))
	assert.Contains(t, reply, "Saved 2 session(s)")

	active, grace := f.registry.Counts()
	assert.Zero(t, active)
	assert.Zero(t, grace)

	open, err := f.store.GetOpenSession("u1")
	require.NoError(t, err)
	assert.Nil(t, open)
}
