package reset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusguild/focusbot/internal/cache"
	"github.com/focusguild/focusbot/internal/metrics"
	"github.com/focusguild/focusbot/internal/scoring"
	"github.com/focusguild/focusbot/internal/session"
	"github.com/focusguild/focusbot/internal/store"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[string]string
	err      error
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID, message string) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = make(map[string]string)
	}
	n.messages[userID] = message
	return nil
}

type recordingCanceler struct {
	cancelled []string
}

func (c *recordingCanceler) CancelGrace(userID string) {
	c.cancelled = append(c.cancelled, userID)
}

type fixture struct {
	engine   *Engine
	store    *store.Store
	scorer   *scoring.Service
	registry *session.Registry
	notifier *recordingNotifier
	canceler *recordingCanceler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	st, err := store.New(t.TempDir()+"/reset.db", logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:    st,
		scorer:   scoring.NewService(st, scoring.DefaultConfig(), logger),
		registry: session.NewRegistry(),
		notifier: &recordingNotifier{},
		canceler: &recordingCanceler{},
	}
	f.engine = NewEngine(
		f.registry, f.scorer, f.canceler, st,
		cache.New(64, time.Minute), f.notifier, nil, logger,
	)
	return f
}

// openAt persists an open session starting at the given time and puts
// the user in the active set.
func (f *fixture) openAt(t *testing.T, userID, channelID string, start time.Time) string {
	t.Helper()
	id, err := f.scorer.OpenSession(context.Background(), userID, channelID, start)
	require.NoError(t, err)
	f.registry.SetActive(userID, session.ActiveEntry{
		ChannelID: channelID,
		JoinTime:  start,
		SessionID: id,
		LastSeen:  start,
	})
	return id
}

var boundary = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestEngine_SplitsActiveSession(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC)
	oldID := f.openAt(t, "u1", "focus-room", start)

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, 1, sum.UsersCrossed)
	assert.Equal(t, 1, sum.SessionsSplit)
	assert.Zero(t, sum.CrossoverErrors)
	assert.Equal(t, 120, sum.MinutesProcessed)
	assert.Equal(t, 10, sum.PointsAwarded)

	// Yesterday's half: 22:00 to midnight, 120 minutes, 10 points.
	old, err := f.store.GetSession(oldID)
	require.NoError(t, err)
	assert.Equal(t, 120, old.DurationMinutes)
	assert.Equal(t, 10, old.PointsEarned)

	// The user stays active on a fresh session starting at midnight.
	a, ok := f.registry.GetActive("u1")
	require.True(t, ok)
	assert.NotEqual(t, oldID, a.SessionID)
	assert.Equal(t, "focus-room", a.ChannelID)
	assert.Equal(t, boundary, a.JoinTime)

	open, err := f.store.GetOpenSession("u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "2025-03-10", open.Date)
}

func TestEngine_ClosesGraceSession(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	id := f.openAt(t, "u1", "focus-room", start)
	a, _ := f.registry.GetActive("u1")
	f.registry.DeleteActive("u1")
	f.registry.SetGrace("u1", session.GraceEntry{
		ChannelID:      a.ChannelID,
		SessionID:      a.SessionID,
		DisconnectedAt: start.Add(50 * time.Minute),
	})

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, 1, sum.SessionsClosed)
	assert.Zero(t, sum.SessionsSplit)
	assert.Equal(t, 60, sum.MinutesProcessed)
	assert.Equal(t, 5, sum.PointsAwarded)
	assert.False(t, f.registry.HasGrace("u1"))
	assert.False(t, f.registry.HasActive("u1"))
	assert.Equal(t, []string{"u1"}, f.canceler.cancelled)

	closed, err := f.store.GetSession(id)
	require.NoError(t, err)
	assert.NotZero(t, closed.EndedAt)
	assert.Equal(t, 60, closed.DurationMinutes)

	open, err := f.store.GetOpenSession("u1")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestEngine_CrossoverErrorIsolated(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC)
	f.openAt(t, "good", "focus-room", start)

	// Registry claims a session the store never saw.
	f.registry.SetActive("ghost", session.ActiveEntry{
		ChannelID: "focus-room",
		SessionID: "missing",
		JoinTime:  start,
	})

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, 2, sum.UsersCrossed)
	assert.Equal(t, 1, sum.CrossoverErrors)
	assert.Equal(t, 1, sum.SessionsSplit)

	// The healthy user crossed over regardless.
	open, err := f.store.GetOpenSession("good")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "2025-03-10", open.Date)
}

func TestEngine_ArchivesExceptCarriedOver(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC)
	f.openAt(t, "u1", "focus-room", start)
	require.NoError(t, f.store.AccumulateVoiceStats("u2", "2025-03-09", 45, 3, 1))

	// A grace-window user's rewritten row is spared too, even though
	// the crossover empties the grace set before the archive runs.
	graceID := f.openAt(t, "g1", "focus-room", start.Add(30*time.Minute))
	f.registry.DeleteActive("g1")
	f.registry.SetGrace("g1", session.GraceEntry{
		ChannelID:      "focus-room",
		SessionID:      graceID,
		DisconnectedAt: start.Add(90 * time.Minute),
	})

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, int64(1), sum.StatsArchived)

	v, err := f.store.GetVoiceStats("u2", "2025-03-09")
	require.NoError(t, err)
	assert.True(t, v.Archived)

	v, err = f.store.GetVoiceStats("u1", "2025-03-09")
	require.NoError(t, err)
	assert.False(t, v.Archived)

	v, err = f.store.GetVoiceStats("g1", "2025-03-09")
	require.NoError(t, err)
	assert.False(t, v.Archived)
}

func TestEngine_CacheFlushCountsInvalidations(t *testing.T) {
	f := newFixture(t)
	c := cache.New(64, time.Minute)
	c.Set("user_stats:u1:2025-03-09", 1)
	c.Set("unrelated", 1)
	m := metrics.New()
	engine := NewEngine(f.registry, f.scorer, nil, f.store, c, f.notifier, m, zerolog.Nop())

	engine.Run(context.Background(), "timer", boundary)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "focusbot_cache_invalidations_total 1")
}

func TestEngine_SweepsTasksAndNotifies(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.AddTask("u1", "unfinished alpha")
	require.NoError(t, err)
	_, err = f.store.AddTask("u1", "unfinished beta")
	require.NoError(t, err)
	done, err := f.store.AddTask("u2", "finished")
	require.NoError(t, err)
	require.NoError(t, f.store.CompleteTask(done.ID, "u2"))

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, int64(2), sum.TasksDeleted)
	assert.Equal(t, 1, sum.UsersNotified)
	assert.Contains(t, f.notifier.messages["u1"], "unfinished alpha")
	assert.Contains(t, f.notifier.messages["u1"], "unfinished beta")
	assert.NotContains(t, f.notifier.messages, "u2")

	// Completed tasks survive the sweep.
	tasks, err := f.store.ListTasks("u2")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestEngine_NotifyFailureDoesNotStopSweep(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("slack down")

	_, err := f.store.AddTask("u1", "unfinished")
	require.NoError(t, err)

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, int64(1), sum.TasksDeleted)
	assert.Zero(t, sum.UsersNotified)
	assert.Empty(t, sum.PhaseErrors)
}

func TestEngine_ResetsQuotaRows(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.RecordTaskAction("u1", store.ActionAdd, "2025-03-09"))
	require.NoError(t, f.store.RecordTaskAction("u1", store.ActionAdd, "2025-03-09"))
	require.NoError(t, f.store.RecordTaskAction("u2", store.ActionAdd, "2025-03-10"))

	sum := f.engine.Run(context.Background(), "timer", boundary)

	assert.Equal(t, int64(1), sum.QuotaRowsReset)

	q, err := f.store.GetDailyQuota("u1", "2025-03-09")
	require.NoError(t, err)
	assert.Zero(t, q.TotalActions)

	q, err = f.store.GetDailyQuota("u2", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 1, q.TotalActions)
}

// failingStore lets single phases fail while the rest run on a real store.
type failingStore struct {
	*store.Store
	archiveErr error
	pendingErr error
}

func (f *failingStore) ArchiveVoiceStats(date string, excludeIDs []string) (int64, error) {
	if f.archiveErr != nil {
		return 0, f.archiveErr
	}
	return f.Store.ArchiveVoiceStats(date, excludeIDs)
}

func (f *failingStore) UsersWithPendingTasks() ([]store.PendingCleanup, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return f.Store.UsersWithPendingTasks()
}

func TestEngine_PhaseErrorDoesNotStopLaterPhases(t *testing.T) {
	f := newFixture(t)
	fs := &failingStore{Store: f.store, archiveErr: fmt.Errorf("disk full")}
	engine := NewEngine(
		f.registry, f.scorer, nil, fs,
		cache.New(64, time.Minute), f.notifier, nil, zerolog.Nop(),
	)

	_, err := f.store.AddTask("u1", "still swept")
	require.NoError(t, err)
	require.NoError(t, f.store.RecordTaskAction("u1", store.ActionAdd, "2025-03-09"))

	sum := engine.Run(context.Background(), "timer", boundary)

	require.Len(t, sum.PhaseErrors, 1)
	assert.Contains(t, sum.PhaseErrors[0], "archive")
	assert.Equal(t, int64(1), sum.TasksDeleted)
	assert.Equal(t, int64(1), sum.QuotaRowsReset)
}
