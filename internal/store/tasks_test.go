package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/focusguild/focusbot/internal/errors"
)

func TestTask_AddListComplete(t *testing.T) {
	store := newTestStore(t)

	task, err := store.AddTask("u1", "write report")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.IsComplete)

	_, err = store.AddTask("u1", "review notes")
	require.NoError(t, err)

	tasks, err := store.ListTasks("u1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "write report", tasks[0].Title)

	require.NoError(t, store.CompleteTask(task.ID, "u1"))

	tasks, err = store.ListTasks("u1")
	require.NoError(t, err)
	assert.True(t, tasks[0].IsComplete)
	assert.NotZero(t, tasks[0].CompletedAt)

	// Completing twice reports not found so quota is not double-charged
	err = store.CompleteTask(task.ID, "u1")
	assert.ErrorIs(t, err, ferrors.ErrNotFound)

	// Another user cannot complete someone else's task
	err = store.CompleteTask(task.ID, "u2")
	assert.ErrorIs(t, err, ferrors.ErrNotFound)
}

func TestAddTask_MissingUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddTask("", "orphan")
	assert.ErrorIs(t, err, ferrors.ErrMissingUser)
}

func TestDeleteTask(t *testing.T) {
	store := newTestStore(t)

	task, err := store.AddTask("u1", "temp")
	require.NoError(t, err)

	// Wrong owner sees not found, and the row survives
	_, err = store.DeleteTask(task.ID, "u2")
	assert.ErrorIs(t, err, ferrors.ErrNotFound)

	deleted, err := store.DeleteTask(task.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "temp", deleted.Title)
	assert.False(t, deleted.IsComplete)

	_, err = store.DeleteTask(task.ID, "u1")
	assert.ErrorIs(t, err, ferrors.ErrNotFound)
}

func TestUsersWithPendingTasks(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddTask("u1", "alpha")
	require.NoError(t, err)
	_, err = store.AddTask("u1", "beta")
	require.NoError(t, err)
	done, err := store.AddTask("u2", "done already")
	require.NoError(t, err)
	require.NoError(t, store.CompleteTask(done.ID, "u2"))
	_, err = store.AddTask("u3", "gamma")
	require.NoError(t, err)

	pending, err := store.UsersWithPendingTasks()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	byUser := map[string]PendingCleanup{}
	for _, p := range pending {
		byUser[p.UserID] = p
	}
	assert.Equal(t, 2, byUser["u1"].Count)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, byUser["u1"].Titles)
	assert.Equal(t, 1, byUser["u3"].Count)
	assert.NotContains(t, byUser, "u2")
}

func TestDeleteIncompleteTasks(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddTask("u1", "alpha")
	require.NoError(t, err)
	done, err := store.AddTask("u1", "beta")
	require.NoError(t, err)
	require.NoError(t, store.CompleteTask(done.ID, "u1"))

	n, err := store.DeleteIncompleteTasks("u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tasks, err := store.ListTasks("u1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsComplete)
}

func TestVoiceSession_OpenCloseSplit(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC)

	v, err := store.OpenSession("u1", "focus-room", start)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", v.Date)

	open, err := store.GetOpenSession("u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, v.ID, open.ID)

	end := start.Add(2 * time.Hour)
	require.NoError(t, store.CloseSession(v.ID, end, 120, 10))

	open, err = store.GetOpenSession("u1")
	require.NoError(t, err)
	assert.Nil(t, open)

	got, err := store.GetSession(v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 120, got.DurationMinutes)
	assert.Equal(t, 10, got.PointsEarned)

	// Closing an already-closed session reports not found
	assert.ErrorIs(t, store.CloseSession(v.ID, end, 120, 10), ferrors.ErrNotFound)
}

func TestVoiceStats_AccumulateAndArchive(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AccumulateVoiceStats("u1", "2025-03-09", 60, 5, 1))
	require.NoError(t, store.AccumulateVoiceStats("u1", "2025-03-09", 30, 2, 1))
	require.NoError(t, store.AccumulateVoiceStats("u2", "2025-03-09", 45, 3, 1))
	require.NoError(t, store.AccumulateVoiceStats("u3", "2025-03-10", 10, 1, 1))

	v, err := store.GetVoiceStats("u1", "2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, 90, v.TotalMinutes)
	assert.Equal(t, 7, v.PointsEarned)
	assert.Equal(t, 2, v.SessionCount)
	assert.False(t, v.Archived)

	// Archive yesterday, excluding u1 who is still active
	n, err := store.ArchiveVoiceStats("2025-03-09", []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	v, err = store.GetVoiceStats("u1", "2025-03-09")
	require.NoError(t, err)
	assert.False(t, v.Archived)

	v, err = store.GetVoiceStats("u2", "2025-03-09")
	require.NoError(t, err)
	assert.True(t, v.Archived)

	v, err = store.GetVoiceStats("u3", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, v.Archived)
}
