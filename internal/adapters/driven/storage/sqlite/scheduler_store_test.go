package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

func saveTask(t *testing.T, s *Store, id string) *domain.ScheduledTask {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	task := &domain.ScheduledTask{
		ID:          id,
		Name:        id,
		Interval:    45 * time.Minute,
		Enabled:     true,
		LastRun:     now.Add(-30 * time.Minute),
		NextRun:     now.Add(15 * time.Minute),
		LastSuccess: now.Add(-30 * time.Minute),
	}
	require.NoError(t, s.SchedulerStore().SaveTask(context.Background(), task))
	return task
}

func TestSchedulerStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	want := saveTask(t, store, domain.TaskIDSessionRefresh)

	got, err := store.SchedulerStore().GetTask(context.Background(), domain.TaskIDSessionRefresh)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Interval, got.Interval)
	assert.True(t, got.Enabled)
	assert.True(t, want.LastRun.Equal(got.LastRun))
	assert.True(t, want.NextRun.Equal(got.NextRun))
	assert.True(t, want.LastSuccess.Equal(got.LastSuccess))
	assert.Empty(t, got.LastError)
}

func TestSchedulerStore_GetUnknown(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := store.SchedulerStore().GetTask(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSchedulerStore_SaveReplaces(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	task := saveTask(t, store, domain.TaskIDPipelineResume)

	task.Enabled = false
	task.LastError = "drive unavailable"
	task.LastSuccess = time.Time{}
	require.NoError(t, store.SchedulerStore().SaveTask(ctx, task))

	got, err := store.SchedulerStore().GetTask(ctx, domain.TaskIDPipelineResume)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "drive unavailable", got.LastError)
	assert.True(t, got.LastSuccess.IsZero())
}

func TestSchedulerStore_InvalidInput(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()

	assert.ErrorIs(t, ss.SaveTask(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, ss.SaveTask(ctx, &domain.ScheduledTask{}), domain.ErrInvalidInput)
	assert.ErrorIs(t, ss.RecordResult(ctx, nil), domain.ErrInvalidInput)
}

func TestSchedulerStore_ListTasks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	empty, err := store.SchedulerStore().ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	saveTask(t, store, domain.TaskIDSessionRefresh)
	saveTask(t, store, domain.TaskIDPipelineResume)

	tasks, err := store.SchedulerStore().ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Less(t, tasks[0].ID, tasks[1].ID)
}

func TestSchedulerStore_History(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Minute)
		r := &domain.TaskResult{
			TaskID:         domain.TaskIDSessionRefresh,
			StartedAt:      start,
			EndedAt:        start.Add(time.Second),
			Success:        true,
			ItemsProcessed: i,
		}
		if i == 4 {
			r.Success, r.Error = false, "timeout"
		}
		require.NoError(t, ss.RecordResult(ctx, r))
	}

	history, err := ss.GetTaskHistory(ctx, domain.TaskIDSessionRefresh, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 4, history[0].ItemsProcessed)
	assert.False(t, history[0].Success)
	assert.Equal(t, "timeout", history[0].Error)
	assert.True(t, base.Add(4*time.Minute).Equal(history[0].StartedAt))
	assert.Equal(t, 2, history[2].ItemsProcessed)

	none, err := ss.GetTaskHistory(ctx, domain.TaskIDPipelineResume, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchedulerStore_PruneHistory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ss := store.SchedulerStore()
	base := time.Now().UTC()

	for _, id := range []string{domain.TaskIDSessionRefresh, domain.TaskIDPipelineResume} {
		for i := 0; i < 6; i++ {
			start := base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, ss.RecordResult(ctx, &domain.TaskResult{
				TaskID: id, StartedAt: start, EndedAt: start, Success: true, ItemsProcessed: i,
			}))
		}
	}

	require.NoError(t, ss.PruneHistory(ctx, 2))

	for _, id := range []string{domain.TaskIDSessionRefresh, domain.TaskIDPipelineResume} {
		history, err := ss.GetTaskHistory(ctx, id, 100)
		require.NoError(t, err)
		require.Len(t, history, 2, id)
		assert.Equal(t, 5, history[0].ItemsProcessed)
		assert.Equal(t, 4, history[1].ItemsProcessed)
	}
}
