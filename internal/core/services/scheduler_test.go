package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
)

// --- Mock implementations for scheduler testing ---

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.ScheduledTask
	results  map[string][]domain.TaskResult
	saveErr  error
	listErr  error
	getErr   error
	pruneErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	// Return a copy
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if task == nil {
		return domain.ErrInvalidInput
	}
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, _ int) error {
	return m.pruneErr
}

// schedulerSessions records proactive refresh requests.
type schedulerSessions struct {
	mockSessionManager
	mu      sync.Mutex
	windows []time.Duration
	err     error
	block   chan struct{}
}

func (m *schedulerSessions) RefreshExpiring(_ context.Context, d time.Duration) (int, error) {
	m.mu.Lock()
	m.windows = append(m.windows, d)
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return 2, m.err
}

func (m *schedulerSessions) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// mockPipeline implements driving.Pipeline, counting Resume calls.
type mockPipeline struct {
	resumes atomic.Int32
}

func (m *mockPipeline) Upload(context.Context, driving.UploadRequest) (*domain.DocumentRecord, error) {
	return nil, nil
}
func (m *mockPipeline) Enqueue(context.Context, string) error   { return nil }
func (m *mockPipeline) Reprocess(context.Context, string) error { return nil }
func (m *mockPipeline) Delete(context.Context, string) error    { return nil }
func (m *mockPipeline) Get(context.Context, string) (*domain.DocumentRecord, error) {
	return nil, domain.ErrNotFound
}
func (m *mockPipeline) List(context.Context, string) ([]domain.DocumentRecord, error) {
	return nil, nil
}
func (m *mockPipeline) Start(context.Context) error { return nil }
func (m *mockPipeline) Stop(context.Context) error  { return nil }

func (m *mockPipeline) Resume(context.Context) (int, error) {
	m.resumes.Add(1)
	return 1, nil
}

// Ensure mocks implement interfaces
var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)
var _ driving.SessionManager = (*schedulerSessions)(nil)
var _ driving.Pipeline = (*mockPipeline)(nil)

// ==================== Scheduler Tests ====================

func newTestScheduler() (*Scheduler, *mockSchedulerStore, *schedulerSessions, *mockPipeline) {
	store := newMockSchedulerStore()
	sessions := &schedulerSessions{}
	pipeline := &mockPipeline{}
	return NewScheduler(domain.DefaultSchedulerConfig(), store, sessions, pipeline), store, sessions, pipeline
}

func TestNewScheduler(t *testing.T) {
	scheduler, _, _, _ := newTestScheduler()

	require.NotNil(t, scheduler)
	assert.True(t, scheduler.config.Enabled)
	assert.Equal(t, time.Minute, scheduler.tick)
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, _, _, _ := newTestScheduler()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	cancel()
	err := scheduler.Stop()
	require.NoError(t, err)

	wg.Wait()
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler, _, _, _ := newTestScheduler()

	err := scheduler.Stop()
	require.NoError(t, err)
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler, _, _, _ := newTestScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// Second start returns immediately.
	err := scheduler.Start(context.Background())
	assert.NoError(t, err)

	cancel()
	scheduler.Stop() //nolint:errcheck
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	scheduler, store, _, _ := newTestScheduler()
	ctx := context.Background()

	err := scheduler.initialiseTasks(ctx)
	require.NoError(t, err)

	refresh, err := store.GetTask(ctx, domain.TaskIDSessionRefresh)
	require.NoError(t, err)
	require.NotNil(t, refresh)
	assert.Equal(t, "Session Refresh", refresh.Name)
	assert.Equal(t, 45*time.Minute, refresh.Interval)
	assert.True(t, refresh.NextRun.After(time.Now()))

	resume, err := store.GetTask(ctx, domain.TaskIDPipelineResume)
	require.NoError(t, err)
	require.NotNil(t, resume)
	assert.Equal(t, "Pipeline Resume", resume.Name)
	assert.False(t, resume.NextRun.After(time.Now()), "resume is due immediately")
}

func TestScheduler_InitialiseTasks_SkipsDisabled(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.TaskConfigs[domain.TaskIDSessionRefresh] = domain.TaskConfig{Enabled: false, Interval: time.Hour}
	store := newMockSchedulerStore()
	scheduler := NewScheduler(config, store, nil, nil)
	ctx := context.Background()

	require.NoError(t, scheduler.initialiseTasks(ctx))

	task, err := store.GetTask(ctx, domain.TaskIDSessionRefresh)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	scheduler, store, _, _ := newTestScheduler()
	ctx := context.Background()

	taskCfg := domain.TaskConfig{
		Enabled:  true,
		Interval: 1 * time.Hour,
	}
	err := scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg)
	require.NoError(t, err)

	taskCfg.Interval = 2 * time.Hour
	err = scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg)
	require.NoError(t, err)

	task, err := store.GetTask(ctx, "test-task")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
}

func TestScheduler_RunSessionRefresh_CoversNextInterval(t *testing.T) {
	scheduler, _, sessions, _ := newTestScheduler()

	n, err := scheduler.runSessionRefresh(context.Background(), 45*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sessions.windows, 1)
	assert.Equal(t, 45*time.Minute+DefaultRefreshThreshold, sessions.windows[0])
}

func TestScheduler_NilCollaborators(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, nil)
	ctx := context.Background()

	n, err := scheduler.runSessionRefresh(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = scheduler.runPipelineResume(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	scheduler, store, sessions, pipeline := newTestScheduler()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDSessionRefresh,
		Name:     "Session Refresh",
		Interval: time.Hour,
		NextRun:  now.Add(-time.Minute),
		Enabled:  true,
	}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDPipelineResume,
		Name:     "Pipeline Resume",
		Interval: time.Minute,
		NextRun:  now.Add(time.Hour),
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, 1, sessions.calls())
	assert.Zero(t, pipeline.resumes.Load(), "resume is not due")

	task, err := store.GetTask(ctx, domain.TaskIDSessionRefresh)
	require.NoError(t, err)
	assert.Empty(t, task.LastError)
	assert.True(t, task.NextRun.After(now))

	history, err := store.GetTaskHistory(ctx, domain.TaskIDSessionRefresh, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, 2, history[0].ItemsProcessed)
}

func TestScheduler_FailedTaskRecordsError(t *testing.T) {
	scheduler, store, sessions, _ := newTestScheduler()
	sessions.err = domain.NewError(domain.KindAuthentication, "invalid_grant")
	ctx := context.Background()

	task := &domain.ScheduledTask{ID: domain.TaskIDSessionRefresh, Interval: time.Hour, Enabled: true}
	scheduler.runTask(ctx, task)
	scheduler.wg.Wait()

	saved, err := store.GetTask(ctx, domain.TaskIDSessionRefresh)
	require.NoError(t, err)
	assert.Contains(t, saved.LastError, "invalid_grant")

	history, err := store.GetTaskHistory(ctx, domain.TaskIDSessionRefresh, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
}

func TestScheduler_StartRunsResumeImmediately(t *testing.T) {
	scheduler, _, _, pipeline := newTestScheduler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = scheduler.Start(ctx)
	}()

	require.Eventually(t, func() bool { return pipeline.resumes.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NoError(t, scheduler.Stop())
}

func TestScheduler_RunTask_UnknownTaskID(t *testing.T) {
	scheduler, store, _, _ := newTestScheduler()

	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: "unknown-task", Enabled: true})
	scheduler.wg.Wait()

	history, err := store.GetTaskHistory(context.Background(), "unknown-task", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScheduler_RunTask_SkipsWhileRunning(t *testing.T) {
	scheduler, _, sessions, _ := newTestScheduler()
	sessions.block = make(chan struct{})
	ctx := context.Background()
	task := &domain.ScheduledTask{ID: domain.TaskIDSessionRefresh, Interval: time.Hour, Enabled: true}

	scheduler.runTask(ctx, task)
	require.Eventually(t, func() bool { return sessions.calls() == 1 }, time.Second, 5*time.Millisecond)
	scheduler.runTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDSessionRefresh, Interval: time.Hour, Enabled: true})

	close(sessions.block)
	scheduler.wg.Wait()
	assert.Equal(t, 1, sessions.calls())

	scheduler.runTask(ctx, task)
	scheduler.wg.Wait()
	assert.Equal(t, 2, sessions.calls())
}
