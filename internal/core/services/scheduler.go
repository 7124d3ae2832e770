package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of results kept per task.
const historyRetention = 100

// Scheduler manages background task execution.
// It is a pure core service with no external control API.
type Scheduler struct {
	config   domain.SchedulerConfig
	store    driven.SchedulerStore
	sessions driving.SessionManager
	pipeline driving.Pipeline
	tick     time.Duration

	mu       sync.Mutex
	running  bool
	inflight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// job runs one pass of a task and reports how many items it touched.
type job func(ctx context.Context, task *domain.ScheduledTask) (int, error)

// NewScheduler creates a scheduler with configuration. Either collaborator
// may be nil, which turns its task into a no-op.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	sessions driving.SessionManager,
	pipeline driving.Pipeline,
) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		sessions: sessions,
		pipeline: pipeline,
		tick:     time.Minute,
		inflight: make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		logger.Debug("scheduler: disabled")
	} else if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	builtins := []struct{ id, name string }{
		{domain.TaskIDSessionRefresh, "Session Refresh"},
		{domain.TaskIDPipelineResume, "Pipeline Resume"},
	}
	for _, b := range builtins {
		taskCfg := s.config.GetTaskConfig(b.id)
		if !taskCfg.Enabled || taskCfg.Interval <= 0 {
			continue
		}
		if err := s.ensureTask(ctx, b.id, b.name, taskCfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// Resume runs straight away after a restart; the first refresh waits
		// one interval since sessions were refreshed on use.
		next := time.Now().Add(cfg.Interval)
		if id == domain.TaskIDPipelineResume {
			next = time.Now()
		}
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  next,
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	if s.config.Enabled {
		s.checkAndRunDueTasks(ctx)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if s.config.Enabled {
				s.checkAndRunDueTasks(ctx)
			}
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.runTask(ctx, &tasks[i])
		}
	}
}

func (s *Scheduler) jobFor(id string) job {
	switch id {
	case domain.TaskIDSessionRefresh:
		return func(ctx context.Context, t *domain.ScheduledTask) (int, error) {
			return s.runSessionRefresh(ctx, t.Interval)
		}
	case domain.TaskIDPipelineResume:
		return func(ctx context.Context, _ *domain.ScheduledTask) (int, error) {
			return s.runPipelineResume(ctx)
		}
	}
	return nil
}

// runTask starts a task in the background unless a previous run of it is
// still going.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	run := s.jobFor(task.ID)
	if run == nil {
		logger.L().Warn("scheduler: unknown task", zap.String("task", task.ID))
		return
	}

	s.mu.Lock()
	if s.inflight[task.ID] {
		s.mu.Unlock()
		logger.L().Debug("scheduler: task still running", zap.String("task", task.ID))
		return
	}
	s.inflight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, task.ID)
			s.mu.Unlock()
		}()

		result := domain.TaskResult{TaskID: task.ID, StartedAt: time.Now()}
		n, err := run(ctx, task)
		result.EndedAt = time.Now()
		result.ItemsProcessed = n
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
			logger.L().Warn("scheduled task failed", zap.String("task", task.ID), zap.Error(err))
		} else {
			logger.L().Debug("scheduled task finished", zap.String("task", task.ID),
				zap.Int("items", n), zap.Duration("took", result.EndedAt.Sub(result.StartedAt)))
		}
		task.Record(result)
		s.persist(context.WithoutCancel(ctx), task, &result)
	}()
}

// persist writes a finished run. The loop context may already be cancelled,
// so callers pass one that is not.
func (s *Scheduler) persist(ctx context.Context, task *domain.ScheduledTask, result *domain.TaskResult) {
	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.L().Warn("scheduler: saving task", zap.String("task", task.ID), zap.Error(err))
	}
	if err := s.store.RecordResult(ctx, result); err != nil {
		logger.L().Warn("scheduler: recording result", zap.String("task", task.ID), zap.Error(err))
	}
	if err := s.store.PruneHistory(ctx, historyRetention); err != nil {
		logger.L().Warn("scheduler: pruning history", zap.Error(err))
	}
}

// runSessionRefresh refreshes sessions that would otherwise expire before
// the next run.
func (s *Scheduler) runSessionRefresh(ctx context.Context, interval time.Duration) (int, error) {
	if s.sessions == nil {
		return 0, nil
	}
	return s.sessions.RefreshExpiring(ctx, interval+DefaultRefreshThreshold)
}

// runPipelineResume reschedules abandoned and re-authorised documents.
func (s *Scheduler) runPipelineResume(ctx context.Context) (int, error) {
	if s.pipeline == nil {
		return 0, nil
	}
	return s.pipeline.Resume(ctx)
}
