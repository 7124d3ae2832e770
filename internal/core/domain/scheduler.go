package domain

import "time"

// Task IDs for built-in tasks.
const (
	TaskIDSessionRefresh = "session-refresh"
	TaskIDPipelineResume = "pipeline-resume"
)

// ScheduledTask is the persisted state of one recurring background task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError is the failure message of the last run; empty after a success.
	LastError string
}

// Due reports whether an enabled task should run at now. A task that never
// had NextRun set is due immediately.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// Record folds a finished run into the task state and schedules the next
// run one interval after it ended.
func (t *ScheduledTask) Record(r TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastError = ""
		t.LastSuccess = r.EndedAt
	} else {
		t.LastError = r.Error
	}
}

// TaskResult is the outcome of one task run.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts sessions refreshed or documents rescheduled.
	ItemsProcessed int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// TaskConfigs holds per-task configuration keyed by task ID.
	TaskConfigs map[string]TaskConfig
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for a specific task.
// Returns a zero TaskConfig if the task is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig refreshes sessions every 45 minutes, inside the
// usual one-hour access token lifetime, and looks for stranded documents
// every minute.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDSessionRefresh: {Enabled: true, Interval: 45 * time.Minute},
			TaskIDPipelineResume: {Enabled: true, Interval: time.Minute},
		},
	}
}
