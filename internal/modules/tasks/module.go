// Package tasks reports the state and run history of background tasks.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/modules"
)

// Name is the module name.
const Name = "tasks"

// DefaultHistory bounds history results when no limit is given.
const DefaultHistory = 20

// Module is the tasks hub module.
type Module struct {
	store driven.SchedulerStore
}

// New creates the tasks module.
func New(store driven.SchedulerStore) *Module {
	return &Module{store: store}
}

// Descriptor declares the module.
func (m *Module) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{Name: Name, Category: "ops"}
}

// Actions returns the module's action set.
func (m *Module) Actions() []driving.Action {
	return []driving.Action{
		{
			Descriptor: domain.ActionDescriptor{
				Name:     "list",
				Produces: []string{"tasks", "count"},
				Timeout:  10 * time.Second,
			},
			Handler: m.list,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:           "history",
				RequiredParams: []string{"task_id"},
				OptionalParams: []string{"limit"},
				Produces:       []string{"task_id", "runs", "count"},
				Timeout:        10 * time.Second,
			},
			Handler: m.history,
		},
	}
}

func (m *Module) list(ctx context.Context, _ driving.ActionContext, _ map[string]any) (map[string]any, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]map[string]any, 0, len(tasks))
	for i := range tasks {
		out = append(out, TaskView(&tasks[i]))
	}
	return map[string]any{"tasks": out, "count": len(out)}, nil
}

func (m *Module) history(ctx context.Context, _ driving.ActionContext, params map[string]any) (map[string]any, error) {
	id, err := modules.RequiredString(params, "task_id")
	if err != nil {
		return nil, err
	}
	limit, err := modules.Int(params, "limit", DefaultHistory)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, domain.NewError(domain.KindValidation, "limit must be positive")
	}
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, domain.NewError(domain.KindNotFound, "task %s", id)
	}
	runs, err := m.store.GetTaskHistory(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("task history: %w", err)
	}
	out := make([]map[string]any, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunView(r))
	}
	return map[string]any{"task_id": id, "runs": out, "count": len(out)}, nil
}

// TaskView is the result shape of a scheduled task.
func TaskView(t *domain.ScheduledTask) map[string]any {
	v := map[string]any{
		"id":       t.ID,
		"name":     t.Name,
		"interval": t.Interval.String(),
		"enabled":  t.Enabled,
	}
	for key, at := range map[string]time.Time{
		"last_run":     t.LastRun,
		"next_run":     t.NextRun,
		"last_success": t.LastSuccess,
	} {
		if !at.IsZero() {
			v[key] = at.UTC().Format(time.RFC3339)
		}
	}
	if t.LastError != "" {
		v["last_error"] = t.LastError
	}
	return v
}

// RunView is the result shape of one task run.
func RunView(r domain.TaskResult) map[string]any {
	v := map[string]any{
		"started_at": r.StartedAt.UTC().Format(time.RFC3339),
		"took":       r.EndedAt.Sub(r.StartedAt).String(),
		"success":    r.Success,
		"items":      r.ItemsProcessed,
	}
	if r.Error != "" {
		v["error"] = r.Error
	}
	return v
}
