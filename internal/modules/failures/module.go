// Package failures lets an operator inspect and replay bus deliveries that
// a subscriber failed to handle.
package failures

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
const Name = "failures"

// DefaultLimit bounds list results when no limit is given.
const DefaultLimit = 50

// Module is the failures hub module.
type Module struct {
	store driven.DeliveryFailureStore
	bus   driven.EventBus
}

// New creates the failures module.
func New(store driven.DeliveryFailureStore, bus driven.EventBus) *Module {
	return &Module{store: store, bus: bus}
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
				Name:           "list",
				OptionalParams: []string{"limit"},
				Produces:       []string{"failures", "count"},
				Timeout:        10 * time.Second,
			},
			Handler: m.list,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:           "replay",
				RequiredParams: []string{"failure_id"},
				Produces:       []string{"failure_id", "replayed"},
				Timeout:        10 * time.Second,
			},
			Handler: m.replay,
		},
	}
}

func (m *Module) list(ctx context.Context, _ driving.ActionContext, params map[string]any) (map[string]any, error) {
	limit, err := modules.Int(params, "limit", DefaultLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, domain.NewError(domain.KindValidation, "limit must be positive")
	}
	recorded, err := m.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery failures: %w", err)
	}
	out := make([]map[string]any, 0, len(recorded))
	for _, f := range recorded {
		out = append(out, View(f))
	}
	return map[string]any{"failures": out, "count": len(out)}, nil
}

func (m *Module) replay(ctx context.Context, _ driving.ActionContext, params map[string]any) (map[string]any, error) {
	id, err := modules.RequiredString(params, "failure_id")
	if err != nil {
		return nil, err
	}
	if err := m.bus.Replay(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"failure_id": id, "replayed": true}, nil
}

// View is the result shape of a delivery failure. The envelope is left out.
func View(f domain.DeliveryFailure) map[string]any {
	return map[string]any{
		"id":         f.ID,
		"event_type": string(f.EventType),
		"subscriber": f.Subscriber,
		"pack_id":    f.PackID,
		"error":      f.Error,
		"failed_at":  f.FailedAt.Format(time.RFC3339),
	}
}
