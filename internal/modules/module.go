package modules

import (
	"fmt"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Module is a unit of functionality registered with the hub.
type Module interface {
	Descriptor() domain.ModuleDescriptor
	Actions() []driving.Action
}

// Subscriber is a module that listens on the event bus.
type Subscriber interface {
	Subscribe(bus driven.EventBus) (cancel func(), err error)
}

// Register declares every module to the hub, then subscribes the listening
// ones in the hub's startup order. The returned function detaches all
// subscriptions.
func Register(hub driving.Hub, bus driven.EventBus, mods ...Module) (func(), error) {
	byName := make(map[string]Module, len(mods))
	for _, m := range mods {
		desc := m.Descriptor()
		if err := hub.Register(desc, m.Actions()); err != nil {
			return nil, fmt.Errorf("register module %s: %w", desc.Name, err)
		}
		byName[desc.Name] = m
	}

	order, err := hub.StartupOrder()
	if err != nil {
		return nil, err
	}

	var cancels []func()
	cancelAll := func() {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
	}
	for _, name := range order {
		sub, ok := byName[name].(Subscriber)
		if !ok {
			continue
		}
		cancel, err := sub.Subscribe(bus)
		if err != nil {
			cancelAll()
			return nil, fmt.Errorf("subscribe module %s: %w", name, err)
		}
		cancels = append(cancels, cancel)
		logger.Debug("modules: %s subscribed", name)
	}
	return cancelAll, nil
}
