package modules_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/core/services"
	"github.com/custodia-labs/caseflow/internal/modules"
	"github.com/custodia-labs/caseflow/internal/modules/modulestest"
)

// stubModule declares a module with one no-op action.
type stubModule struct {
	name      string
	dependsOn []string
}

func (m stubModule) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{Name: m.name, DependsOn: m.dependsOn}
}

func (m stubModule) Actions() []driving.Action {
	return []driving.Action{{
		Descriptor: domain.ActionDescriptor{Name: "ping", Produces: []string{"pong"}, Timeout: time.Second},
		Handler: func(context.Context, driving.ActionContext, map[string]any) (map[string]any, error) {
			return map[string]any{"pong": true}, nil
		},
	}}
}

// listeningModule subscribes to document_added and records the order in
// which modules subscribed.
type listeningModule struct {
	stubModule
	order     *[]string
	failWith  error
	cancelled *[]string
}

func (m listeningModule) Subscribe(bus driven.EventBus) (func(), error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	cancel, err := bus.Subscribe(domain.EventDocumentAdded, m.name, func(context.Context, domain.InfoPack) error {
		return nil
	})
	if err != nil {
		return nil, err
	}
	*m.order = append(*m.order, m.name)
	return func() {
		cancel()
		*m.cancelled = append(*m.cancelled, m.name)
	}, nil
}

func TestRegister_SubscribesInStartupOrder(t *testing.T) {
	hub := services.NewHub(1)
	bus := modulestest.NewBus()
	var order, cancelled []string

	cancel, err := modules.Register(hub, bus,
		listeningModule{stubModule: stubModule{name: "timeline", dependsOn: []string{"documents"}}, order: &order, cancelled: &cancelled},
		stubModule{name: "documents"},
		listeningModule{stubModule: stubModule{name: "alerts", dependsOn: []string{"timeline"}}, order: &order, cancelled: &cancelled},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"timeline", "alerts"}, order)
	assert.Len(t, hub.Modules(), 3)
	assert.ElementsMatch(t, []string{"timeline", "alerts"}, bus.Subscribers(domain.EventDocumentAdded))

	res := hub.Invoke(context.Background(), "documents", "ping", "", nil)
	require.True(t, res.OK, "%+v", res.Error)

	cancel()
	assert.Equal(t, []string{"alerts", "timeline"}, cancelled)
	assert.Empty(t, bus.Subscribers(domain.EventDocumentAdded))
}

func TestRegister_MissingDependency(t *testing.T) {
	hub := services.NewHub(1)
	bus := modulestest.NewBus()

	_, err := modules.Register(hub, bus, stubModule{name: "timeline", dependsOn: []string{"documents"}})

	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRegister_InvalidDescriptor(t *testing.T) {
	hub := services.NewHub(1)

	_, err := modules.Register(hub, modulestest.NewBus(), stubModule{name: "documents", dependsOn: []string{"documents"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "register module documents")
	assert.Empty(t, hub.Modules())
}

func TestRegister_SubscribeFailureCancelsEarlier(t *testing.T) {
	hub := services.NewHub(1)
	bus := modulestest.NewBus()
	var order, cancelled []string
	boom := errors.New("boom")

	_, err := modules.Register(hub, bus,
		stubModule{name: "documents"},
		listeningModule{stubModule: stubModule{name: "timeline", dependsOn: []string{"documents"}}, order: &order, cancelled: &cancelled},
		listeningModule{stubModule: stubModule{name: "violations", dependsOn: []string{"timeline"}}, order: &order, cancelled: &cancelled, failWith: boom},
	)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"timeline"}, cancelled)
	assert.Empty(t, bus.Subscribers(domain.EventDocumentAdded))
}
