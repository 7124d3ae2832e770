package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/core/services"
)

const testUser = "google.tenant.abc123"

// mockPipeline is a mock implementation of driving.Pipeline. Only Get is
// exercised by the server.
type mockPipeline struct {
	driving.Pipeline
	docs map[string]*domain.DocumentRecord
	err  error
}

func (m *mockPipeline) Get(_ context.Context, id string) (*domain.DocumentRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.docs[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "document %s", id)
	}
	return rec, nil
}

// newTestHub returns a hub with an "echo" module that returns its params
// and the invoking user, and a "broken" module whose action always fails.
func newTestHub(t *testing.T) *services.Hub {
	t.Helper()
	hub := services.NewHub(1)
	require.NoError(t, hub.Register(domain.ModuleDescriptor{Name: "echo", Category: "test"}, []driving.Action{{
		Descriptor: domain.ActionDescriptor{
			Name:            "say",
			RequiredParams:  []string{"text"},
			Produces:        []string{"text", "user"},
			RequiresContext: []string{domain.ContextUserID},
			Timeout:         time.Second,
		},
		Handler: func(_ context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
			return map[string]any{"text": params["text"], "user": actx.UserID()}, nil
		},
	}}))
	require.NoError(t, hub.Register(domain.ModuleDescriptor{Name: "broken", Category: "ops", DependsOn: []string{"echo"}}, []driving.Action{{
		Descriptor: domain.ActionDescriptor{Name: "fail", Timeout: time.Second},
		Handler: func(context.Context, driving.ActionContext, map[string]any) (map[string]any, error) {
			return nil, errors.New("disk on fire")
		},
	}}))
	return hub
}

func newTestServer(t *testing.T, pipeline driving.Pipeline) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Hub: newTestHub(t), Pipeline: pipeline, UserID: testUser})
	require.NoError(t, err)
	return server
}
