package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

func TestServer_handleInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("runs action as the configured user", func(t *testing.T) {
		server := newTestServer(t, nil)

		_, output, err := server.handleInvoke(ctx, nil, InvokeInput{
			Module: " echo ",
			Action: "say",
			Params: map[string]any{"text": "hello"},
		})

		require.NoError(t, err)
		require.True(t, output.OK)
		assert.Equal(t, "hello", output.Data["text"])
		assert.Equal(t, testUser, output.Data["user"])
		assert.Nil(t, output.Error)
	})

	t.Run("unknown module is reported in the result", func(t *testing.T) {
		server := newTestServer(t, nil)

		_, output, err := server.handleInvoke(ctx, nil, InvokeInput{Module: "calendar", Action: "sync"})

		require.NoError(t, err)
		assert.False(t, output.OK)
		require.NotNil(t, output.Error)
		assert.Equal(t, domain.KindNotFound, output.Error.Kind)
	})

	t.Run("missing params are a validation error", func(t *testing.T) {
		server := newTestServer(t, nil)

		_, output, err := server.handleInvoke(ctx, nil, InvokeInput{Module: "echo", Action: "say"})

		require.NoError(t, err)
		require.NotNil(t, output.Error)
		assert.Equal(t, domain.KindValidation, output.Error.Kind)
	})

	t.Run("handler errors are classified", func(t *testing.T) {
		server := newTestServer(t, nil)

		_, output, err := server.handleInvoke(ctx, nil, InvokeInput{Module: "broken", Action: "fail"})

		require.NoError(t, err)
		require.NotNil(t, output.Error)
		assert.Equal(t, domain.KindPermanent, output.Error.Kind)
		assert.Contains(t, output.Error.Message, "disk on fire")
	})
}

func TestServer_handleListModules(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, nil)

	t.Run("lists every module sorted by name", func(t *testing.T) {
		_, output, err := server.handleListModules(ctx, nil, ListModulesInput{})

		require.NoError(t, err)
		require.Equal(t, 2, output.Count)
		assert.Equal(t, "broken", output.Modules[0].Name)
		assert.Equal(t, []string{"echo"}, output.Modules[0].DependsOn)
		assert.Equal(t, "echo", output.Modules[1].Name)
		require.Len(t, output.Modules[1].Actions, 1)
		assert.Equal(t, "say", output.Modules[1].Actions[0].Name)
		assert.Equal(t, []string{"text"}, output.Modules[1].Actions[0].RequiredParams)
	})

	t.Run("filters by category", func(t *testing.T) {
		_, output, err := server.handleListModules(ctx, nil, ListModulesInput{Category: "ops"})

		require.NoError(t, err)
		require.Equal(t, 1, output.Count)
		assert.Equal(t, "broken", output.Modules[0].Name)
	})

	t.Run("unknown category is empty, not nil", func(t *testing.T) {
		_, output, err := server.handleListModules(ctx, nil, ListModulesInput{Category: "billing"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.NotNil(t, output.Modules)
	})
}
