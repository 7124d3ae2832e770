package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/adapters/driven/config/file"
	"github.com/custodia-labs/caseflow/internal/core/domain"
)

const testUser = "google.tenant.abc123"

func testConfig(t *testing.T) *file.Config {
	t.Helper()
	cfg := file.Default()
	cfg.DataDir = t.TempDir()
	cfg.Secret = "0123456789abcdef0123456789abcdef-test"
	cfg.Sessions.Store = file.SessionStoreMemory
	cfg.Artifacts.Backend = file.ArtifactsMemory
	cfg.Pipeline.InitialBackoff = file.Duration(time.Millisecond)
	cfg.Pipeline.MaxBackoff = file.Duration(2 * time.Millisecond)
	return &cfg
}

func build(t *testing.T, cfg *file.Config) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestBuild_RequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secret = ""

	_, err := Build(context.Background(), cfg)

	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestBuild_ShortSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secret = "short"

	_, err := Build(context.Background(), cfg)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuild_UnknownEnricher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Enrichers = []string{"dates", "horoscope"}

	_, err := Build(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "building enrichers")
}

func TestBuild_RegistersModules(t *testing.T) {
	a := build(t, testConfig(t))

	var names []string
	for _, m := range a.Hub.Modules() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"documents", "failures", "sessions", "tasks", "timeline", "violations"}, names)

	order, err := a.Hub.StartupOrder()
	require.NoError(t, err)
	assert.Len(t, order, 6)
	assert.NotNil(t, a.Scheduler)
}

func TestBuild_UploadRunsToRegistered(t *testing.T) {
	a := build(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, a.Pipeline.Start(ctx))
	t.Cleanup(func() { _ = a.Pipeline.Stop(ctx) })

	res := a.Hub.Invoke(ctx, "documents", "upload", testUser, map[string]any{
		"name":    "lease.txt",
		"content": "Residential lease agreement between landlord and tenant. Monthly rent is $1,500.00.",
	})
	require.True(t, res.OK, "upload failed: %+v", res.Error)
	id, ok := res.Data["document_id"].(string)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		st := a.Hub.Invoke(ctx, "documents", "status", testUser, map[string]any{"document_id": id})
		if !st.OK {
			return false
		}
		doc, _ := st.Data["document"].(map[string]any)
		return doc["stage"] == string(domain.StageRegistered)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBuild_SessionStatusWithoutSession(t *testing.T) {
	a := build(t, testConfig(t))

	res := a.Hub.Invoke(context.Background(), "sessions", "status", testUser, nil)

	require.False(t, res.OK)
	assert.Equal(t, domain.KindAuthentication, res.Error.Kind)
}

func TestIssueToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.JWTSecret = "jwt-secret"
	a := build(t, cfg)

	tok, err := a.IssueToken(testUser, time.Hour)

	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestSchedulerConfig(t *testing.T) {
	out := schedulerConfig(file.SchedulerConfig{
		Enabled:                true,
		SessionRefreshInterval: file.Duration(10 * time.Minute),
	})

	assert.True(t, out.Enabled)
	assert.Equal(t, 10*time.Minute, out.TaskConfigs[domain.TaskIDSessionRefresh].Interval)
	assert.Equal(t,
		domain.DefaultSchedulerConfig().TaskConfigs[domain.TaskIDPipelineResume],
		out.TaskConfigs[domain.TaskIDPipelineResume])
}

func TestProviderConfigs(t *testing.T) {
	out := providerConfigs(map[string]file.ProviderConfig{
		"google": {ClientID: "id", ClientSecret: "secret", Scopes: []string{"drive.readonly"}},
	})

	require.Contains(t, out, "google")
	assert.Equal(t, "id", out["google"].ClientID)
	assert.Equal(t, []string{"drive.readonly"}, out["google"].Scopes)
}

func timelineCount(t *testing.T, a *App) int {
	t.Helper()
	res := a.Hub.Invoke(context.Background(), "timeline", "list", testUser, nil)
	require.True(t, res.OK, "timeline list failed: %+v", res.Error)
	n, ok := res.Data["count"].(int)
	require.True(t, ok)
	return n
}

func TestClose_DrainsDeleteIntoModules(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Pipeline.Start(ctx))

	res := a.Hub.Invoke(ctx, "documents", "upload", testUser, map[string]any{
		"name":    "lease.txt",
		"content": "Residential lease agreement. The term begins January 1, 2026 and ends December 31, 2026.",
	})
	require.True(t, res.OK, "upload failed: %+v", res.Error)
	id, ok := res.Data["document_id"].(string)
	require.True(t, ok)

	require.Eventually(t, func() bool { return timelineCount(t, a) > 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Pipeline.Delete(ctx, id))
	require.NoError(t, a.Pipeline.Stop(ctx))
	require.NoError(t, a.Close(ctx))

	// A fresh process on the same data dir sees what the first one left.
	reopened := build(t, cfg)
	assert.Equal(t, 0, timelineCount(t, reopened))
}
