// Package app assembles caseflow's services from configuration and runs the
// long-lived surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/caseflow/internal/adapters/driven/artifacts/fs"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/artifacts/gcs"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/config/file"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/crypto"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/eventbus"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/eventbus/natsrelay"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/oauth"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/caseflow/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/caseflow/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/caseflow/internal/adapters/driving/intake"
	"github.com/custodia-labs/caseflow/internal/classifier"
	"github.com/custodia-labs/caseflow/internal/connectors/google"
	"github.com/custodia-labs/caseflow/internal/connectors/google/drive"
	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/services"
	"github.com/custodia-labs/caseflow/internal/enrichers"
	"github.com/custodia-labs/caseflow/internal/extractors"
	"github.com/custodia-labs/caseflow/internal/logger"
	"github.com/custodia-labs/caseflow/internal/modules"
	"github.com/custodia-labs/caseflow/internal/modules/documents"
	"github.com/custodia-labs/caseflow/internal/modules/failures"
	"github.com/custodia-labs/caseflow/internal/modules/sessions"
	"github.com/custodia-labs/caseflow/internal/modules/tasks"
	"github.com/custodia-labs/caseflow/internal/modules/timeline"
	"github.com/custodia-labs/caseflow/internal/modules/violations"
)

// ErrMissingSecret is returned when no process secret is configured.
var ErrMissingSecret = errors.New("app: secret is required to encrypt sessions")

// App holds the assembled services.
type App struct {
	cfg *file.Config

	Hub       *services.Hub
	Bus       *eventbus.Bus
	Pipeline  *services.Pipeline
	Sessions  *services.SessionManager
	Refresher *oauth.Refresher
	Scheduler *services.Scheduler

	closers     []func() error
	unsubscribe func()
}

// Build wires every service cfg describes. Nothing is started; Close
// releases whatever Build opened.
func Build(ctx context.Context, cfg *file.Config) (a *App, err error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	a = &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	stores, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	a.Bus = eventbus.New(eventbus.Config{DrainTimeout: cfg.Bus.DrainTimeout.Std()}, stores.failures)

	cipher, err := crypto.New([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	a.Refresher, err = oauth.NewRefresher(providerConfigs(cfg.Providers), nil)
	if err != nil {
		return nil, fmt.Errorf("creating token refresher: %w", err)
	}
	a.Sessions = services.NewSessionManager(stores.sessions, cipher, a.Refresher, cfg.Sessions.RefreshThreshold.Std())

	a.Pipeline, err = a.buildPipeline(stores)
	if err != nil {
		return nil, err
	}

	a.Hub = services.NewHub(cfg.Hub.Workers)
	a.Hub.RegisterContextProvider(domain.ContextCredential, func(ctx context.Context, userID string) (any, error) {
		return a.Sessions.GetValidCredential(ctx, userID)
	})
	a.unsubscribe, err = modules.Register(a.Hub, a.Bus,
		documents.New(a.Pipeline),
		sessions.New(a.Sessions),
		timeline.New(stores.timeline, timeline.WithDeadlineWindow(cfg.Timeline.DeadlineWindow.Std())),
		violations.New(stores.violations, violations.WithLimits(violations.Limits{
			MaxDepositMonths: cfg.Violations.MaxDepositMonths,
			MinNoticeDays:    cfg.Violations.MinNoticeDays,
		})),
		failures.New(stores.failures, a.Bus),
		tasks.New(stores.scheduler),
	)
	if err != nil {
		return nil, err
	}

	if stores.scheduler != nil {
		a.Scheduler = services.NewScheduler(schedulerConfig(cfg.Scheduler), stores.scheduler, a.Sessions, a.Pipeline)
	}
	return a, nil
}

type storeSet struct {
	sessions   driven.SessionStore
	documents  driven.DocumentStore
	failures   driven.DeliveryFailureStore
	timeline   driven.TimelineStore
	violations driven.ViolationStore
	scheduler  driven.SchedulerStore
	artifacts  driven.ArtifactStore
}

func (a *App) openStores(ctx context.Context) (*storeSet, error) {
	cfg := a.cfg
	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data dir: %w", err)
		}
		dataDir = filepath.Join(home, ".caseflow", "data")
	}

	db, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	set := &storeSet{
		sessions:   db.SessionStore(),
		documents:  db.DocumentStore(),
		failures:   db.FailureStore(),
		timeline:   db.TimelineStore(),
		violations: db.ViolationStore(),
		scheduler:  db.SchedulerStore(),
	}

	switch cfg.Sessions.Store {
	case file.SessionStoreMemory:
		set.sessions = memory.NewSessionStore()
	case file.SessionStoreRedis:
		opts, err := goredis.ParseURL(cfg.Sessions.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		set.sessions = redis.NewSessionStore(client, cfg.Sessions.RedisPrefix)
	}

	switch cfg.Artifacts.Backend {
	case file.ArtifactsMemory:
		set.artifacts = memory.NewArtifactStore()
	case file.ArtifactsGCS:
		store, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Artifacts.Bucket, Prefix: cfg.Artifacts.Prefix})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		set.artifacts = store
	default:
		dir := cfg.Artifacts.Dir
		if dir == "" {
			dir = filepath.Join(dataDir, "artifacts")
		}
		store, err := fs.New(dir)
		if err != nil {
			return nil, err
		}
		set.artifacts = store
	}
	return set, nil
}

func (a *App) buildPipeline(stores *storeSet) (*services.Pipeline, error) {
	cfg := a.cfg.Pipeline

	names := cfg.Enrichers
	if len(names) == 0 {
		names = enrichers.DefaultOrder
	}
	registry := enrichers.NewRegistry()
	enrichers.RegisterDefaults(registry)
	enricherPipeline, err := enrichers.Build(registry, names, cfg.EnricherSettings)
	if err != nil {
		return nil, fmt.Errorf("building enrichers: %w", err)
	}

	local := extractors.NewDefaultRegistry()
	driveExtractor := drive.New(local, drive.WithRateLimit(google.RateLimitConfig{
		RequestsPerSecond: a.cfg.Google.RequestsPerSecond,
		BurstSize:         a.cfg.Google.Burst,
	}))

	return services.NewPipeline(
		services.PipelineConfig{
			Workers:        cfg.Workers,
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff.Std(),
			MaxBackoff:     cfg.MaxBackoff.Std(),
			AttemptTimeout: cfg.AttemptTimeout.Std(),
		},
		stores.documents,
		stores.artifacts,
		local,
		classifier.New(),
		a.Sessions,
		a.Bus,
		services.WithProviderExtractor(driveExtractor),
		services.WithEnrichers(enricherPipeline),
	), nil
}

func providerConfigs(in map[string]file.ProviderConfig) map[string]oauth.ProviderConfig {
	out := make(map[string]oauth.ProviderConfig, len(in))
	for name, p := range in {
		out[name] = oauth.ProviderConfig{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			TokenURL:     p.TokenURL,
			AuthURL:      p.AuthURL,
			Scopes:       p.Scopes,
		}
	}
	return out
}

func schedulerConfig(cfg file.SchedulerConfig) domain.SchedulerConfig {
	out := domain.DefaultSchedulerConfig()
	out.Enabled = cfg.Enabled
	if d := cfg.SessionRefreshInterval.Std(); d > 0 {
		out.TaskConfigs[domain.TaskIDSessionRefresh] = domain.TaskConfig{Enabled: true, Interval: d}
	}
	if d := cfg.PipelineResumeInterval.Std(); d > 0 {
		out.TaskConfigs[domain.TaskIDPipelineResume] = domain.TaskConfig{Enabled: true, Interval: d}
	}
	return out
}

// IssueToken signs an HTTP bearer token for userID.
func (a *App) IssueToken(userID string, ttl time.Duration) (string, error) {
	return httpapi.IssueToken(a.cfg.HTTP.JWTSecret, a.cfg.HTTP.JWTIssuer, userID, ttl)
}

// Serve starts the pipeline and every enabled surface, and blocks until ctx
// ends or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfg

	if err := a.Pipeline.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Pipeline.Stop(stopCtx); err != nil {
			logger.Warn("stopping pipeline: %v", err)
		}
	}()
	// Documents uploaded by one-shot commands wait at queued until here.
	if _, err := a.Pipeline.Resume(ctx); err != nil {
		logger.Warn("resuming documents: %v", err)
	}

	if cfg.NATS.URL != "" {
		relay, err := natsrelay.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer relay.Close()
		if err := relay.Attach(a.Bus); err != nil {
			return fmt.Errorf("attaching relay: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.Scheduler != nil && cfg.Scheduler.Enabled {
		g.Go(func() error {
			<-gctx.Done()
			return a.Scheduler.Stop()
		})
		g.Go(func() error { return a.Scheduler.Start(gctx) })
	}

	if cfg.HTTP.Enabled {
		server, err := httpapi.New(a.Hub, httpapi.Config{
			Addr:      cfg.HTTP.Addr,
			JWTSecret: cfg.HTTP.JWTSecret,
			JWTIssuer: cfg.HTTP.JWTIssuer,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(gctx) })
	}

	if cfg.Intake.Enabled {
		watcher := intake.New(cfg.Intake.Dir, a.Pipeline, cfg.Intake.Debounce.Std())
		g.Go(func() error { return watcher.Run(gctx) })
	}

	logger.Info("caseflow serving")
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close drains the bus into the module subscribers, unsubscribes them and
// releases stores. Unsubscribing first would discard queued deliveries.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Bus != nil {
		if err := a.Bus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing bus: %w", err))
		}
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
