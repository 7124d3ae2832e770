package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.Pipeline = (*Pipeline)(nil)

// PipelineSource is the module name stamped on packs the pipeline publishes.
const PipelineSource = "documents"

// excerptLength bounds the text excerpt kept in a document's fields.
const excerptLength = 500

// PipelineConfig tunes the document pipeline.
type PipelineConfig struct {
	// Workers is the number of documents processed concurrently.
	Workers int

	// MaxAttempts bounds extraction attempts before a document degrades.
	MaxAttempts int

	// InitialBackoff and MaxBackoff shape the exponential wait between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// AttemptTimeout bounds a single extraction attempt.
	AttemptTimeout time.Duration
}

// DefaultPipelineConfig returns sensible defaults for the pipeline.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:        4,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		AttemptTimeout: 2 * time.Minute,
	}
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	return c
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithProviderExtractor enables the primary extraction path for one provider.
func WithProviderExtractor(e driven.ProviderExtractor) PipelineOption {
	return func(p *Pipeline) {
		p.primary[e.Provider()] = e
	}
}

// WithEnrichers sets the enricher pipeline run over extracted text.
func WithEnrichers(e driven.EnricherPipeline) PipelineOption {
	return func(p *Pipeline) {
		p.enrichers = e
	}
}

// Pipeline drives document records through the processing state machine.
//
// A document is processed by at most one run at a time: scheduling claims
// the document ID until the run ends. Stage changes are committed under a
// per-document lock and only while the run's context is live, so a delete
// or shutdown that cancels the run leaves the record at its last committed
// stage.
type Pipeline struct {
	cfg        PipelineConfig
	docs       driven.DocumentStore
	artifacts  driven.ArtifactStore
	extractors driven.ExtractorRegistry
	classifier driven.Classifier
	sessions   driving.SessionManager
	bus        driven.EventBus
	primary    map[string]driven.ProviderExtractor
	enrichers  driven.EnricherPipeline

	tracer trace.Tracer
	locks  *keyedMutex
	sleep  func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	claims  map[string]*claim
	backlog []string
	wake    chan struct{}
	running bool
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// claim marks a document as owned by a scheduled or running run.
type claim struct {
	cancel context.CancelFunc
}

// NewPipeline creates a document pipeline.
func NewPipeline(
	cfg PipelineConfig,
	docs driven.DocumentStore,
	artifacts driven.ArtifactStore,
	extractors driven.ExtractorRegistry,
	classifier driven.Classifier,
	sessions driving.SessionManager,
	bus driven.EventBus,
	opts ...PipelineOption,
) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:        cfg,
		docs:       docs,
		artifacts:  artifacts,
		extractors: extractors,
		classifier: classifier,
		sessions:   sessions,
		bus:        bus,
		primary:    make(map[string]driven.ProviderExtractor),
		tracer:     otel.Tracer(tracerName),
		locks:      newKeyedMutex(),
		sleep:      sleepContext,
		claims:     make(map[string]*claim),
		wake:       make(chan struct{}, cfg.Workers),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload stores the artifact and creates its record at the uploaded stage.
func (p *Pipeline) Upload(ctx context.Context, req driving.UploadRequest) (*domain.DocumentRecord, error) {
	if _, _, _, err := domain.ParseUserID(req.OwnerID); err != nil {
		return nil, domain.WrapError(domain.KindValidation, err, "owner id")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.NewError(domain.KindValidation, "document name is required")
	}
	if len(req.Data) == 0 && req.ProviderFileID == "" {
		return nil, domain.NewError(domain.KindValidation, "document %s is empty", req.Name)
	}

	ref, err := p.artifacts.Put(ctx, req.OwnerID, req.Name, req.Data)
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	now := time.Now().UTC()
	rec := &domain.DocumentRecord{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		Name:           req.Name,
		MIMEType:       detectMIMEType(req.Name, req.MIMEType, req.Data),
		Stage:          domain.StageUploaded,
		StorageRef:     ref,
		ProviderFileID: req.ProviderFileID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.docs.Save(ctx, rec); err != nil {
		_ = p.artifacts.Delete(context.WithoutCancel(ctx), ref)
		return nil, fmt.Errorf("save document: %w", err)
	}
	logger.L().Info("document uploaded", zap.String("document_id", rec.ID), zap.String("owner", rec.OwnerID),
		zap.String("mime_type", rec.MIMEType))
	out := rec.Clone()
	return &out, nil
}

// extensionTypes covers types missing from minimal system MIME tables.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".eml":      "message/rfc822",
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// detectMIMEType prefers the declared type, then the file extension, then
// content sniffing.
func detectMIMEType(name, declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if known, ok := extensionTypes[ext]; ok {
		return known
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	if len(data) > 0 {
		mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
		return mt
	}
	return "application/octet-stream"
}

// Enqueue moves an uploaded document to queued and schedules it. Documents
// already queued, processing or processed are left alone.
func (p *Pipeline) Enqueue(ctx context.Context, id string) error {
	unlock := p.locks.Lock(id)
	defer unlock()

	rec, err := p.get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case rec.Stage == domain.StageUploaded:
		if err := rec.Transition(domain.StageQueued); err != nil {
			return err
		}
		if err := p.docs.Save(ctx, rec); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		p.schedule(id)
	case rec.Stage.Active():
		// Picks up a record abandoned by a previous process; a no-op when
		// already claimed.
		p.schedule(id)
	default:
		logger.Debug("pipeline: enqueue of %s at %s ignored", id, rec.Stage)
	}
	return nil
}

// Reprocess sends a degraded, paused or processed document back to queued
// with a fresh retry budget. A successful run republishes its events.
func (p *Pipeline) Reprocess(ctx context.Context, id string) error {
	unlock := p.locks.Lock(id)
	defer unlock()

	rec, err := p.get(ctx, id)
	if err != nil {
		return err
	}
	if p.claimed(id) {
		return domain.NewError(domain.KindValidation, "document %s is being processed", id)
	}
	if !rec.Stage.Reprocessable() {
		return domain.NewError(domain.KindValidation, "document %s cannot be reprocessed from %s", id, rec.Stage)
	}
	rec.RetryCount = 0
	rec.PausedReason = ""
	rec.FailureReason = ""
	if err := rec.Transition(domain.StageQueued); err != nil {
		return err
	}
	if err := p.docs.Save(ctx, rec); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	p.schedule(id)
	logger.L().Info("document reprocessing requested", zap.String("document_id", id))
	return nil
}

// Delete cancels in-flight work for the document, removes its record and
// artifact, then publishes document_deleted.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	if c, ok := p.claims[id]; ok {
		if c.cancel != nil {
			c.cancel()
		}
		delete(p.claims, id)
	}
	p.mu.Unlock()

	unlock := p.locks.Lock(id)
	rec, err := p.get(ctx, id)
	if err != nil {
		unlock()
		return err
	}
	if err := p.docs.Delete(ctx, id); err != nil {
		unlock()
		return fmt.Errorf("delete document: %w", err)
	}
	unlock()

	if rec.StorageRef != "" {
		if err := p.artifacts.Delete(ctx, rec.StorageRef); err != nil {
			logger.Warn("pipeline: artifact %s for %s not removed: %v", rec.StorageRef, id, err)
		}
	}

	pack := domain.NewInfoPack(uuid.NewString(), domain.PackDocumentData, PipelineSource, rec.OwnerID, map[string]any{
		"document_id":   rec.ID,
		"document_name": rec.Name,
	})
	if err := p.bus.Publish(ctx, domain.EventDocumentDeleted, pack); err != nil {
		return fmt.Errorf("publish %s: %w", domain.EventDocumentDeleted, err)
	}
	logger.L().Info("document deleted", zap.String("document_id", id))
	return nil
}

// Resume schedules records left mid-flight by a previous process and
// paused records whose owner can authenticate again.
func (p *Pipeline) Resume(ctx context.Context) (int, error) {
	abandoned, err := p.docs.ListByStage(ctx, domain.StageQueued, domain.StageExtracting, domain.StageExtractingRetry)
	if err != nil {
		return 0, fmt.Errorf("list abandoned documents: %w", err)
	}
	scheduled := 0
	for i := range abandoned {
		if p.schedule(abandoned[i].ID) {
			scheduled++
		}
	}

	paused, err := p.docs.ListByStage(ctx, domain.StagePausedAuth)
	if err != nil {
		return scheduled, fmt.Errorf("list paused documents: %w", err)
	}
	authorised := make(map[string]bool)
	for i := range paused {
		owner := paused[i].OwnerID
		ok, seen := authorised[owner]
		if !seen {
			_, credErr := p.sessions.GetValidCredential(ctx, owner)
			ok = credErr == nil
			authorised[owner] = ok
		}
		if !ok {
			continue
		}
		resumed, err := p.unpause(ctx, paused[i].ID)
		if err != nil {
			logger.Warn("pipeline: resume of %s failed: %v", paused[i].ID, err)
			continue
		}
		if resumed {
			scheduled++
		}
	}
	if scheduled > 0 {
		logger.Info("pipeline: resumed %d documents", scheduled)
	}
	return scheduled, nil
}

func (p *Pipeline) unpause(ctx context.Context, id string) (bool, error) {
	unlock := p.locks.Lock(id)
	defer unlock()

	rec, err := p.get(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Stage != domain.StagePausedAuth || p.claimed(id) {
		return false, nil
	}
	rec.PausedReason = ""
	if err := rec.Transition(domain.StageQueued); err != nil {
		return false, err
	}
	if err := p.docs.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("save document: %w", err)
	}
	return p.schedule(id), nil
}

// Get retrieves a document record.
func (p *Pipeline) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	return p.get(ctx, id)
}

// List returns an owner's documents.
func (p *Pipeline) List(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error) {
	recs, err := p.docs.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return recs, nil
}

func (p *Pipeline) get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	rec, err := p.docs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "document %s", id)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return rec, nil
}

// Start launches the worker pool. Documents scheduled before Start are
// picked up once workers run.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, stop := context.WithCancel(ctx)
	p.stop = stop
	p.running = true
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}
	// Wake workers for anything scheduled while stopped.
	for range p.backlog {
		p.notify()
	}
	logger.Debug("pipeline: started %d workers", p.cfg.Workers)
	return nil
}

// Stop cancels in-flight runs and waits for workers to exit or ctx to end.
// Cancelled runs commit nothing further.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stop()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// schedule claims id and appends it to the backlog. It reports false when
// the document is already claimed.
func (p *Pipeline) schedule(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.claims[id]; ok {
		return false
	}
	p.claims[id] = &claim{}
	p.backlog = append(p.backlog, id)
	p.notify()
	return true
}

func (p *Pipeline) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) claimed(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.claims[id]
	return ok
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		id, runCtx, release, ok := p.next(ctx)
		if !ok {
			return
		}
		p.process(runCtx, id)
		release()
	}
}

// next blocks until a claimed document is available or ctx ends.
func (p *Pipeline) next(ctx context.Context) (string, context.Context, func(), bool) {
	for {
		p.mu.Lock()
		for len(p.backlog) > 0 {
			id := p.backlog[0]
			p.backlog = p.backlog[1:]
			c, ok := p.claims[id]
			if !ok || c.cancel != nil {
				// Deleted while waiting, or already picked up.
				continue
			}
			runCtx, cancel := context.WithCancel(ctx)
			c.cancel = cancel
			p.mu.Unlock()
			release := func() {
				cancel()
				p.mu.Lock()
				if p.claims[id] == c {
					delete(p.claims, id)
				}
				p.mu.Unlock()
			}
			return id, runCtx, release, true
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", nil, nil, false
		case <-p.wake:
		}
	}
}

// errAbandoned stops a run whose context was cancelled.
var errAbandoned = errors.New("run abandoned")

// process runs one document from its current active stage to the next
// resting stage.
func (p *Pipeline) process(ctx context.Context, id string) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(attribute.String("caseflow.document_id", id)))
	defer span.End()

	rec, err := p.get(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("pipeline: load %s: %v", id, err)
		}
		return
	}
	if !rec.Stage.Active() {
		logger.Debug("pipeline: %s at %s needs no processing", id, rec.Stage)
		return
	}

	err = p.run(ctx, rec)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("caseflow.stage", string(rec.Stage)))
	case errors.Is(err, errAbandoned):
		logger.Debug("pipeline: %s abandoned at %s", id, rec.Stage)
	default:
		span.SetStatus(codes.Error, err.Error())
		logger.L().Error("pipeline run failed", zap.String("document_id", id), zap.String("stage", string(rec.Stage)),
			zap.Error(err))
	}
}

func (p *Pipeline) run(ctx context.Context, rec *domain.DocumentRecord) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.Reset()

	// An abandoned extracting stage resumes its interrupted attempt.
	switch rec.Stage {
	case domain.StageQueued:
		if err := p.commit(ctx, rec, domain.StageExtracting, func(r *domain.DocumentRecord) { r.RetryCount++ }); err != nil {
			return err
		}
	case domain.StageExtractingRetry:
		if rec.RetryCount >= p.cfg.MaxAttempts {
			return p.degrade(ctx, rec, "retry budget exhausted")
		}
		if err := p.commit(ctx, rec, domain.StageExtracting, func(r *domain.DocumentRecord) { r.RetryCount++ }); err != nil {
			return err
		}
	}

	for {
		ext, path, err := p.extract(ctx, rec)
		if ctx.Err() != nil {
			return errAbandoned
		}
		if err == nil {
			return p.finish(ctx, rec, ext, path)
		}

		cause := err
		kind := domain.KindOf(cause)
		switch {
		case kind == domain.KindAuthentication:
			// Credential failures never consume the retry budget.
			return p.commit(ctx, rec, domain.StagePausedAuth, func(r *domain.DocumentRecord) {
				r.RetryCount--
				r.PausedReason = cause.Error()
			})
		case kind.Retryable() || kind == domain.KindTimeout:
			err = p.commit(ctx, rec, domain.StageExtractingRetry, func(r *domain.DocumentRecord) {
				r.FailureReason = cause.Error()
			})
			if err != nil {
				return err
			}
			logger.L().Warn("extraction attempt failed", zap.String("document_id", rec.ID),
				zap.Int("attempt", rec.RetryCount), zap.Error(cause))
			if rec.RetryCount >= p.cfg.MaxAttempts {
				return p.degrade(ctx, rec, cause.Error())
			}
			if p.sleep(ctx, bo.NextBackOff()) != nil {
				return errAbandoned
			}
			err = p.commit(ctx, rec, domain.StageExtracting, func(r *domain.DocumentRecord) { r.RetryCount++ })
			if err != nil {
				return err
			}
		default:
			return p.commit(ctx, rec, domain.StageFailedPermanent, func(r *domain.DocumentRecord) {
				r.FailureReason = cause.Error()
			})
		}
	}
}

func (p *Pipeline) degrade(ctx context.Context, rec *domain.DocumentRecord, reason string) error {
	logger.L().Warn("document degraded", zap.String("document_id", rec.ID), zap.Int("attempts", rec.RetryCount))
	return p.commit(ctx, rec, domain.StageFailedDegraded, func(r *domain.DocumentRecord) {
		r.FailureReason = reason
	})
}

// extract runs one attempt: the provider path when available, otherwise or
// on provider unavailability the local path.
func (p *Pipeline) extract(ctx context.Context, rec *domain.DocumentRecord) (*driven.Extraction, domain.ExtractionPath, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	var primaryErr error
	if pe := p.primaryFor(rec); pe != nil {
		ext, err := p.extractPrimary(ctx, pe, rec)
		if err == nil {
			return ext, domain.ExtractionPrimary, nil
		}
		if !errors.Is(err, domain.ErrTransientProvider) && !errors.Is(err, domain.ErrNotFound) {
			return nil, "", err
		}
		logger.L().Info("primary extraction unavailable, using local path", zap.String("document_id", rec.ID),
			zap.Error(err))
		primaryErr = err
	}

	local, ok := p.extractors.Get(rec.MIMEType)
	if !ok {
		if primaryErr != nil {
			return nil, "", primaryErr
		}
		return nil, "", domain.NewError(domain.KindPermanent, "unsupported document type %s", rec.MIMEType)
	}
	data, err := p.artifacts.Get(ctx, rec.StorageRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.WrapError(domain.KindPermanent, err, "artifact missing")
		}
		return nil, "", domain.WrapError(domain.KindTransientProvider, err, "read artifact")
	}
	if len(data) == 0 && primaryErr != nil {
		// Provider-only upload: nothing to fall back to.
		return nil, "", primaryErr
	}
	ext, err := local.Extract(ctx, rec, data)
	if err != nil {
		return nil, "", err
	}
	return ext, domain.ExtractionLocal, nil
}

func (p *Pipeline) primaryFor(rec *domain.DocumentRecord) driven.ProviderExtractor {
	if rec.ProviderFileID == "" {
		return nil
	}
	provider, _, _, err := domain.ParseUserID(rec.OwnerID)
	if err != nil {
		return nil
	}
	return p.primary[provider]
}

// extractPrimary calls the provider. A rejected credential is refreshed and
// retried once; a second rejection counts as a transient failure.
func (p *Pipeline) extractPrimary(ctx context.Context, pe driven.ProviderExtractor, rec *domain.DocumentRecord) (*driven.Extraction, error) {
	token, err := p.sessions.GetValidCredential(ctx, rec.OwnerID)
	if err != nil {
		return nil, err
	}
	ext, err := pe.Extract(ctx, token, rec)
	if !errors.Is(err, domain.ErrAuthentication) {
		return ext, err
	}

	logger.L().Info("provider rejected credential, refreshing", zap.String("document_id", rec.ID))
	token, err = p.sessions.ForceRefresh(ctx, rec.OwnerID)
	if err != nil {
		return nil, err
	}
	ext, err = pe.Extract(ctx, token, rec)
	if errors.Is(err, domain.ErrAuthentication) {
		return nil, domain.WrapError(domain.KindTransientProvider, err, "credential rejected after refresh")
	}
	return ext, err
}

// finish enriches and classifies, commits classified, publishes the
// document's events once and commits registered.
func (p *Pipeline) finish(ctx context.Context, rec *domain.DocumentRecord, ext *driven.Extraction, path domain.ExtractionPath) error {
	fields := make(map[string]any, len(ext.Fields)+4)
	for k, v := range ext.Fields {
		fields[k] = v
	}
	if p.enrichers != nil {
		enriched, err := p.enrichers.Enrich(ctx, ext.Text, fields)
		if err != nil {
			return p.commit(ctx, rec, domain.StageFailedPermanent, func(r *domain.DocumentRecord) {
				r.FailureReason = "enrich: " + err.Error()
			})
		}
		fields = enriched
	}
	fields["excerpt"] = excerpt(ext.Text)

	class, err := p.classifier.Classify(ctx, rec, ext.Text)
	if err != nil {
		return p.commit(ctx, rec, domain.StageFailedPermanent, func(r *domain.DocumentRecord) {
			r.FailureReason = "classify: " + err.Error()
		})
	}

	if err := p.commit(ctx, rec, domain.StageClassified, func(r *domain.DocumentRecord) {
		r.Fields = fields
		r.Classification = &class
		r.ExtractionPath = path
		r.FailureReason = ""
	}); err != nil {
		return err
	}

	if err := p.publishClassified(ctx, rec); err != nil {
		return err
	}
	if err := p.commit(ctx, rec, domain.StageRegistered, nil); err != nil {
		return err
	}
	logger.L().Info("document registered", zap.String("document_id", rec.ID),
		zap.String("category", rec.Classification.Category), zap.String("path", string(path)))
	return nil
}

func (p *Pipeline) publishClassified(ctx context.Context, rec *domain.DocumentRecord) error {
	extractedFields := make(map[string]any, len(rec.Fields)+3)
	for k, v := range rec.Fields {
		extractedFields[k] = v
	}
	extractedFields["document_id"] = rec.ID
	extractedFields["document_name"] = rec.Name
	extractedFields["category"] = rec.Classification.Category
	extracted := domain.NewInfoPack(uuid.NewString(), domain.PackDocumentData, PipelineSource, rec.OwnerID, extractedFields)

	added := extracted.Derive(uuid.NewString(), domain.PackCaseData, PipelineSource, map[string]any{
		"document_id":     rec.ID,
		"document_name":   rec.Name,
		"mime_type":       rec.MIMEType,
		"category":        rec.Classification.Category,
		"confidence":      rec.Classification.Confidence,
		"signals":         append([]string(nil), rec.Classification.Signals...),
		"extraction_path": string(rec.ExtractionPath),
	})

	if err := p.bus.Publish(ctx, domain.EventEventsExtracted, extracted); err != nil {
		return fmt.Errorf("publish %s: %w", domain.EventEventsExtracted, err)
	}
	if err := p.bus.Publish(ctx, domain.EventDocumentAdded, added); err != nil {
		return fmt.Errorf("publish %s: %w", domain.EventDocumentAdded, err)
	}
	return nil
}

// commit applies mutate, moves rec to stage to and saves it, unless the run
// was cancelled.
func (p *Pipeline) commit(ctx context.Context, rec *domain.DocumentRecord, to domain.Stage, mutate func(*domain.DocumentRecord)) error {
	unlock := p.locks.Lock(rec.ID)
	defer unlock()

	if ctx.Err() != nil {
		return errAbandoned
	}
	next := rec.Clone()
	if mutate != nil {
		mutate(&next)
	}
	if err := next.Transition(to); err != nil {
		return err
	}
	if err := p.docs.Save(context.WithoutCancel(ctx), &next); err != nil {
		return fmt.Errorf("save document at %s: %w", to, err)
	}
	*rec = next
	logger.Debug("pipeline: %s -> %s (attempt %d)", rec.ID, rec.Stage, rec.RetryCount)
	return nil
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
