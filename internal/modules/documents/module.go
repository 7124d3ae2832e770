// Package documents exposes the document pipeline to the hub: intake,
// status and operator controls.
package documents

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/modules"
)

// Name is the module name.
const Name = "documents"

// Action names.
const (
	ActionUpload    = "upload"
	ActionEnqueue   = "enqueue"
	ActionStatus    = "status"
	ActionReprocess = "reprocess"
	ActionDelete    = "delete"
	ActionList      = "list"
)

// Parameter names.
const (
	ParamName           = "name"
	ParamContent        = "content"
	ParamEncoding       = "encoding"
	ParamMIMEType       = "mime_type"
	ParamProviderFileID = "provider_file_id"
	ParamDocumentID     = "document_id"
	ParamStage          = "stage"
)

const (
	uploadTimeout  = 2 * time.Minute
	defaultTimeout = 10 * time.Second
)

// Module is the documents hub module.
type Module struct {
	pipeline driving.Pipeline
}

// New creates the documents module over a pipeline.
func New(pipeline driving.Pipeline) *Module {
	return &Module{pipeline: pipeline}
}

// Descriptor declares the module.
func (m *Module) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:     Name,
		Category: "intake",
		DocumentTypes: []string{
			domain.CategoryLease, domain.CategoryEvictionNotice, domain.CategoryCourtFiling,
			domain.CategoryCorrespondence, domain.CategoryInvoice, domain.CategoryOther,
		},
		Produces: []domain.PackType{domain.PackDocumentData, domain.PackCaseData},
	}
}

// Actions returns the module's action set.
func (m *Module) Actions() []driving.Action {
	userOnly := []string{domain.ContextUserID}
	byID := []string{ParamDocumentID}
	return []driving.Action{
		{
			Descriptor: domain.ActionDescriptor{
				Name:            ActionUpload,
				RequiredParams:  []string{ParamName, ParamContent},
				OptionalParams:  []string{ParamEncoding, ParamMIMEType, ParamProviderFileID},
				Produces:        []string{ParamDocumentID, ParamStage},
				RequiresContext: userOnly,
				MayBlock:        true,
				Timeout:         uploadTimeout,
			},
			Handler: m.upload,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            ActionEnqueue,
				RequiredParams:  byID,
				Produces:        []string{ParamDocumentID, ParamStage},
				RequiresContext: userOnly,
				Timeout:         defaultTimeout,
			},
			Handler: m.enqueue,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            ActionStatus,
				RequiredParams:  byID,
				Produces:        []string{"document"},
				RequiresContext: userOnly,
				Timeout:         defaultTimeout,
			},
			Handler: m.status,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            ActionReprocess,
				RequiredParams:  byID,
				Produces:        []string{ParamDocumentID, ParamStage},
				RequiresContext: userOnly,
				Timeout:         defaultTimeout,
			},
			Handler: m.reprocess,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            ActionDelete,
				RequiredParams:  byID,
				Produces:        []string{ParamDocumentID, "deleted"},
				RequiresContext: userOnly,
				MayBlock:        true,
				Timeout:         time.Minute,
			},
			Handler: m.delete,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            ActionList,
				OptionalParams:  []string{ParamStage},
				Produces:        []string{"documents", "count"},
				RequiresContext: userOnly,
				Timeout:         defaultTimeout,
			},
			Handler: m.list,
		},
	}
}

func (m *Module) upload(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	name, err := modules.RequiredString(params, ParamName)
	if err != nil {
		return nil, err
	}
	encoding, err := modules.String(params, ParamEncoding)
	if err != nil {
		return nil, err
	}
	data, err := modules.Bytes(params, ParamContent, encoding)
	if err != nil {
		return nil, err
	}
	mimeType, err := modules.String(params, ParamMIMEType)
	if err != nil {
		return nil, err
	}
	fileID, err := modules.String(params, ParamProviderFileID)
	if err != nil {
		return nil, err
	}

	rec, err := m.pipeline.Upload(ctx, driving.UploadRequest{
		OwnerID:        actx.UserID(),
		Name:           name,
		MIMEType:       mimeType,
		Data:           data,
		ProviderFileID: fileID,
	})
	if err != nil {
		return nil, err
	}
	if err := m.pipeline.Enqueue(ctx, rec.ID); err != nil {
		return nil, err
	}
	return map[string]any{ParamDocumentID: rec.ID, ParamStage: string(domain.StageQueued)}, nil
}

func (m *Module) enqueue(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	rec, err := m.owned(ctx, actx, params)
	if err != nil {
		return nil, err
	}
	if err := m.pipeline.Enqueue(ctx, rec.ID); err != nil {
		return nil, err
	}
	return m.stageResult(ctx, rec.ID)
}

func (m *Module) status(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	rec, err := m.owned(ctx, actx, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"document": View(rec)}, nil
}

func (m *Module) reprocess(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	rec, err := m.owned(ctx, actx, params)
	if err != nil {
		return nil, err
	}
	if err := m.pipeline.Reprocess(ctx, rec.ID); err != nil {
		return nil, err
	}
	return m.stageResult(ctx, rec.ID)
}

func (m *Module) delete(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	rec, err := m.owned(ctx, actx, params)
	if err != nil {
		return nil, err
	}
	if err := m.pipeline.Delete(ctx, rec.ID); err != nil {
		return nil, err
	}
	return map[string]any{ParamDocumentID: rec.ID, "deleted": true}, nil
}

func (m *Module) list(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	stage, err := modules.String(params, ParamStage)
	if err != nil {
		return nil, err
	}
	if stage != "" && !domain.Stage(stage).Valid() {
		return nil, domain.NewError(domain.KindValidation, "unknown stage %q", stage)
	}
	recs, err := m.pipeline.List(ctx, actx.UserID())
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(recs))
	for i := range recs {
		if stage != "" && string(recs[i].Stage) != stage {
			continue
		}
		views = append(views, View(&recs[i]))
	}
	return map[string]any{"documents": views, "count": len(views)}, nil
}

// owned loads the document named by params, hiding other users' documents.
func (m *Module) owned(ctx context.Context, actx driving.ActionContext, params map[string]any) (*domain.DocumentRecord, error) {
	id, err := modules.RequiredString(params, ParamDocumentID)
	if err != nil {
		return nil, err
	}
	rec, err := m.pipeline.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != actx.UserID() {
		return nil, domain.NewError(domain.KindNotFound, "document %s", id)
	}
	return rec, nil
}

func (m *Module) stageResult(ctx context.Context, id string) (map[string]any, error) {
	rec, err := m.pipeline.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "document %s", id)
		}
		return nil, err
	}
	return map[string]any{ParamDocumentID: id, ParamStage: string(rec.Stage)}, nil
}

// View is the non-secret result shape of a document record.
func View(rec *domain.DocumentRecord) map[string]any {
	v := map[string]any{
		"id":          rec.ID,
		"name":        rec.Name,
		"mime_type":   rec.MIMEType,
		"stage":       string(rec.Stage),
		"retry_count": rec.RetryCount,
		"created_at":  rec.CreatedAt.Format(time.RFC3339),
		"updated_at":  rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.ExtractionPath != "" {
		v["extraction_path"] = string(rec.ExtractionPath)
	}
	if rec.Classification != nil {
		v["category"] = rec.Classification.Category
		v["confidence"] = rec.Classification.Confidence
	}
	if rec.PausedReason != "" {
		v["paused_reason"] = rec.PausedReason
	}
	if rec.FailureReason != "" {
		v["failure_reason"] = rec.FailureReason
	}
	if rec.ProviderFileID != "" {
		v["provider_file_id"] = rec.ProviderFileID
	}
	return v
}
