// Package violations evaluates extracted leases against a table of legal
// rules and reports each finding on the bus.
package violations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
	"github.com/custodia-labs/caseflow/internal/modules"
)

// Name is the module name and its bus subscriber name.
const Name = "violations"

var findingNamespace = uuid.MustParse("0b8e2f4c-7d61-4a9e-b3c2-5f1d9e6a8c47")

// Module is the violations hub module.
type Module struct {
	store  driven.ViolationStore
	rules  []Rule
	limits Limits
	now    func() time.Time
	bus    driven.EventBus

	deleted *modules.Tombstones
}

// Option configures the module.
type Option func(*Module)

// WithLimits overrides the rule limits. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(m *Module) {
		if l.MaxDepositMonths > 0 {
			m.limits.MaxDepositMonths = l.MaxDepositMonths
		}
		if l.MinNoticeDays > 0 {
			m.limits.MinNoticeDays = l.MinNoticeDays
		}
	}
}

// WithRules replaces the rule table.
func WithRules(rules ...Rule) Option {
	return func(m *Module) { m.rules = rules }
}

// New creates the violations module.
func New(store driven.ViolationStore, opts ...Option) *Module {
	m := &Module{
		store:  store,
		rules:  DefaultRules,
		limits: DefaultLimits(),
		now:    func() time.Time { return time.Now().UTC() },

		deleted: modules.NewTombstones(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Descriptor declares the module.
func (m *Module) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:          Name,
		Category:      "analysis",
		DocumentTypes: []string{domain.CategoryLease},
		Accepts:       []domain.PackType{domain.PackDocumentData},
		Produces:      []domain.PackType{domain.PackAnalysisResult},
		DependsOn:     []string{"documents"},
	}
}

// Actions returns the module's action set.
func (m *Module) Actions() []driving.Action {
	return []driving.Action{
		{
			Descriptor: domain.ActionDescriptor{
				Name:            "list",
				OptionalParams:  []string{"document_id", "severity"},
				Produces:        []string{"violations", "count"},
				RequiresContext: []string{domain.ContextUserID},
				Timeout:         10 * time.Second,
			},
			Handler: m.list,
		},
	}
}

// Subscribe listens for extracted and deleted documents. The extracted
// fields carry the document's category, so one event is enough to decide
// whether the lease rules apply.
func (m *Module) Subscribe(bus driven.EventBus) (func(), error) {
	m.bus = bus
	cancelExtracted, err := bus.Subscribe(domain.EventEventsExtracted, Name, m.onExtracted)
	if err != nil {
		return nil, err
	}
	cancelDeleted, err := bus.Subscribe(domain.EventDocumentDeleted, Name, m.onDeleted)
	if err != nil {
		cancelExtracted()
		return nil, err
	}
	return func() {
		cancelDeleted()
		cancelExtracted()
	}, nil
}

// Evaluate runs the rule table over a lease's fields.
func (m *Module) Evaluate(pack domain.InfoPack) []Finding {
	var out []Finding
	for _, rule := range m.rules {
		if f, ok := rule(pack, m.limits); ok {
			out = append(out, f)
		}
	}
	return out
}

func (m *Module) onExtracted(ctx context.Context, pack domain.InfoPack) error {
	docID := pack.Text("document_id")
	if docID == "" {
		return domain.NewError(domain.KindValidation, "pack %s has no document_id", pack.ID)
	}
	if m.deleted.Deleted(docID) {
		return nil
	}
	if err := m.store.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear violations for %s: %w", docID, err)
	}
	if pack.Text("category") != domain.CategoryLease {
		return nil
	}

	findings := m.Evaluate(pack)
	if len(findings) == 0 {
		return nil
	}
	now := m.now()
	found := make([]domain.Violation, 0, len(findings))
	for _, f := range findings {
		found = append(found, domain.Violation{
			ID:         uuid.NewSHA1(findingNamespace, []byte(docID+"|"+f.Rule)).String(),
			UserID:     pack.UserID,
			DocumentID: docID,
			Rule:       f.Rule,
			Severity:   f.Severity,
			Detail:     f.Detail,
			FoundAt:    now,
		})
	}
	if err := m.store.Add(ctx, found); err != nil {
		return fmt.Errorf("store violations for %s: %w", docID, err)
	}
	if m.deleted.Deleted(docID) {
		// Deleted while these rows were being written.
		return m.onDeleted(ctx, pack)
	}

	for _, v := range found {
		result := pack.Derive(uuid.NewString(), domain.PackAnalysisResult, Name, map[string]any{
			"violation_id":  v.ID,
			"document_id":   docID,
			"document_name": pack.Text("document_name"),
			"rule":          v.Rule,
			"severity":      v.Severity,
			"detail":        v.Detail,
		})
		if err := m.bus.Publish(ctx, domain.EventViolationFound, result); err != nil {
			return fmt.Errorf("publish %s: %w", domain.EventViolationFound, err)
		}
	}
	logger.L().Info("lease violations found", zap.String("document_id", docID), zap.Int("count", len(found)))
	return nil
}

func (m *Module) onDeleted(ctx context.Context, pack domain.InfoPack) error {
	docID := pack.Text("document_id")
	if docID == "" {
		return nil
	}
	m.deleted.Mark(docID)
	if err := m.store.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear violations for %s: %w", docID, err)
	}
	return nil
}

func (m *Module) list(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	docID, err := modules.String(params, "document_id")
	if err != nil {
		return nil, err
	}
	severity, err := modules.String(params, "severity")
	if err != nil {
		return nil, err
	}
	switch severity {
	case "", domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
	default:
		return nil, domain.NewError(domain.KindValidation, "unknown severity %q", severity)
	}

	all, err := m.store.List(ctx, actx.UserID())
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	out := make([]map[string]any, 0, len(all))
	for _, v := range all {
		if docID != "" && v.DocumentID != docID {
			continue
		}
		if severity != "" && v.Severity != severity {
			continue
		}
		out = append(out, map[string]any{
			"id":          v.ID,
			"document_id": v.DocumentID,
			"rule":        v.Rule,
			"severity":    v.Severity,
			"detail":      v.Detail,
			"found_at":    v.FoundAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"violations": out, "count": len(out)}, nil
}
