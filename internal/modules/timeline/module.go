// Package timeline turns dates found in extracted documents into a per-user
// case timeline and warns about deadlines coming up.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/enrichers/dates"
	"github.com/custodia-labs/caseflow/internal/logger"
	"github.com/custodia-labs/caseflow/internal/modules"
)

// Name is the module name and its bus subscriber name.
const Name = "timeline"

// DefaultDeadlineWindow is how far ahead an entry counts as an approaching
// deadline.
const DefaultDeadlineWindow = 14 * 24 * time.Hour

// entryNamespace scopes deterministic entry IDs, so reprocessing a document
// replaces its entries instead of duplicating them.
var entryNamespace = uuid.MustParse("6f1c8a52-3f0e-4d7b-9a55-2c4b8e0d71a3")

// Module is the timeline hub module.
type Module struct {
	store  driven.TimelineStore
	window time.Duration
	now    func() time.Time
	bus    driven.EventBus

	deleted *modules.Tombstones
}

// Option configures the module.
type Option func(*Module)

// WithDeadlineWindow sets how far ahead deadlines are announced.
func WithDeadlineWindow(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// New creates the timeline module.
func New(store driven.TimelineStore, opts ...Option) *Module {
	m := &Module{
		store:  store,
		window: DefaultDeadlineWindow,
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
		Name:      Name,
		Category:  "analysis",
		Accepts:   []domain.PackType{domain.PackDocumentData},
		Produces:  []domain.PackType{domain.PackTimelineData, domain.PackNotification},
		DependsOn: []string{"documents"},
	}
}

// Actions returns the module's action set.
func (m *Module) Actions() []driving.Action {
	return []driving.Action{
		{
			Descriptor: domain.ActionDescriptor{
				Name:            "list",
				OptionalParams:  []string{"from", "to", "document_id"},
				Produces:        []string{"entries", "count"},
				RequiresContext: []string{domain.ContextUserID},
				Timeout:         10 * time.Second,
			},
			Handler: m.list,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            "upcoming",
				OptionalParams:  []string{"days"},
				Produces:        []string{"entries", "count"},
				RequiresContext: []string{domain.ContextUserID, domain.ContextNow},
				Timeout:         10 * time.Second,
			},
			Handler: m.upcoming,
		},
	}
}

// Subscribe listens for extracted and deleted documents.
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

func (m *Module) onExtracted(ctx context.Context, pack domain.InfoPack) error {
	docID := pack.Text("document_id")
	if docID == "" {
		return domain.NewError(domain.KindValidation, "pack %s has no document_id", pack.ID)
	}
	if m.deleted.Deleted(docID) {
		return nil
	}
	found := dates.Parse(pack.Fields)

	entries := make([]domain.TimelineEntry, 0, len(found))
	now := m.now()
	for _, f := range found {
		entries = append(entries, domain.TimelineEntry{
			ID:          entryID(docID, f),
			UserID:      pack.UserID,
			DocumentID:  docID,
			Date:        f.Date,
			Description: describe(pack.Text("document_name"), f.Context),
			CreatedAt:   now,
		})
	}

	if err := m.store.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear timeline for %s: %w", docID, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := m.store.Add(ctx, entries); err != nil {
		return fmt.Errorf("store timeline for %s: %w", docID, err)
	}
	if m.deleted.Deleted(docID) {
		// Deleted while these rows were being written.
		return m.onDeleted(ctx, pack)
	}

	updated := pack.Derive(uuid.NewString(), domain.PackTimelineData, Name, map[string]any{
		"document_id": docID,
		"entries":     views(entries),
		"count":       len(entries),
	})
	if err := m.bus.Publish(ctx, domain.EventTimelineUpdated, updated); err != nil {
		return fmt.Errorf("publish %s: %w", domain.EventTimelineUpdated, err)
	}

	for _, e := range m.approaching(entries, now) {
		notice := pack.Derive(uuid.NewString(), domain.PackNotification, Name, map[string]any{
			"document_id": docID,
			"entry_id":    e.ID,
			"date":        e.Date.Format(dates.Layout),
			"description": e.Description,
			"days_left":   daysBetween(now, e.Date),
		}).WithPriority(1)
		if err := m.bus.Publish(ctx, domain.EventDeadlineApproaching, notice); err != nil {
			return fmt.Errorf("publish %s: %w", domain.EventDeadlineApproaching, err)
		}
	}
	logger.L().Debug("timeline updated", zap.String("document_id", docID), zap.Int("entries", len(entries)))
	return nil
}

func (m *Module) onDeleted(ctx context.Context, pack domain.InfoPack) error {
	docID := pack.Text("document_id")
	if docID == "" {
		return nil
	}
	m.deleted.Mark(docID)
	if err := m.store.DeleteByDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear timeline for %s: %w", docID, err)
	}
	return nil
}

// approaching returns entries dated from today up to the deadline window.
func (m *Module) approaching(entries []domain.TimelineEntry, now time.Time) []domain.TimelineEntry {
	today := truncateDay(now)
	limit := today.Add(m.window)
	var out []domain.TimelineEntry
	for _, e := range entries {
		if !e.Date.Before(today) && !e.Date.After(limit) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Module) list(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	from, err := modules.Date(params, "from")
	if err != nil {
		return nil, err
	}
	to, err := modules.Date(params, "to")
	if err != nil {
		return nil, err
	}
	docID, err := modules.String(params, "document_id")
	if err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, domain.NewError(domain.KindValidation, "to is before from")
	}

	all, err := m.store.List(ctx, actx.UserID())
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	var entries []domain.TimelineEntry
	for _, e := range all {
		if docID != "" && e.DocumentID != docID {
			continue
		}
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		entries = append(entries, e)
	}
	return map[string]any{"entries": views(entries), "count": len(entries)}, nil
}

func (m *Module) upcoming(ctx context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
	days, err := modules.Int(params, "days", int(m.window/(24*time.Hour)))
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, domain.NewError(domain.KindValidation, "days must not be negative")
	}
	now := actx.Now()
	if now.IsZero() {
		now = m.now()
	}
	today := truncateDay(now)
	limit := today.AddDate(0, 0, days)

	all, err := m.store.List(ctx, actx.UserID())
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	var entries []domain.TimelineEntry
	for _, e := range all {
		if !e.Date.Before(today) && !e.Date.After(limit) {
			entries = append(entries, e)
		}
	}
	return map[string]any{"entries": views(entries), "count": len(entries)}, nil
}

func entryID(docID string, f dates.Entry) string {
	return uuid.NewSHA1(entryNamespace, []byte(docID+"|"+f.Date.Format(dates.Layout)+"|"+f.Context)).String()
}

func describe(docName, snippet string) string {
	snippet = strings.TrimSpace(snippet)
	switch {
	case docName == "":
		return snippet
	case snippet == "":
		return docName
	default:
		return docName + ": " + snippet
	}
}

func views(entries []domain.TimelineEntry) []map[string]any {
	sorted := append([]domain.TimelineEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	out := make([]map[string]any, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, map[string]any{
			"id":          e.ID,
			"document_id": e.DocumentID,
			"date":        e.Date.Format(dates.Layout),
			"description": e.Description,
		})
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(now, date time.Time) int {
	return int(date.Sub(truncateDay(now)).Hours() / 24)
}
