package violations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/services"
	"github.com/custodia-labs/caseflow/internal/modules/modulestest"
)

const testUser = "google.tenant.abc123"

func setup(t *testing.T, opts ...Option) (*Module, *memory.ViolationStore, *modulestest.Bus) {
	t.Helper()
	store := memory.NewViolationStore()
	bus := modulestest.NewBus()
	m := New(store, opts...)
	cancel, err := m.Subscribe(bus)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return m, store, bus
}

func leasePack(docID string, fields map[string]any) domain.InfoPack {
	all := map[string]any{
		"document_id":   docID,
		"document_name": "lease.pdf",
		"category":      domain.CategoryLease,
	}
	for k, v := range fields {
		all[k] = v
	}
	return domain.NewInfoPack("pack-"+docID, domain.PackDocumentData, "documents", testUser, all)
}

func rules(found []Finding) []string {
	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f.Rule)
	}
	return out
}

func TestEvaluate(t *testing.T) {
	m := New(memory.NewViolationStore())

	tests := []struct {
		name   string
		fields map[string]any
		want   []string
	}{
		{
			name:   "compliant lease",
			fields: map[string]any{"landlord": "Acme Properties LLC", "security_deposit": 1200.0, "monthly_rent": 1200.0, "notice_days": 30},
			want:   []string{},
		},
		{
			name:   "deposit above twice the rent",
			fields: map[string]any{"landlord": "Acme", "security_deposit": 3000.0, "monthly_rent": 1200.0},
			want:   []string{RuleDepositCap},
		},
		{
			name:   "deposit exactly twice the rent",
			fields: map[string]any{"landlord": "Acme", "security_deposit": 2400.0, "monthly_rent": 1200.0},
			want:   []string{},
		},
		{
			name:   "deposit without rent",
			fields: map[string]any{"landlord": "Acme", "security_deposit": 9000.0},
			want:   []string{},
		},
		{
			name:   "short notice",
			fields: map[string]any{"landlord": "Acme", "notice_days": 14},
			want:   []string{RuleNoticePeriod},
		},
		{
			name:   "missing landlord",
			fields: map[string]any{"tenant": "Jane Doe"},
			want:   []string{RuleLandlordIdentification},
		},
		{
			name:   "everything wrong",
			fields: map[string]any{"landlord": "  ", "security_deposit": 5000.0, "monthly_rent": 1000.0, "notice_days": 7},
			want:   []string{RuleDepositCap, RuleNoticePeriod, RuleLandlordIdentification},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules(m.Evaluate(leasePack("d", tt.fields))))
		})
	}
}

func TestEvaluate_CustomLimits(t *testing.T) {
	m := New(memory.NewViolationStore(), WithLimits(Limits{MaxDepositMonths: 1, MinNoticeDays: 60}))
	found := m.Evaluate(leasePack("d", map[string]any{
		"landlord": "Acme", "security_deposit": 1500.0, "monthly_rent": 1200.0, "notice_days": 30,
	}))
	assert.Equal(t, []string{RuleDepositCap, RuleNoticePeriod}, rules(found))
	assert.Contains(t, found[0].Detail, "1 times")
}

func TestModule_LeaseViolationsPublished(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()

	pack := leasePack("doc-1", map[string]any{"security_deposit": 4000.0, "monthly_rent": 1000.0, "notice_days": 10})
	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted, pack))

	stored, err := store.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	events := bus.Events(domain.EventViolationFound)
	require.Len(t, events, 3)
	severities := map[string]string{}
	for _, e := range events {
		assert.Equal(t, domain.PackAnalysisResult, e.Type)
		assert.Equal(t, "pack-doc-1", e.DerivedFrom)
		assert.Equal(t, "doc-1", e.Text("document_id"))
		severities[e.Text("rule")] = e.Text("severity")
	}
	assert.Equal(t, map[string]string{
		RuleDepositCap:             domain.SeverityHigh,
		RuleNoticePeriod:           domain.SeverityMedium,
		RuleLandlordIdentification: domain.SeverityLow,
	}, severities)
}

func TestModule_NonLeaseIgnored(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()

	pack := leasePack("doc-1", map[string]any{"category": domain.CategoryInvoice})
	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted, pack))

	stored, err := store.List(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, bus.Events(domain.EventViolationFound))
}

func TestModule_ReclassifiedDocumentClearsFindings(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()

	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted, leasePack("doc-1", nil)))
	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted, leasePack("doc-1", map[string]any{"category": domain.CategoryOther})))

	stored, err := store.List(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestModule_DeletedDocumentDropsFindings(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()
	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted, leasePack("doc-1", nil)))

	deleted := domain.NewInfoPack("d", domain.PackDocumentData, "documents", testUser, map[string]any{"document_id": "doc-1"})
	require.NoError(t, bus.Deliver(ctx, domain.EventDocumentDeleted, deleted))

	stored, err := store.List(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestModule_ListAction(t *testing.T) {
	m, _, bus := setup(t)
	ctx := context.Background()
	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted,
		leasePack("doc-1", map[string]any{"security_deposit": 4000.0, "monthly_rent": 1000.0})))

	hub := services.NewHub(2)
	require.NoError(t, hub.Register(m.Descriptor(), m.Actions()))

	res := hub.Invoke(ctx, Name, "list", testUser, nil)
	require.True(t, res.OK, "%+v", res.Error)
	assert.Equal(t, 2, res.Data["count"])

	res = hub.Invoke(ctx, Name, "list", testUser, map[string]any{"severity": domain.SeverityHigh})
	require.True(t, res.OK)
	assert.Equal(t, 1, res.Data["count"])

	res = hub.Invoke(ctx, Name, "list", testUser, map[string]any{"severity": "critical"})
	require.False(t, res.OK)
	assert.Equal(t, domain.KindValidation, res.Error.Kind)
}

// gatedStore holds Add until the test releases it.
type gatedStore struct {
	*memory.ViolationStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Add(ctx context.Context, violations []domain.Violation) error {
	g.entered <- struct{}{}
	<-g.release
	return g.ViolationStore.Add(ctx, violations)
}

func TestModule_DeleteDuringEvaluateLeavesNoFindings(t *testing.T) {
	store := &gatedStore{
		ViolationStore: memory.NewViolationStore(),
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	bus := modulestest.NewBus()
	m := New(store)
	cancel, err := m.Subscribe(bus)
	require.NoError(t, err)
	t.Cleanup(cancel)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- bus.Deliver(ctx, domain.EventEventsExtracted, leasePack("doc-1", nil)) }()
	<-store.entered

	deleted := domain.NewInfoPack("d", domain.PackDocumentData, "documents", testUser, map[string]any{"document_id": "doc-1"})
	require.NoError(t, bus.Deliver(ctx, domain.EventDocumentDeleted, deleted))
	close(store.release)
	require.NoError(t, <-done)

	stored, err := store.List(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, bus.Events(domain.EventViolationFound))
}

func TestModule_ExtractedAfterDeleteIsDropped(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()

	deleted := domain.NewInfoPack("d", domain.PackDocumentData, "documents", testUser, map[string]any{"document_id": "doc-1"})
	require.NoError(t, bus.Deliver(ctx, domain.EventDocumentDeleted, deleted))
	require.NoError(t, bus.Deliver(ctx, domain.EventEventsExtracted, leasePack("doc-1", nil)))

	stored, err := store.List(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
