package enrichers

import (
	"context"
	"errors"
	"testing"
)

// mockEnricher adds a fixed key or fails.
type mockEnricher struct {
	name string
	key  string
	err  error
	seen map[string]any
}

func (m *mockEnricher) Name() string { return m.name }
func (m *mockEnricher) Enrich(_ context.Context, _ string, fields map[string]any) (map[string]any, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.seen = fields
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[m.key] = m.name
	return out, nil
}

func TestPipeline_Enrich_EmptyPipeline(t *testing.T) {
	p := NewPipeline()
	in := map[string]any{"title": "x"}

	out, err := p.Enrich(context.Background(), "text", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["title"] != "x" || len(out) != 1 {
		t.Errorf("expected fields unchanged, got %v", out)
	}
}

func TestPipeline_Enrich_RunsInOrder(t *testing.T) {
	first := &mockEnricher{name: "first", key: "a"}
	second := &mockEnricher{name: "second", key: "b"}
	p := NewPipeline(first, second)

	out, err := p.Enrich(context.Background(), "text", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["a"] != "first" || out["b"] != "second" {
		t.Errorf("unexpected fields: %v", out)
	}
	if second.seen["a"] != "first" {
		t.Error("second enricher should see the first one's output")
	}
}

func TestPipeline_Enrich_DoesNotMutateInput(t *testing.T) {
	p := NewPipeline(&mockEnricher{name: "m", key: "added"})
	in := map[string]any{"title": "x"}

	if _, err := p.Enrich(context.Background(), "text", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := in["added"]; ok {
		t.Error("input map was modified")
	}
}

func TestPipeline_Enrich_Error(t *testing.T) {
	expectedErr := errors.New("enricher failed")
	p := NewPipeline(&mockEnricher{name: "failing", err: expectedErr})

	_, err := p.Enrich(context.Background(), "text", nil)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected wrapped error, got: %v", err)
	}
}

func TestPipeline_Enrich_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(&mockEnricher{name: "m", key: "k"}).Enrich(ctx, "text", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPipeline_AddAndLen(t *testing.T) {
	p := NewPipeline()
	p.Add(&mockEnricher{name: "m", key: "k"})
	if p.Len() != 1 {
		t.Errorf("expected 1 enricher, got %d", p.Len())
	}
}

func TestBuild_DefaultOrder(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	p, err := Build(r, DefaultOrder, map[string]map[string]any{"dates": {"max_dates": int64(5)}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.Len() != len(DefaultOrder) {
		t.Errorf("expected %d enrichers, got %d", len(DefaultOrder), p.Len())
	}

	text := `Lease between Acme LLC ("Landlord") and Jane Doe ("Tenant"). Rent is $1,200 from May 1, 2026. ` +
		`Security deposit: $2,400. Either party may end it with 30 days written notice.`
	out, err := p.Enrich(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if out["landlord"] != "Acme LLC" {
		t.Errorf("landlord = %v", out["landlord"])
	}
	if out["monthly_rent"] != 1200.0 || out["security_deposit"] != 2400.0 {
		t.Errorf("amounts = %v / %v", out["monthly_rent"], out["security_deposit"])
	}
	if out["notice_days"] != 30 {
		t.Errorf("notice_days = %v", out["notice_days"])
	}
	if dates, ok := out["dates"].([]map[string]any); !ok || len(dates) != 1 || dates[0]["date"] != "2026-05-01" {
		t.Errorf("dates = %v", out["dates"])
	}
}

func TestBuild_UnknownName(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	if _, err := Build(r, []string{"dates", "sentiment"}, nil); err == nil {
		t.Error("expected error for unknown enricher")
	}
}
