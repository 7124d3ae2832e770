package enrichers

import (
	"reflect"
	"testing"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if len(r.builders) != 0 {
		t.Errorf("expected empty builders, got %d", len(r.builders))
	}
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("test", func(cfg map[string]any) (driven.Enricher, error) {
		name := "default"
		if n, ok := cfg["name"].(string); ok {
			name = n
		}
		return &mockEnricher{name: name}, nil
	})

	if !r.Has("test") {
		t.Fatal("expected 'test' to be registered")
	}
	e, err := r.Build("test", map[string]any{"name": "custom"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if e.Name() != "custom" {
		t.Errorf("expected name 'custom', got %q", e.Name())
	}
}

func TestRegistry_BuildUnknown(t *testing.T) {
	if _, err := NewRegistry().Build("missing", nil); err == nil {
		t.Error("expected error for unknown enricher")
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	want := []string{"amounts", "dates", "notice", "parties"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestGetIntFromConfig(t *testing.T) {
	cfg := map[string]any{"i": 3, "i64": int64(4), "f": 5.0, "s": "6"}
	tests := map[string]int{"i": 3, "i64": 4, "f": 5, "s": 0, "missing": 0}
	for key, want := range tests {
		if got := getIntFromConfig(cfg, key); got != want {
			t.Errorf("getIntFromConfig(%q) = %d, want %d", key, got, want)
		}
	}
}
