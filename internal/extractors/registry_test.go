package extractors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// mockExtractor is a configurable extractor for registry tests.
type mockExtractor struct {
	name     string
	types    []string
	priority int
}

func (m *mockExtractor) Name() string                 { return m.name }
func (m *mockExtractor) SupportedMIMETypes() []string { return m.types }
func (m *mockExtractor) Priority() int                { return m.priority }
func (m *mockExtractor) Extract(_ context.Context, _ *domain.DocumentRecord, data []byte) (*driven.Extraction, error) {
	return &driven.Extraction{Text: string(data)}, nil
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("application/octet-stream")
	assert.False(t, ok)
}

func TestRegistry_HighestPriorityWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockExtractor{name: "low", types: []string{"text/x-test"}, priority: 5})
	r.Register(&mockExtractor{name: "high", types: []string{"text/x-test"}, priority: 50})
	r.Register(&mockExtractor{name: "mid", types: []string{"text/x-test"}, priority: 20})

	e, ok := r.Get("text/x-test")
	require.True(t, ok)
	assert.Equal(t, "high", e.Name())
}

func TestRegistry_EqualPriorityKeepsFirst(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockExtractor{name: "first", types: []string{"text/x-test"}, priority: 10})
	r.Register(&mockExtractor{name: "second", types: []string{"text/x-test"}, priority: 10})

	e, ok := r.Get("text/x-test")
	require.True(t, ok)
	assert.Equal(t, "first", e.Name())
}

func TestRegistry_IgnoresParametersAndCase(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockExtractor{name: "m", types: []string{"text/plain"}, priority: 1})

	e, ok := r.Get("Text/Plain; charset=utf-8")
	require.True(t, ok)
	assert.Equal(t, "m", e.Name())
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		mimeType string
		want     string
	}{
		{"text/plain", "plaintext"},
		{"text/csv", "plaintext"},
		{"text/markdown", "markdown"},
		{"text/html", "html"},
		{"application/pdf", "pdf"},
		{"message/rfc822", "eml"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx"},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			e, ok := r.Get(tt.mimeType)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Name())
		})
	}

	assert.Contains(t, r.SupportedMIMETypes(), "application/pdf")
	_, ok := r.Get("image/png")
	assert.False(t, ok)
}
