package domain

import (
	"fmt"
	"time"
)

// PackType is the closed set of InfoPack kinds.
type PackType string

// Pack types. New kinds may be added; existing names are never repurposed.
const (
	PackDocumentData   PackType = "document_data"
	PackCaseData       PackType = "case_data"
	PackAnalysisResult PackType = "analysis_result"
	PackTimelineData   PackType = "timeline_data"
	PackNotification   PackType = "notification"
)

// PackTypes returns every recognised pack type.
func PackTypes() []PackType {
	return []PackType{PackDocumentData, PackCaseData, PackAnalysisResult, PackTimelineData, PackNotification}
}

// Valid reports whether t is a recognised pack type.
func (t PackType) Valid() bool {
	for _, known := range PackTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// InfoPack is the unit of data exchanged between modules.
// Packs are values: transformations produce a new pack via Derive and
// reference the original through DerivedFrom.
type InfoPack struct {
	ID          string         `json:"id"`
	Type        PackType       `json:"type"`
	Source      string         `json:"source"`
	Target      string         `json:"target,omitempty"`
	UserID      string         `json:"user_id"`
	Fields      map[string]any `json:"fields"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	// Priority travels with the pack for consumers to act on. The bus
	// delivers each event type to a subscriber in publish order regardless.
	Priority    int            `json:"priority"`
	DerivedFrom string         `json:"derived_from,omitempty"`
}

// NewInfoPack builds a pack owning a copy of fields.
func NewInfoPack(id string, packType PackType, source, userID string, fields map[string]any) InfoPack {
	return InfoPack{
		ID:        id,
		Type:      packType,
		Source:    source,
		UserID:    userID,
		Fields:    copyFields(fields),
		CreatedAt: time.Now().UTC(),
	}
}

// Derive returns a new pack produced by source from p. The result keeps
// p's owner and records p as its provenance.
func (p InfoPack) Derive(id string, packType PackType, source string, fields map[string]any) InfoPack {
	derived := NewInfoPack(id, packType, source, p.UserID, fields)
	derived.DerivedFrom = p.ID
	derived.Priority = p.Priority
	return derived
}

// WithTarget returns a copy addressed to a single module.
func (p InfoPack) WithTarget(module string) InfoPack {
	c := p.Clone()
	c.Target = module
	return c
}

// WithExpiry returns a copy that expires after ttl.
func (p InfoPack) WithExpiry(ttl time.Duration) InfoPack {
	c := p.Clone()
	at := c.CreatedAt.Add(ttl)
	c.ExpiresAt = &at
	return c
}

// WithPriority returns a copy with the given priority.
func (p InfoPack) WithPriority(priority int) InfoPack {
	c := p.Clone()
	c.Priority = priority
	return c
}

// Clone returns a copy whose field map is independent of p's.
func (p InfoPack) Clone() InfoPack {
	c := p
	c.Fields = copyFields(p.Fields)
	if p.ExpiresAt != nil {
		at := *p.ExpiresAt
		c.ExpiresAt = &at
	}
	return c
}

// Validate checks the pack is well formed.
func (p InfoPack) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: pack id is required", ErrInvalidInput)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: pack type %q", ErrUnsupportedType, p.Type)
	}
	if p.Source == "" {
		return fmt.Errorf("%w: pack source is required", ErrInvalidInput)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: pack owner is required", ErrInvalidInput)
	}
	for key := range p.Fields {
		if key == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidInput)
		}
	}
	return nil
}

// Expired reports whether the pack has passed its expiry.
func (p InfoPack) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Get returns a field value.
func (p InfoPack) Get(key string) (any, bool) {
	v, ok := p.Fields[key]
	return v, ok
}

// Text returns a string field, or "" when absent or not a string.
func (p InfoPack) Text(key string) string {
	s, _ := p.Fields[key].(string)
	return s
}

// Strings returns a string-list field. JSON-decoded []any is accepted.
func (p InfoPack) Strings(key string) []string {
	switch v := p.Fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Float returns a numeric field. Handles the int and float64 shapes that
// survive JSON transport.
func (p InfoPack) Float(key string) (float64, bool) {
	switch v := p.Fields[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func copyFields(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
