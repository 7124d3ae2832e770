// Package parties recognises the landlord and tenant named in a document.
package parties

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Name is the registry name of this enricher.
const Name = "parties"

// Fields written by the enricher.
const (
	FieldParties  = "parties"
	FieldLandlord = "landlord"
	FieldTenant   = "tenant"
)

// Roles.
const (
	RoleLandlord = "landlord"
	RoleTenant   = "tenant"
)

// maxNameLength bounds a recognised name in runes.
const maxNameLength = 80

// Ensure Enricher implements the interface.
var _ driven.Enricher = (*Enricher)(nil)

// Enricher adds "landlord" and "tenant" fields and a "parties" list of
// {name, role} maps.
type Enricher struct{}

// New creates a parties enricher.
func New() *Enricher {
	return &Enricher{}
}

// Name returns the enricher name.
func (e *Enricher) Name() string {
	return Name
}

var (
	between = regexp.MustCompile(`(?is)between\s+(.+?)\s*\(\s*(?:hereinafter\s+)?["“]?(?:the\s+)?["“]?(landlord|lessor|owner)["”]?\s*\)\s*,?\s*and\s+(.+?)\s*\(\s*(?:hereinafter\s+)?["“]?(?:the\s+)?["“]?(tenant|lessee|resident)s?["”]?\s*\)`)
	labelled = regexp.MustCompile(`(?im)^[ \t]*(landlord|lessor|owner|property manager|tenant|lessee|resident)s?(?:'s)?(?:[ \t]+name)?[ \t]*:[ \t]*(.+)$`)
)

// Enrich returns fields with the recognised parties added.
func (e *Enricher) Enrich(_ context.Context, text string, fields map[string]any) (map[string]any, error) {
	type party struct{ name, role string }
	var found []party
	add := func(name, role string) {
		name = clean(name)
		if name == "" {
			return
		}
		for _, p := range found {
			if p.role == role && strings.EqualFold(p.name, name) {
				return
			}
		}
		found = append(found, party{name: name, role: role})
	}

	if m := between.FindStringSubmatch(text); m != nil {
		add(m[1], RoleLandlord)
		add(m[3], RoleTenant)
	}
	for _, m := range labelled.FindAllStringSubmatch(text, -1) {
		add(m[2], role(m[1]))
	}

	out := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	list := make([]map[string]any, 0, len(found))
	for _, p := range found {
		list = append(list, map[string]any{"name": p.name, "role": p.role})
		key := FieldLandlord
		if p.role == RoleTenant {
			key = FieldTenant
		}
		if _, set := out[key]; !set {
			out[key] = p.name
		}
	}
	out[FieldParties] = list
	return out, nil
}

func role(word string) string {
	switch strings.ToLower(word) {
	case "tenant", "lessee", "resident":
		return RoleTenant
	default:
		return RoleLandlord
	}
}

func clean(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, ` ,;:."'“”`)
	if r := []rune(name); len(r) > maxNameLength {
		name = strings.TrimSpace(string(r[:maxNameLength]))
	}
	return name
}
