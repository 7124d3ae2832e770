// Package notice recognises notice periods ("30 days' written notice").
package notice

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Name is the registry name of this enricher.
const Name = "notice"

// Fields written by the enricher.
const (
	FieldNoticeDays    = "notice_days"
	FieldNoticePeriods = "notice_periods"
)

// Ensure Enricher implements the interface.
var _ driven.Enricher = (*Enricher)(nil)

// Enricher adds "notice_days", the first notice period in the text, and
// "notice_periods", every distinct period in order of appearance.
type Enricher struct{}

// New creates a notice enricher.
func New() *Enricher {
	return &Enricher{}
}

// Name returns the enricher name.
func (e *Enricher) Name() string {
	return Name
}

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,3})\)?[\s-]*(?:calendar\s+|business\s+)?days?['’]?\s+(?:prior\s+|advance\s+)?(?:written\s+)?notice`),
	regexp.MustCompile(`(?i)\bnotice\s+(?:period\s+)?of\s+(?:at\s+least\s+)?(?:[a-z]+\s+)?\(?(\d{1,3})\)?[\s-]*(?:calendar\s+|business\s+)?days?\b`),
}

// Enrich returns fields with the recognised notice periods added.
func (e *Enricher) Enrich(_ context.Context, text string, fields map[string]any) (map[string]any, error) {
	type hit struct{ days, at int }
	var hits []hit
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			days, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || days <= 0 {
				continue
			}
			hits = append(hits, hit{days: days, at: m[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	seen := make(map[int]bool)
	periods := make([]int, 0, len(hits))
	for _, h := range hits {
		if !seen[h.days] {
			seen[h.days] = true
			periods = append(periods, h.days)
		}
	}
	if len(periods) > 0 {
		out[FieldNoticeDays] = periods[0]
	}
	out[FieldNoticePeriods] = periods
	return out, nil
}
