// Package amounts recognises monetary amounts in document text and labels
// the ones a tenancy case cares about.
package amounts

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/enrichers/snippet"
)

// Name is the registry name of this enricher.
const Name = "amounts"

// Fields written by the enricher.
const (
	FieldAmounts         = "amounts"
	FieldSecurityDeposit = "security_deposit"
	FieldMonthlyRent     = "monthly_rent"
	FieldLateFee         = "late_fee"
)

// Labels attached to amounts.
const (
	LabelDeposit = "deposit"
	LabelRent    = "rent"
	LabelLateFee = "late_fee"
)

// lookBehind is how far before an amount a label keyword may appear.
const lookBehind = 60

// Ensure Enricher implements the interface.
var _ driven.Enricher = (*Enricher)(nil)

// Enricher adds an "amounts" list of {value, currency, label, context} maps
// and, for the first amount carrying each label, a top-level field.
type Enricher struct {
	dollar string
}

// Option configures the enricher.
type Option func(*Enricher)

// WithDollarCurrency sets the currency code assumed for a bare "$".
func WithDollarCurrency(code string) Option {
	return func(e *Enricher) {
		e.dollar = strings.ToUpper(code)
	}
}

// New creates an amounts enricher.
func New(opts ...Option) *Enricher {
	e := &Enricher{dollar: "USD"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the enricher name.
func (e *Enricher) Name() string {
	return Name
}

var (
	symbolAmount = regexp.MustCompile(`(US\$|\$|£|€)\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?`)
	codeAmount   = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?\s?(USD|EUR|GBP|dollars)\b`)

	labels = []struct {
		label string
		re    *regexp.Regexp
	}{
		{LabelDeposit, regexp.MustCompile(`(?i)\bdeposit\b`)},
		{LabelLateFee, regexp.MustCompile(`(?i)\blate\s+(?:fee|charge|payment\s+fee)s?\b`)},
		{LabelRent, regexp.MustCompile(`(?i)\brent(?:al)?\b`)},
	}
)

type amount struct {
	value    float64
	currency string
	start    int
	end      int
}

// Enrich returns fields with the recognised amounts added.
func (e *Enricher) Enrich(_ context.Context, text string, fields map[string]any) (map[string]any, error) {
	var found []amount
	for _, m := range symbolAmount.FindAllStringSubmatchIndex(text, -1) {
		v, ok := parseValue(text[m[4]:m[5]], group(text, m, 3))
		if !ok {
			continue
		}
		found = append(found, amount{value: v, currency: e.currency(text[m[2]:m[3]]), start: m[0], end: m[1]})
	}
	for _, m := range codeAmount.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(found, m[0], m[1]) {
			continue
		}
		v, ok := parseValue(text[m[2]:m[3]], group(text, m, 2))
		if !ok {
			continue
		}
		found = append(found, amount{value: v, currency: e.currency(text[m[6]:m[7]]), start: m[0], end: m[1]})
	}
	sortByStart(found)

	out := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		out[k] = v
	}
	list := make([]map[string]any, 0, len(found))
	for _, a := range found {
		label := labelFor(text, a.start)
		list = append(list, map[string]any{
			"value":    a.value,
			"currency": a.currency,
			"label":    label,
			"context":  snippet.Around(text, a.start, a.end),
		})
		if key := fieldFor(label); key != "" {
			if _, set := out[key]; !set {
				out[key] = a.value
			}
		}
	}
	out[FieldAmounts] = list
	return out, nil
}

func (e *Enricher) currency(token string) string {
	switch strings.ToLower(token) {
	case "$", "dollars":
		return e.dollar
	case "us$", "usd":
		return "USD"
	case "£", "gbp":
		return "GBP"
	case "€", "eur":
		return "EUR"
	}
	return strings.ToUpper(token)
}

func group(text string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

func parseValue(whole, fraction string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(whole, ",", "")+fraction, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func overlaps(found []amount, start, end int) bool {
	for _, a := range found {
		if start < a.end && a.start < end {
			return true
		}
	}
	return false
}

func sortByStart(found []amount) {
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].start < found[j-1].start; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
}

// labelFor returns the label whose keyword appears closest before start
// within the same sentence.
func labelFor(text string, start int) string {
	from := start - lookBehind
	if from < 0 {
		from = 0
	}
	window := text[from:start]
	if i := strings.LastIndexAny(window, "\n;"); i >= 0 {
		window = window[i+1:]
	}
	if i := strings.LastIndex(window, ". "); i >= 0 {
		window = window[i+2:]
	}

	best, bestAt := "", -1
	for _, l := range labels {
		locs := l.re.FindAllStringIndex(window, -1)
		if len(locs) == 0 {
			continue
		}
		if at := locs[len(locs)-1][0]; at > bestAt {
			best, bestAt = l.label, at
		}
	}
	return best
}

func fieldFor(label string) string {
	switch label {
	case LabelDeposit:
		return FieldSecurityDeposit
	case LabelRent:
		return FieldMonthlyRent
	case LabelLateFee:
		return FieldLateFee
	}
	return ""
}
