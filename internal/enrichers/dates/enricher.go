// Package dates recognises calendar dates in document text.
package dates

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/enrichers/snippet"
)

// Name is the registry name of this enricher.
const Name = "dates"

// FieldDates is the field holding recognised dates.
const FieldDates = "dates"

// Layout is the format of each recognised date.
const Layout = "2006-01-02"

// DefaultMaxDates bounds how many dates are kept per document.
const DefaultMaxDates = 50

// Ensure Enricher implements the interface.
var _ driven.Enricher = (*Enricher)(nil)

// Enricher adds a "dates" field: a list of {date, context} maps in order of
// first appearance, one per distinct date.
type Enricher struct {
	maxDates int
}

// Option configures the enricher.
type Option func(*Enricher)

// WithMaxDates sets how many dates are kept.
func WithMaxDates(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxDates = n
		}
	}
}

// New creates a dates enricher.
func New(opts ...Option) *Enricher {
	e := &Enricher{maxDates: DefaultMaxDates}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the enricher name.
func (e *Enricher) Name() string {
	return Name
}

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	monthDayYear = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:day\s+)?(?:of\s+)?` + monthPattern + `\.?,?\s+(\d{4})\b`)
	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	usNumeric    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
)

type found struct {
	date  time.Time
	start int
	end   int
}

// Enrich returns fields with the recognised dates added.
func (e *Enricher) Enrich(_ context.Context, text string, fields map[string]any) (map[string]any, error) {
	var matches []found
	collect := func(re *regexp.Regexp, parse func(groups []string) (time.Time, bool)) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			groups := make([]string, len(loc)/2)
			for i := range groups {
				if loc[2*i] >= 0 {
					groups[i] = text[loc[2*i]:loc[2*i+1]]
				}
			}
			if d, ok := parse(groups); ok {
				matches = append(matches, found{date: d, start: loc[0], end: loc[1]})
			}
		}
	}
	collect(monthDayYear, func(g []string) (time.Time, bool) { return build(g[3], month(g[1]), g[2]) })
	collect(dayMonthYear, func(g []string) (time.Time, bool) { return build(g[3], month(g[2]), g[1]) })
	collect(isoDate, func(g []string) (time.Time, bool) { return build(g[1], atoi(g[2]), g[3]) })
	collect(usNumeric, func(g []string) (time.Time, bool) { return build(g[3], atoi(g[1]), g[2]) })

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	seen := make(map[string]bool)
	list := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		key := m.date.Format(Layout)
		if seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, map[string]any{
			"date":    key,
			"context": snippet.Around(text, m.start, m.end),
		})
		if len(list) == e.maxDates {
			break
		}
	}

	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[FieldDates] = list
	return out, nil
}

func month(name string) int {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0
	}
	switch name[:3] {
	case "jan":
		return 1
	case "feb":
		return 2
	case "mar":
		return 3
	case "apr":
		return 4
	case "may":
		return 5
	case "jun":
		return 6
	case "jul":
		return 7
	case "aug":
		return 8
	case "sep":
		return 9
	case "oct":
		return 10
	case "nov":
		return 11
	case "dec":
		return 12
	}
	return 0
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// build rejects impossible dates such as February 30th rather than letting
// time.Date normalise them.
func build(year string, m int, day string) (time.Time, bool) {
	y, d := atoi(year), atoi(day)
	if y < 1900 || y > 2200 || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

// Parse returns the dates recorded by Enrich in fields. It accepts both the
// in-process shape and the one produced by a JSON round trip.
func Parse(fields map[string]any) []Entry {
	var raw []map[string]any
	switch v := fields[FieldDates].(type) {
	case []map[string]any:
		raw = v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				raw = append(raw, m)
			}
		}
	}

	entries := make([]Entry, 0, len(raw))
	for _, m := range raw {
		s, _ := m["date"].(string)
		d, err := time.Parse(Layout, s)
		if err != nil {
			continue
		}
		c, _ := m["context"].(string)
		entries = append(entries, Entry{Date: d, Context: c})
	}
	return entries
}

// Entry is one recognised date.
type Entry struct {
	Date    time.Time
	Context string
}
