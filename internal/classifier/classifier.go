// Package classifier assigns a document category from keyword rules.
package classifier

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// DefaultMinScore is the score below which a document is "other".
const DefaultMinScore = 3

// Ensure Classifier implements the interface.
var _ driven.Classifier = (*Classifier)(nil)

// Keyword is one weighted signal for a category.
type Keyword struct {
	Phrase string
	Weight int
}

// Rule lists the signals for one category. Rules are evaluated in order and
// an earlier rule wins a tie.
type Rule struct {
	Category string
	Keywords []Keyword
}

// DefaultRules are the built-in tenancy categories.
var DefaultRules = []Rule{
	{Category: domain.CategoryEvictionNotice, Keywords: []Keyword{
		{"notice to quit", 4}, {"notice to vacate", 4}, {"pay rent or quit", 4},
		{"eviction", 2}, {"vacate the premises", 2}, {"terminate your tenancy", 3},
		{"three-day notice", 2}, {"3-day notice", 2}, {"thirty-day notice", 2}, {"30-day notice", 2},
	}},
	{Category: domain.CategoryCourtFiling, Keywords: []Keyword{
		{"superior court", 3}, {"district court", 3}, {"county court", 3}, {"summons", 3},
		{"unlawful detainer", 3}, {"case no", 2}, {"case number", 2}, {"plaintiff", 2},
		{"defendant", 2}, {"docket", 2}, {"petitioner", 2}, {"respondent", 1}, {"complaint", 1},
	}},
	{Category: domain.CategoryLease, Keywords: []Keyword{
		{"lease agreement", 4}, {"rental agreement", 4}, {"residential lease", 4}, {"tenancy agreement", 4},
		{"lessor", 2}, {"lessee", 2}, {"security deposit", 2}, {"monthly rent", 2}, {"lease term", 2},
		{"term of this lease", 2}, {"landlord", 1}, {"tenant", 1}, {"premises", 1},
	}},
	{Category: domain.CategoryInvoice, Keywords: []Keyword{
		{"invoice", 3}, {"amount due", 2}, {"balance due", 2}, {"bill to", 2}, {"subtotal", 2},
		{"invoice number", 2}, {"payment terms", 1}, {"receipt", 1}, {"total due", 2},
	}},
	{Category: domain.CategoryCorrespondence, Keywords: []Keyword{
		{"dear", 2}, {"sincerely", 2}, {"regards", 1}, {"yours truly", 2}, {"to whom it may concern", 2},
	}},
}

// correspondenceTypes add a correspondence signal on their own.
var correspondenceTypes = map[string]bool{"message/rfc822": true}

type compiledRule struct {
	category string
	keywords []compiledKeyword
}

type compiledKeyword struct {
	phrase string
	weight int
	re     *regexp.Regexp
}

// Classifier scores text against keyword rules.
type Classifier struct {
	rules    []compiledRule
	minScore int
}

// Option configures the classifier.
type Option func(*Classifier)

// WithMinScore sets the score a category needs to be chosen.
func WithMinScore(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.minScore = n
		}
	}
}

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = compile(rules)
	}
}

// New creates a classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{rules: compile(DefaultRules), minScore: DefaultMinScore}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func compile(rules []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{category: r.Category}
		for _, k := range r.Keywords {
			pattern := `(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(k.Phrase), " ", `\s+`) + `\b`
			cr.keywords = append(cr.keywords, compiledKeyword{phrase: k.Phrase, weight: k.Weight, re: regexp.MustCompile(pattern)})
		}
		out = append(out, cr)
	}
	return out
}

// Classify picks the highest-scoring category. Each phrase counts once.
// Confidence is the winner's share of all scored weight, damped for weak
// evidence.
func (c *Classifier) Classify(ctx context.Context, doc *domain.DocumentRecord, text string) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}
	haystack := text
	if doc != nil && doc.Name != "" {
		haystack = doc.Name + "\n" + text
	}

	bestIdx, best, total := -1, 0, 0
	signals := make([][]string, len(c.rules))
	for i, rule := range c.rules {
		score := 0
		for _, k := range rule.keywords {
			if k.re.MatchString(haystack) {
				score += k.weight
				signals[i] = append(signals[i], k.phrase)
			}
		}
		if doc != nil && rule.category == domain.CategoryCorrespondence && correspondenceTypes[doc.MIMEType] {
			score += 2
			signals[i] = append(signals[i], "email")
		}
		total += score
		if score > best {
			bestIdx, best = i, score
		}
	}

	if bestIdx < 0 || best < c.minScore {
		return domain.Classification{Category: domain.CategoryOther, Confidence: 0.5}, nil
	}

	share := float64(best) / float64(total)
	strength := math.Min(1, float64(best)/float64(2*c.minScore))
	return domain.Classification{
		Category:   c.rules[bestIdx].category,
		Confidence: math.Round(share*strength*100) / 100,
		Signals:    signals[bestIdx],
	}, nil
}
