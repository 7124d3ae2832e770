package enrichers

import (
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/enrichers/amounts"
	"github.com/custodia-labs/caseflow/internal/enrichers/dates"
	"github.com/custodia-labs/caseflow/internal/enrichers/notice"
	"github.com/custodia-labs/caseflow/internal/enrichers/parties"
)

// DefaultOrder is the pipeline order used when configuration names none.
var DefaultOrder = []string{dates.Name, amounts.Name, parties.Name, notice.Name}

// RegisterDefaults registers all built-in enrichers with the registry.
// Call this during application initialisation.
func RegisterDefaults(r *Registry) {
	r.Register(dates.Name, buildDates)
	r.Register(amounts.Name, buildAmounts)
	r.Register(parties.Name, func(map[string]any) (driven.Enricher, error) { return parties.New(), nil })
	r.Register(notice.Name, func(map[string]any) (driven.Enricher, error) { return notice.New(), nil })
}

// buildDates creates the dates enricher.
// Supported config keys:
//   - max_dates (int): dates kept per document (default: 50)
func buildDates(cfg map[string]any) (driven.Enricher, error) {
	var opts []dates.Option
	if n := getIntFromConfig(cfg, "max_dates"); n > 0 {
		opts = append(opts, dates.WithMaxDates(n))
	}
	return dates.New(opts...), nil
}

// buildAmounts creates the amounts enricher.
// Supported config keys:
//   - currency (string): currency assumed for bare "$" amounts (default: USD)
func buildAmounts(cfg map[string]any) (driven.Enricher, error) {
	var opts []amounts.Option
	if c, ok := cfg["currency"].(string); ok && c != "" {
		opts = append(opts, amounts.WithDollarCurrency(c))
	}
	return amounts.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
