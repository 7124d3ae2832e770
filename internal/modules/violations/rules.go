package violations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/enrichers/amounts"
	"github.com/custodia-labs/caseflow/internal/enrichers/notice"
	"github.com/custodia-labs/caseflow/internal/enrichers/parties"
)

// Rule names.
const (
	RuleDepositCap             = "deposit_cap"
	RuleNoticePeriod           = "notice_period"
	RuleLandlordIdentification = "landlord_identification"
)

// Limits parameterises the rule table.
type Limits struct {
	// MaxDepositMonths caps the security deposit as a multiple of monthly rent.
	MaxDepositMonths float64

	// MinNoticeDays is the shortest lawful notice period.
	MinNoticeDays int
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxDepositMonths: 2, MinNoticeDays: 30}
}

// Finding is a rule outcome before it is attached to a document.
type Finding struct {
	Rule     string
	Severity string
	Detail   string
}

// Rule inspects a lease's extracted fields.
type Rule func(pack domain.InfoPack, limits Limits) (Finding, bool)

// DefaultRules is the lease rule table, evaluated in order.
var DefaultRules = []Rule{
	DepositCap,
	NoticePeriod,
	LandlordIdentification,
}

// DepositCap flags a security deposit above the allowed multiple of rent.
func DepositCap(pack domain.InfoPack, limits Limits) (Finding, bool) {
	deposit, ok := pack.Float(amounts.FieldSecurityDeposit)
	if !ok {
		return Finding{}, false
	}
	rent, ok := pack.Float(amounts.FieldMonthlyRent)
	if !ok || rent <= 0 {
		return Finding{}, false
	}
	if deposit <= rent*limits.MaxDepositMonths {
		return Finding{}, false
	}
	return Finding{
		Rule:     RuleDepositCap,
		Severity: domain.SeverityHigh,
		Detail: fmt.Sprintf("security deposit %.2f exceeds %s times the monthly rent of %.2f",
			deposit, trimFloat(limits.MaxDepositMonths), rent),
	}, true
}

// NoticePeriod flags a termination notice period shorter than the minimum.
func NoticePeriod(pack domain.InfoPack, limits Limits) (Finding, bool) {
	days, ok := pack.Float(notice.FieldNoticeDays)
	if !ok || days >= float64(limits.MinNoticeDays) {
		return Finding{}, false
	}
	return Finding{
		Rule:     RuleNoticePeriod,
		Severity: domain.SeverityMedium,
		Detail:   fmt.Sprintf("notice period of %d days is shorter than %d days", int(days), limits.MinNoticeDays),
	}, true
}

// LandlordIdentification flags a lease that never names its landlord.
func LandlordIdentification(pack domain.InfoPack, _ Limits) (Finding, bool) {
	if strings.TrimSpace(pack.Text(parties.FieldLandlord)) != "" {
		return Finding{}, false
	}
	return Finding{
		Rule:     RuleLandlordIdentification,
		Severity: domain.SeverityLow,
		Detail:   "lease does not identify the landlord",
	}, true
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
