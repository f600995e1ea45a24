// Package reconcile links transfer pairs between the user's own accounts.
// Matching is greedy and first-fit: candidates are ranked by date
// proximity, then by commission size, and a linked leg leaves the pool.
package reconcile

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// Leg is one side of a potential transfer pair: a transaction together
// with the account that owns it.
type Leg struct {
	Tx        *core.Transaction
	AccountID int64
}

// Link records a detected transfer pair. Commission is the absolute
// residual between the two leg magnitudes; it is also written onto the
// larger-magnitude leg's TransferCommission.
type Link struct {
	TransferID         string
	Debit              *core.Transaction
	Credit             *core.Transaction
	Commission         decimal.Decimal
	CommissionCategory string
}

type compiledRule struct {
	rule         core.ReconciliationRule
	counterparty *regexp.Regexp
	account      *regexp.Regexp
}

// Matcher evaluates reconciliation rules in the stable order the caller
// provided them. Inactive rules are dropped at construction.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the rule patterns. A rule that fails validation
// aborts construction with a ValidationError.
func NewMatcher(rules []core.ReconciliationRule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		cr := compiledRule{rule: r}
		if r.CounterpartyPattern != "" {
			cr.counterparty = regexp.MustCompile(r.CounterpartyPattern)
		}
		if r.AccountPattern != "" {
			cr.account = regexp.MustCompile(r.AccountPattern)
		}
		compiled = append(compiled, cr)
	}
	return &Matcher{rules: compiled}, nil
}

// Reconcile scans the legs in order and links each unlinked leg to its best
// counterpart: an unlinked transaction on a different account with the
// opposite sign, within the date and commission tolerances of the first
// rule whose account pair covers the two legs. Candidates are ranked by
// ascending date difference, then ascending commission; a linked leg is
// removed from the pool. Legs without a match stay untouched.
func (m *Matcher) Reconcile(legs []Leg) []Link {
	var links []Link
	linked := make([]bool, len(legs))

	for i := range legs {
		if linked[i] || legs[i].Tx.TransferID != "" {
			continue
		}

		best := -1
		var bestRule *compiledRule
		var bestDays int
		var bestCommission decimal.Decimal

		for j := range legs {
			if j == i || linked[j] || legs[j].Tx.TransferID != "" {
				continue
			}
			rule, days, commission, ok := m.evaluate(legs[i], legs[j])
			if !ok {
				continue
			}
			if best == -1 || days < bestDays ||
				(days == bestDays && commission.LessThan(bestCommission)) {
				best, bestRule, bestDays, bestCommission = j, rule, days, commission
			}
		}
		if best == -1 {
			continue
		}

		links = append(links, link(legs[i].Tx, legs[best].Tx, bestCommission, bestRule.rule.CommissionCategory))
		linked[i], linked[best] = true, true
	}
	return links
}

// evaluate checks whether a and b form a transfer pair under the first
// applicable rule, returning the rule, day difference, and commission.
func (m *Matcher) evaluate(a, b Leg) (*compiledRule, int, decimal.Decimal, bool) {
	if a.AccountID == b.AccountID {
		return nil, 0, decimal.Zero, false
	}
	if a.Tx.Amount.Sign() == 0 || b.Tx.Amount.Sign() == 0 ||
		a.Tx.Amount.Sign() == b.Tx.Amount.Sign() {
		return nil, 0, decimal.Zero, false
	}

	var rule *compiledRule
	for k := range m.rules {
		if m.rules[k].rule.AppliesTo(a.AccountID, b.AccountID) {
			rule = &m.rules[k]
			break
		}
	}
	if rule == nil {
		return nil, 0, decimal.Zero, false
	}

	days := core.DaysBetween(a.Tx.Date, b.Tx.Date)
	if days > rule.rule.MaxDaysDifference {
		return nil, 0, decimal.Zero, false
	}

	absA, absB := a.Tx.Amount.Abs(), b.Tx.Amount.Abs()
	commission := absA.Sub(absB).Abs()
	larger := absA
	if absB.GreaterThan(absA) {
		larger = absB
	}
	// Tolerance is measured against the larger-magnitude leg.
	pct := core.PercentOf(commission, larger)
	if pct.GreaterThan(decimal.NewFromFloat(rule.rule.MaxCommissionPercent)) {
		return nil, 0, decimal.Zero, false
	}

	if rule.counterparty != nil && !rule.counterparty.MatchString(b.Tx.Description) {
		return nil, 0, decimal.Zero, false
	}
	if rule.account != nil && !rule.account.MatchString(b.Tx.Source) {
		return nil, 0, decimal.Zero, false
	}

	return rule, days, commission, true
}

// link writes the shared transfer identifier onto both legs and records the
// commission on the larger-magnitude one.
func link(a, b *core.Transaction, commission decimal.Decimal, commissionCategory string) Link {
	id := uuid.NewString()
	a.TransferID = id
	b.TransferID = id
	a.Status = core.StatusTransfer
	b.Status = core.StatusTransfer

	debit, credit := a, b
	if a.Amount.Sign() > 0 {
		debit, credit = b, a
	}

	if commission.Sign() > 0 {
		larger := debit
		if credit.Amount.Abs().GreaterThan(debit.Amount.Abs()) {
			larger = credit
		}
		larger.TransferCommission = commission
	}

	return Link{
		TransferID:         id,
		Debit:              debit,
		Credit:             credit,
		Commission:         commission,
		CommissionCategory: commissionCategory,
	}
}
