package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAlertThreshold is the usage percentage at which a budget starts
// alerting unless configured otherwise.
const DefaultAlertThreshold = 80.0

// Budget tracks spending against a limit over a calendar period. Remaining,
// UsagePercentage and ShouldAlert are derived on read and never persisted,
// so they cannot drift from Spent.
type Budget struct {
	ID             int64
	Name           string
	Category       string // optional filter; empty matches every category
	Limit          decimal.Decimal
	Spent          decimal.Decimal
	Frequency      Frequency
	StartDate      time.Time
	EndDate        time.Time
	Active         bool
	AlertThreshold float64 // percentage
	Description    string
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if !b.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if b.Limit.IsNegative() {
		return &ValidationError{Field: "limit", Reason: "limit must not be negative"}
	}
	if b.AlertThreshold < 0 {
		return &ValidationError{Field: "alert_threshold", Reason: "threshold must not be negative"}
	}
	return nil
}

// Remaining returns Limit - Spent. Negative values represent overage.
func (b Budget) Remaining() decimal.Decimal {
	return b.Limit.Sub(b.Spent)
}

// UsagePercentage returns Spent/Limit*100, or zero when Limit is zero.
func (b Budget) UsagePercentage() decimal.Decimal {
	return PercentOf(b.Spent, b.Limit)
}

// ShouldAlert reports whether usage has reached the alert threshold.
func (b Budget) ShouldAlert() bool {
	return b.UsagePercentage().GreaterThanOrEqual(decimal.NewFromFloat(b.AlertThreshold))
}

// RegisterExpense increases Spent. Zero is accepted as a valid no-op;
// negative amounts are rejected before any mutation.
func (b *Budget) RegisterExpense(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: ErrNegativeAmount.Error()}
	}
	b.Spent = b.Spent.Add(amount)
	return nil
}

// ResetPeriod zeroes Spent and starts a fresh period. EndDate is recomputed
// from the new frequency and start date.
func (b *Budget) ResetPeriod(frequency Frequency, startDate time.Time) {
	b.Spent = decimal.Zero
	b.Frequency = frequency
	b.StartDate = startDate
	b.EndDate = frequency.Advance(startDate, 1)
}

// Covers reports whether a transaction with the given category and date
// counts against this budget.
func (b Budget) Covers(category string, date time.Time) bool {
	if !b.Active {
		return false
	}
	if b.Category != "" && b.Category != category {
		return false
	}
	if date.Before(b.StartDate) {
		return false
	}
	if !b.EndDate.IsZero() && date.After(b.EndDate) {
		return false
	}
	return true
}
