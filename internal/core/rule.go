package core

import (
	"regexp"
	"strings"
)

const (
	DefaultMaxDaysDifference    = 2
	DefaultMaxCommissionPercent = 2.0
)

// ReconciliationRule configures transfer detection between a pair of the
// user's own accounts. Patterns are regular expressions matched against a
// candidate leg's description and source; empty patterns match everything.
type ReconciliationRule struct {
	ID                   int64
	Name                 string
	SourceAccountID      int64
	TargetAccountID      int64
	CounterpartyPattern  string
	AccountPattern       string
	MaxDaysDifference    int
	MaxCommissionPercent float64
	Active               bool
	CommissionCategory   string
}

func (r ReconciliationRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if r.SourceAccountID == r.TargetAccountID {
		return &ValidationError{Field: "accounts", Reason: "source and target must differ"}
	}
	if r.MaxDaysDifference < 0 {
		return &ValidationError{Field: "max_days_difference", Reason: "must not be negative"}
	}
	if r.MaxCommissionPercent < 0 {
		return &ValidationError{Field: "max_commission_percent", Reason: "must not be negative"}
	}
	if r.CounterpartyPattern != "" {
		if _, err := regexp.Compile(r.CounterpartyPattern); err != nil {
			return &ValidationError{Field: "counterparty_pattern", Reason: err.Error()}
		}
	}
	if r.AccountPattern != "" {
		if _, err := regexp.Compile(r.AccountPattern); err != nil {
			return &ValidationError{Field: "account_pattern", Reason: err.Error()}
		}
	}
	return nil
}

// AppliesTo reports whether the rule's account pair covers the two given
// accounts, in either orientation.
func (r ReconciliationRule) AppliesTo(accountA, accountB int64) bool {
	return (r.SourceAccountID == accountA && r.TargetAccountID == accountB) ||
		(r.SourceAccountID == accountB && r.TargetAccountID == accountA)
}
