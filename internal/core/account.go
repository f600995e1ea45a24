package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceManual labels accounts and transactions entered by hand rather than
// ingested from a statement provider.
const SourceManual = "manual"

// Account is a single money holding. Balance is the sum of all applied
// transaction amounts since creation or since the last explicit baseline
// set through SetBalance.
type Account struct {
	ID        int64
	Name      string
	Source    string // "monobank:<id>" or "manual"
	Balance   decimal.Decimal
	GroupID   *int64
	UpdatedAt time.Time
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if a.Source == "" {
		return &ValidationError{Field: "source", Reason: "source label is required"}
	}
	return nil
}

// ApplyTransaction adds amount to the balance and stamps the update time.
func (a *Account) ApplyTransaction(amount decimal.Decimal, at time.Time) {
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = at
}

// SetBalance overwrites the balance directly. Used for corrections and for
// setting a baseline on a freshly linked provider account.
func (a *Account) SetBalance(value decimal.Decimal, at time.Time) {
	a.Balance = value
	a.UpdatedAt = at
}

// ExternalID returns the provider-side account id for accounts whose source
// is "<provider>:<id>", or "" for manual accounts.
func (a Account) ExternalID() string {
	_, id, ok := strings.Cut(a.Source, ":")
	if !ok {
		return ""
	}
	return id
}
