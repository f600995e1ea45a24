package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusNormal     TransactionStatus = "normal"
	StatusTransfer   TransactionStatus = "transfer"
	StatusCommission TransactionStatus = "commission"
)

// TransactionStatus classifies a transaction after reconciliation.
type TransactionStatus string

// Transaction is a single ledger entry owned by one account. TransactionID
// is the stable external identifier and is unique per data set; Hash is the
// dedup fingerprint over the identifying tuple. TransferID is a weak link
// to a reconciled counterpart on another account: either side may be
// deleted without cascading to the other.
type Transaction struct {
	ID                 int64
	TransactionID      string
	Date               time.Time
	Amount             decimal.Decimal // signed; negative = debit
	Description        string
	Category           string
	Source             string
	Hash               string
	TransferID         string // empty = not linked
	Status             TransactionStatus
	TransferCommission decimal.Decimal // recorded on the larger-magnitude leg
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return &ValidationError{Field: "transaction_id", Reason: "external id is required"}
	}
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "date is required"}
	}
	if t.Source == "" {
		return &ValidationError{Field: "source", Reason: "source label is required"}
	}
	return nil
}

// IsExpense reports whether the transaction debits the account and still
// counts as ordinary spending (transfer legs and commissions do not).
func (t Transaction) IsExpense() bool {
	return t.Status == StatusNormal && t.Amount.IsNegative()
}

// Fingerprint derives the dedup hash from the tuple that identifies an
// external statement record: external id, amount, date, and account source.
// Re-ingesting the same record always yields the same fingerprint.
func Fingerprint(externalID string, amount decimal.Decimal, date time.Time, source string) string {
	sum := sha256.Sum256([]byte(externalID + "|" + amount.String() + "|" +
		date.UTC().Format(time.RFC3339) + "|" + source))
	return hex.EncodeToString(sum[:])
}
