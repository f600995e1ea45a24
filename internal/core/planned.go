package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlannedPending   PlannedStatus = "pending"
	PlannedRealized  PlannedStatus = "realized"
	PlannedCancelled PlannedStatus = "cancelled"
)

// PlannedStatus is the lifecycle state of a forward-looking entry.
type PlannedStatus string

// PlannedTransaction is a forward-looking entry, either planned by hand or
// materialized from a recurring transaction. Once executed it links to the
// realized ledger transaction.
type PlannedTransaction struct {
	ID                    string
	RecurringID           int64 // 0 = manual plan
	AccountID             int64
	Amount                decimal.Decimal
	Category              string
	Description           string
	DueDate               time.Time
	Status                PlannedStatus
	RealizedTransactionID string
}

// Realize links the plan to the transaction it produced. Only a pending
// plan can be realized.
func (p *PlannedTransaction) Realize(transactionID string) error {
	if p.Status != PlannedPending {
		return &StateError{Entity: "planned transaction", Reason: "not pending"}
	}
	p.Status = PlannedRealized
	p.RealizedTransactionID = transactionID
	return nil
}

// Cancel withdraws a pending plan.
func (p *PlannedTransaction) Cancel() error {
	if p.Status != PlannedPending {
		return &StateError{Entity: "planned transaction", Reason: "not pending"}
	}
	p.Status = PlannedCancelled
	return nil
}
