package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecurringTransaction is a scheduled obligation that periodically
// synthesizes a ledger transaction. Lifecycle: scheduled while active and
// waiting for the next occurrence, due once the occurrence date arrives,
// and terminated (IsActive=false) once the end date is reached. A
// terminated instance never transitions again.
type RecurringTransaction struct {
	ID              int64
	Description     string
	Amount          decimal.Decimal
	Category        string
	AccountID       int64
	Frequency       Frequency
	Interval        int // multiplier of the frequency unit, > 0
	StartDate       time.Time
	EndDate         time.Time // zero value = open-ended
	NextOccurrence  time.Time
	LastOccurrence  time.Time // zero value = never executed
	OccurrenceCount int64
	IsActive        bool
	AutoExecute     bool
	ReminderDays    int
	Notes           string
}

func (r RecurringTransaction) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return &ValidationError{Field: "description", Reason: "description cannot be empty"}
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if r.Interval <= 0 {
		return &ValidationError{Field: "interval", Reason: ErrInvalidInterval.Error()}
	}
	if r.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "start date is required"}
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "end date must not precede start date"}
	}
	return nil
}

// CalculateNextOccurrence computes reference + interval frequency units,
// writes it to NextOccurrence and returns it. Deterministic for a given
// (frequency, interval, reference) triple.
func (r *RecurringTransaction) CalculateNextOccurrence(reference time.Time) time.Time {
	next := r.Frequency.Advance(reference, r.Interval)
	r.NextOccurrence = next
	return next
}

// IsDue reports whether the next occurrence has arrived. Pure predicate:
// it never mutates state.
func (r *RecurringTransaction) IsDue(asOf time.Time) bool {
	if !r.IsActive || r.NextOccurrence.IsZero() {
		return false
	}
	return !asOf.Before(r.NextOccurrence)
}

// MarkAsExecuted records an execution at asOf: it bumps the occurrence
// count, stamps LastOccurrence, and recomputes NextOccurrence from asOf.
// If the end date is set and either asOf has reached it or the new
// occurrence would fall past it, the instance terminates. Returns a
// StateError when called on a terminated instance.
func (r *RecurringTransaction) MarkAsExecuted(asOf time.Time) error {
	if !r.IsActive {
		return &StateError{Entity: "recurring transaction", Reason: "already terminated"}
	}
	r.OccurrenceCount++
	r.LastOccurrence = asOf
	next := r.CalculateNextOccurrence(asOf)
	if !r.EndDate.IsZero() && (next.After(r.EndDate) || !asOf.Before(r.EndDate)) {
		r.IsActive = false
	}
	return nil
}
