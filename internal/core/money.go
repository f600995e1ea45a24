// Package core holds the domain entities of the ledger and the money and
// time utilities they share. Amounts are fixed-point decimals; external
// providers deliver amounts in minor currency units (cents) which are
// converted exactly on ingestion.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FromMinorUnits converts an amount expressed in minor currency units to a
// decimal amount. The conversion is exact: 1234 -> 12.34.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// PercentOf returns part/whole*100. Returns zero when whole is zero so
// callers never divide by zero on an unbounded ratio.
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// FromUnixSeconds converts a provider epoch timestamp to UTC.
func FromUnixSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// DayUTC truncates t to midnight UTC.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute whole-day difference between the
// calendar days of a and b, ignoring time of day.
func DaysBetween(a, b time.Time) int {
	da, db := DayUTC(a), DayUTC(b)
	days := int(db.Sub(da).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
