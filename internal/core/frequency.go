package core

import "time"

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Frequency is the calendar unit of a recurring obligation or a budget
// period.
type Frequency string

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Advance returns ref moved forward by n units of f. Monthly and yearly
// advances preserve the day of month, clamped to the last valid day of the
// target month (Jan 31 + 1 month -> Feb 28/29). Daily and weekly advances
// are plain day arithmetic. An unknown frequency returns ref unchanged.
func (f Frequency) Advance(ref time.Time, n int) time.Time {
	switch f {
	case Daily:
		return ref.AddDate(0, 0, n)
	case Weekly:
		return ref.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonthsClamped(ref, n)
	case Yearly:
		return addMonthsClamped(ref, 12*n)
	}
	return ref
}

// addMonthsClamped adds months to ref without the day-overflow rollover of
// AddDate: the day of month is clamped to the last day of the target month.
func addMonthsClamped(ref time.Time, months int) time.Time {
	y, m, d := ref.Date()
	firstOfTarget := time.Date(y, time.Month(int(m)+months), 1, 0, 0, 0, 0, ref.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d,
		ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}
