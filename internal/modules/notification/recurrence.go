// README: Next-occurrence arithmetic for recurring notifications.
package notification

import "time"

// NextOccurrence advances from by interval units of the pattern frequency. An
// interval below one counts as one. Month and year steps follow time.AddDate,
// so Jan 31 plus one month lands in early March.
func NextOccurrence(from time.Time, p Pattern) time.Time {
	n := p.Interval
	if n < 1 {
		n = 1
	}
	switch p.Frequency {
	case Daily:
		return from.AddDate(0, 0, n)
	case Weekly:
		return from.AddDate(0, 0, 7*n)
	case Monthly:
		return from.AddDate(0, n, 0)
	case Yearly:
		return from.AddDate(n, 0, 0)
	}
	return from.AddDate(0, 0, n)
}

// withinEnd reports whether t is on or before the pattern end date.
func withinEnd(t time.Time, p Pattern) bool {
	return p.EndDate == nil || !t.After(*p.EndDate)
}
