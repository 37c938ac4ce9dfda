package engine

import "time"

// NextDueDate returns the instant a task is next due for review.
//
// Month-based frequencies add calendar months, not fixed day counts:
// the day-of-month is clamped to the last day of the target month when the
// target month is shorter (Jan 31 + 1 month = Feb 28, or Feb 29 in a leap
// year). Time-of-day and location are preserved exactly.
//
// Frequency is a closed enum; an invalid value is a caller bug and comes
// back unchanged rather than panicking.
func NextDueDate(reviewDate time.Time, freq Frequency) time.Time {
	switch freq {
	case FreqDaily:
		return reviewDate.AddDate(0, 0, 1)
	case FreqWeekly:
		return reviewDate.AddDate(0, 0, 7)
	case FreqMonthly:
		return addMonthsClamped(reviewDate, 1)
	case FreqQuarterly:
		return addMonthsClamped(reviewDate, 3)
	case FreqYearly:
		return addMonthsClamped(reviewDate, 12)
	}
	return reviewDate
}

// addMonthsClamped adds n calendar months. It cannot use time.AddDate,
// which normalizes Jan 31 + 1 month into Mar 2/3 instead of clamping.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	m := int(month) - 1 + n
	year += m / 12
	month = time.Month(m%12 + 1)

	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
