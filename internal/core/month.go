package core

import (
	"fmt"
	"time"
)

// Month identifies a calendar month in the Gregorian calendar.
// Its canonical string form is "YYYY-MM", which is also how it is
// stored and passed around in API parameters.
type Month struct {
	Year int
	Mon  time.Month
}

// ParseMonth parses a "YYYY-MM" string into a Month.
// Returns ErrInvalidMonth for anything that does not parse or is out of range.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, ErrInvalidMonth
	}
	return Month{Year: t.Year(), Mon: t.Month()}, nil
}

// CurrentMonth returns the month containing the given instant, in UTC.
func CurrentMonth(now time.Time) Month {
	now = now.UTC()
	return Month{Year: now.Year(), Mon: now.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Mon))
}

// IsZero reports whether the month is unset.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Mon == 0
}

// Prev returns the immediately preceding month.
func (m Month) Prev() Month {
	t := time.Date(m.Year, m.Mon, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Month{Year: t.Year(), Mon: t.Month()}
}

// Bounds returns the half-open interval [start, end) covering the month:
// the first day of the month inclusive, the first day of the next month
// exclusive. Both are midnight UTC.
func (m Month) Bounds() (start, end time.Time) {
	start = time.Date(m.Year, m.Mon, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether t falls within the month (UTC).
func (m Month) Contains(t time.Time) bool {
	start, end := m.Bounds()
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}
