package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - The engine's unit of calendar arithmetic
// =============================================================================

// Month is a specific calendar month. Records generated per month carry its
// Label as their period key.
type Month struct {
	Year int
	M    time.Month
}

// NewMonth builds a Month. The time.Month convention (January = 1) is used
// throughout the engine.
func NewMonth(year int, m time.Month) Month { return Month{Year: year, M: m} }

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month { return Month{Year: t.Year(), M: t.Month()} }

// Label returns the period key, e.g. "03/2026". This is the persisted
// dedup key component for tasks and reconciliations, so the format must
// never change once records exist.
func (m Month) Label() string { return fmt.Sprintf("%02d/%d", int(m.M), m.Year) }

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.M, 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the last day of the month.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

// Days returns the number of days in the month.
func (m Month) Days() int { return m.End().Day() }

// Next returns the following month, rolling December into January.
func (m Month) Next() Month {
	if m.M == time.December {
		return Month{Year: m.Year + 1, M: time.January}
	}
	return Month{Year: m.Year, M: m.M + 1}
}

// Prev returns the preceding month, rolling January into December.
func (m Month) Prev() Month {
	if m.M == time.January {
		return Month{Year: m.Year - 1, M: time.December}
	}
	return Month{Year: m.Year, M: m.M - 1}
}

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.M < other.M
}

func (m Month) Equal(other Month) bool { return m == other }

// ParseMonthLabel parses a period key produced by Label, e.g. "03/2026".
func ParseMonthLabel(label string) (Month, error) {
	var monthNum, year int
	if _, err := fmt.Sscanf(label, "%d/%d", &monthNum, &year); err != nil {
		return Month{}, fmt.Errorf("bad month label %q: %w", label, err)
	}
	if monthNum < 1 || monthNum > 12 || year < 1 {
		return Month{}, fmt.Errorf("bad month label %q", label)
	}
	return Month{Year: year, M: time.Month(monthNum)}, nil
}

// =============================================================================
// MONTH-RANGE EXPANDER
// =============================================================================

// MonthRange expands a start month into the ordered sequence of months from
// start through the month containing now, both inclusive. A zero or future
// start is a caller input error, not something the expander guesses around.
func MonthRange(start Month, now time.Time) ([]Month, error) {
	if start.Year == 0 {
		return nil, fmt.Errorf("%w: start month not set", ErrInvalidRange)
	}
	last := MonthOf(now)
	if last.Before(start) {
		return nil, fmt.Errorf("%w: start %s is after current month %s",
			ErrInvalidRange, start.Label(), last.Label())
	}

	var months []Month
	for m := start; !last.Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months, nil
}
