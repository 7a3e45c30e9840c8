package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and cache-key format for business dates
const DateLayout = "2006-01-02"

// MonthLayout is the wire and cache-key format for business months
const MonthLayout = "2006-01"

// Date is a calendar day without a timezone. All ledger rows, cache keys and
// SQL filters are keyed by Date values derived through a Calendar, so a
// transaction recorded late at night lands on the same business day on every
// instance regardless of server timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate creates a Date, normalizing out-of-range components the way
// time.Date does (e.g. day 32 rolls into the next month).
func NewDate(year int, month time.Month, day int) Date {
	return DateOfTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOfTime extracts the calendar day of t in t's own location
func DateOfTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a date in DateLayout format
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOfTime(t), nil
}

// AddDays returns the date n days after d (n may be negative)
func (d Date) AddDays(n int) Date {
	return DateOfTime(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Next returns the following day
func (d Date) Next() Date {
	return d.AddDays(1)
}

// Prev returns the preceding day
func (d Date) Prev() Date {
	return d.AddDays(-1)
}

// Compare returns -1, 0 or 1 depending on whether d is before, equal to or
// after other
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// Before reports whether d is before other
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

// After reports whether d is after other
func (d Date) After(other Date) bool {
	return d.Compare(other) > 0
}

// IsZero reports whether d is the zero Date
func (d Date) IsZero() bool {
	return d == Date{}
}

// UTC returns midnight of d as a UTC time. Persistence models use this as
// the canonical representation for DATE columns.
func (d Date) UTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns midnight of d in the given location
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// MonthOf returns the month containing d
func (d Date) MonthOf() YearMonth {
	return YearMonth{Year: d.Year, Month: d.Month}
}

// String formats d in DateLayout
func (d Date) String() string {
	return d.UTC().Format(DateLayout)
}

// MarshalJSON encodes d as a DateLayout string
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes d from a DateLayout string
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DatesBetween returns every date from "from" through "to" inclusive.
// Returns nil when from is after to.
func DatesBetween(from, to Date) []Date {
	if from.After(to) {
		return nil
	}
	var dates []Date
	for d := from; !d.After(to); d = d.Next() {
		dates = append(dates, d)
	}
	return dates
}

// YearMonth identifies a calendar month, used for monthly report cache keys
// and monthly transaction partitions
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses a month in MonthLayout format
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// First returns the first day of the month
func (m YearMonth) First() Date {
	return Date{Year: m.Year, Month: m.Month, Day: 1}
}

// Last returns the last day of the month
func (m YearMonth) Last() Date {
	return m.Next().First().Prev()
}

// Next returns the following month
func (m YearMonth) Next() YearMonth {
	return m.First().AddDays(31).MonthOf()
}

// Prev returns the preceding month
func (m YearMonth) Prev() YearMonth {
	return m.First().Prev().MonthOf()
}

// Contains reports whether d falls inside the month
func (m YearMonth) Contains(d Date) bool {
	return m.Year == d.Year && m.Month == d.Month
}

// Compare returns -1, 0 or 1 depending on whether m is before, equal to or
// after other
func (m YearMonth) Compare(other YearMonth) int {
	if m.Year != other.Year {
		return sign(m.Year - other.Year)
	}
	return sign(int(m.Month) - int(other.Month))
}

// String formats m in MonthLayout
func (m YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MarshalJSON encodes m as a MonthLayout string
func (m YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes m from a MonthLayout string
func (m *YearMonth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Calendar resolves wall-clock instants to business dates in the single
// fixed timezone the product operates in. Every component that touches
// dates (calculator, cache keys, schedulers, partition manager) goes
// through the same Calendar instance so day boundaries agree everywhere.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar loads the business timezone by IANA name
func NewCalendar(timezone string) (*Calendar, error) {
	if timezone == "" {
		return nil, fmt.Errorf("business timezone is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid business timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewCalendarAt creates a Calendar with a fixed clock, for tests
func NewCalendarAt(timezone string, now func() time.Time) (*Calendar, error) {
	c, err := NewCalendar(timezone)
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// Location returns the business timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Today returns the current business date
func (c *Calendar) Today() Date {
	return DateOfTime(c.now().In(c.loc))
}

// DateOf maps an instant to its business date
func (c *Calendar) DateOf(t time.Time) Date {
	return DateOfTime(t.In(c.loc))
}

// CurrentMonth returns the month containing today's business date
func (c *Calendar) CurrentMonth() YearMonth {
	return c.Today().MonthOf()
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
