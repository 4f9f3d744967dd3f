package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Type selects which date mechanisms a Definition uses.
type Type string

const (
	TypeRecurring     Type = "recurring"
	TypeSpecificDates Type = "specific_dates"
	TypeHybrid        Type = "hybrid" // union of recurring and specific dates
)

func (t Type) known() bool {
	return t == TypeRecurring || t == TypeSpecificDates || t == TypeHybrid
}

func (t Type) includesRecurring() bool { return t == TypeRecurring || t == TypeHybrid }
func (t Type) includesDates() bool     { return t == TypeSpecificDates || t == TypeHybrid }

const (
	minutesPerDay = 24 * 60
	maxUTCOffset  = 14 * time.Hour
	dateLayout    = "2006-01-02"
)

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.valid() {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// Minutes returns the number of minutes since local midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// TimeWindow is the half-open local interval [Start, End). End before Start
// wraps past midnight; Start equal to End covers the whole day.
type TimeWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// FullDay is the 24h window.
func FullDay() TimeWindow { return TimeWindow{} }

func (w TimeWindow) IsFullDay() bool { return w.Start == w.End }

func (w TimeWindow) CrossesMidnight() bool { return w.End.Minutes() < w.Start.Minutes() }

// Contains reports whether minute-of-day m lies inside the window.
func (w TimeWindow) Contains(m int) bool {
	start, end := w.Start.Minutes(), w.End.Minutes()
	switch {
	case start == end:
		return true
	case start < end:
		return m >= start && m < end
	default:
		return m >= start || m < end
	}
}

func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// WeekdaySet is a bitmask of time.Weekday values (Sunday=0 .. Saturday=6).
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			s |= 1 << uint(d)
		}
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) Empty() bool             { return s == 0 }

func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) time() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

func (d Date) String() string { return d.time().Format(dateLayout) }

func (d Date) compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return d.Year - o.Year
	case d.Month != o.Month:
		return int(d.Month) - int(o.Month)
	default:
		return d.Day - o.Day
	}
}

// RecurringRule matches the weekdays a monitor runs on.
type RecurringRule struct {
	Days WeekdaySet
}

// DateRule matches an explicit set of calendar dates, kept sorted and unique.
type DateRule struct {
	Dates []Date
}

func newDateRule(dates []Date) *DateRule {
	sorted := slices.Clone(dates)
	slices.SortFunc(sorted, Date.compare)
	sorted = slices.CompactFunc(sorted, func(a, b Date) bool { return a == b })
	return &DateRule{Dates: sorted}
}

func (r *DateRule) Contains(d Date) bool {
	_, found := slices.BinarySearchFunc(r.Dates, d, Date.compare)
	return found
}

// Definition describes when a monitor is eligible to run. Recurring is set
// only when Type includes recurring rules and Dates only when it includes
// specific dates. Build one with Build or the New* constructors.
type Definition struct {
	Type          Type
	Recurring     *RecurringRule
	Dates         *DateRule
	Window        TimeWindow
	CheckInterval time.Duration
	UTCOffset     time.Duration
}

func NewRecurring(days WeekdaySet, window TimeWindow, interval, utcOffset time.Duration) (Definition, error) {
	return finish(Definition{
		Type:          TypeRecurring,
		Recurring:     &RecurringRule{Days: days},
		Window:        window,
		CheckInterval: interval,
		UTCOffset:     utcOffset,
	})
}

func NewSpecificDates(dates []Date, window TimeWindow, interval, utcOffset time.Duration) (Definition, error) {
	return finish(Definition{
		Type:          TypeSpecificDates,
		Dates:         newDateRule(dates),
		Window:        window,
		CheckInterval: interval,
		UTCOffset:     utcOffset,
	})
}

func NewHybrid(days WeekdaySet, dates []Date, window TimeWindow, interval, utcOffset time.Duration) (Definition, error) {
	return finish(Definition{
		Type:          TypeHybrid,
		Recurring:     &RecurringRule{Days: days},
		Dates:         newDateRule(dates),
		Window:        window,
		CheckInterval: interval,
		UTCOffset:     utcOffset,
	})
}

func finish(d Definition) (Definition, error) {
	if v := d.violations(); len(v) > 0 {
		return Definition{}, v
	}
	return d, nil
}

func (d Definition) zone() *time.Location {
	if d.UTCOffset == 0 {
		return time.UTC
	}
	return time.FixedZone(formatOffset(d.UTCOffset), int(d.UTCOffset/time.Second))
}

func formatOffset(off time.Duration) string {
	sign := '+'
	if off < 0 {
		sign = '-'
		off = -off
	}
	return fmt.Sprintf("%c%02d:%02d", sign, int(off/time.Hour), int(off%time.Hour/time.Minute))
}
