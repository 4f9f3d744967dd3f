package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule matches any Violations via errors.Is.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Config is the raw, unvalidated shape of a schedule as supplied by the
// configuration source.
type Config struct {
	Type                 string
	DaysOfWeek           []int
	TimeWindowStart      string
	TimeWindowEnd        string
	SpecificDates        []string
	CheckIntervalMinutes int
	UTCOffset            string // "+03:00", "-0530", "Z"; empty means UTC
}

// Violation is one broken rule on one field.
type Violation struct {
	Field   string
	Rule    string
	Message string
}

func (v Violation) String() string { return v.Field + ": " + v.Message }

// Violations lists every rule a schedule breaks.
type Violations []Violation

func (v Violations) Error() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = x.String()
	}
	return "invalid schedule: " + strings.Join(parts, "; ")
}

func (v Violations) Is(target error) bool { return target == ErrInvalidSchedule }

// Has reports whether a violation of rule on field is present.
func (v Violations) Has(field, rule string) bool {
	for _, x := range v {
		if x.Field == field && x.Rule == rule {
			return true
		}
	}
	return false
}

// Prefixed returns a copy with every field name prefixed, for nesting
// schedule violations inside a larger document.
func (v Violations) Prefixed(prefix string) Violations {
	out := make(Violations, len(v))
	for i, x := range v {
		x.Field = prefix + x.Field
		out[i] = x
	}
	return out
}

func (v *Violations) add(field, rule, format string, args ...any) {
	*v = append(*v, Violation{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a raw schedule configuration and returns every violation.
// An empty result means Build will succeed.
func Validate(cfg Config) Violations {
	_, v := build(cfg)
	return v
}

// Build validates cfg and returns the Definition it describes. The returned
// error is a Violations value.
func Build(cfg Config) (Definition, error) {
	def, v := build(cfg)
	if len(v) > 0 {
		return Definition{}, v
	}
	return def, nil
}

func build(cfg Config) (Definition, Violations) {
	var v Violations

	typ := Type(strings.ToLower(strings.TrimSpace(cfg.Type)))
	if !typ.known() {
		v.add("type", "unknown", "must be one of %s, %s, %s", TypeRecurring, TypeSpecificDates, TypeHybrid)
	}

	def := Definition{Type: typ}

	if typ.includesRecurring() {
		var days WeekdaySet
		for _, d := range cfg.DaysOfWeek {
			if d < 0 || d > 6 {
				v.add("days_of_week", "range", "day %d is outside 0-6", d)
				continue
			}
			days |= NewWeekdaySet(time.Weekday(d))
		}
		if len(cfg.DaysOfWeek) == 0 {
			v.add("days_of_week", "required", "at least one weekday is required for %s schedules", typ)
		}
		def.Recurring = &RecurringRule{Days: days}
	}

	if typ.includesDates() {
		dates := make([]Date, 0, len(cfg.SpecificDates))
		for _, s := range cfg.SpecificDates {
			d, err := ParseDate(s)
			if err != nil {
				v.add("specific_dates", "format", "%q is not a YYYY-MM-DD date", s)
				continue
			}
			dates = append(dates, d)
		}
		if len(cfg.SpecificDates) == 0 {
			v.add("specific_dates", "required", "at least one date is required for %s schedules", typ)
		}
		def.Dates = newDateRule(dates)
	}

	start, end := strings.TrimSpace(cfg.TimeWindowStart), strings.TrimSpace(cfg.TimeWindowEnd)
	switch {
	case start == "" && end == "":
		def.Window = FullDay()
	case start == "":
		v.add("time_window_start", "required", "required when time_window_end is set")
	case end == "":
		v.add("time_window_end", "required", "required when time_window_start is set")
	default:
		s, err := ParseTimeOfDay(start)
		if err != nil {
			v.add("time_window_start", "format", "%q is not a valid HH:MM time", start)
		}
		e, err := ParseTimeOfDay(end)
		if err != nil {
			v.add("time_window_end", "format", "%q is not a valid HH:MM time", end)
		}
		def.Window = TimeWindow{Start: s, End: e}
	}

	if cfg.CheckIntervalMinutes <= 0 {
		v.add("check_interval_minutes", "positive", "must be greater than zero, got %d", cfg.CheckIntervalMinutes)
	}
	def.CheckInterval = time.Duration(cfg.CheckIntervalMinutes) * time.Minute

	off, err := ParseUTCOffset(cfg.UTCOffset)
	if err != nil {
		v.add("utc_offset", "format", "%v", err)
	}
	def.UTCOffset = off

	return def, v
}

// violations re-checks the structural invariants of an already built
// definition, so a zero or hand-assembled value cannot reach evaluation.
func (d Definition) violations() Violations {
	var v Violations
	if !d.Type.known() {
		v.add("type", "unknown", "unknown schedule type %q", d.Type)
	}
	if d.Type.includesRecurring() && (d.Recurring == nil || d.Recurring.Days.Empty()) {
		v.add("days_of_week", "required", "at least one weekday is required for %s schedules", d.Type)
	}
	if d.Type.includesDates() && (d.Dates == nil || len(d.Dates.Dates) == 0) {
		v.add("specific_dates", "required", "at least one date is required for %s schedules", d.Type)
	}
	if !d.Window.Start.valid() {
		v.add("time_window_start", "format", "%s is not a valid time", d.Window.Start)
	}
	if !d.Window.End.valid() {
		v.add("time_window_end", "format", "%s is not a valid time", d.Window.End)
	}
	if d.CheckInterval <= 0 {
		v.add("check_interval_minutes", "positive", "must be greater than zero")
	}
	if d.UTCOffset < -maxUTCOffset || d.UTCOffset > maxUTCOffset {
		v.add("utc_offset", "format", "offset %s is beyond ±14:00", d.UTCOffset)
	}
	return v
}

// ParseUTCOffset parses "+HH:MM", "-HHMM", "+HH" or "Z". Empty is UTC.
func ParseUTCOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" || strings.EqualFold(s, "UTC") {
		return 0, nil
	}
	sign := time.Duration(1)
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("offset %q must start with + or -", s)
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return 0, fmt.Errorf("offset %q must look like +HH:MM", s)
	}
	h, err := strconv.Atoi(body[:2])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("offset %q has an invalid hour", s)
	}
	m := 0
	if len(body) == 4 {
		if m, err = strconv.Atoi(body[2:]); err != nil || m < 0 || m >= 60 {
			return 0, fmt.Errorf("offset %q has an invalid minute", s)
		}
	}
	off := sign * (time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	if off < -maxUTCOffset || off > maxUTCOffset {
		return 0, fmt.Errorf("offset %q is beyond ±14:00", s)
	}
	return off, nil
}
