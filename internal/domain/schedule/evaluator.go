package schedule

import "time"

// Reason explains an evaluation result.
type Reason string

const (
	ReasonInWindow         Reason = "in_window"
	ReasonDayNotScheduled  Reason = "day_not_scheduled"
	ReasonDateNotScheduled Reason = "date_not_scheduled"
	ReasonOutsideWindow    Reason = "outside_window"
	ReasonTooSoon          Reason = "too_soon"
	ReasonInvalidSchedule  Reason = "invalid_schedule"
)

// Rule names the date mechanism that made a decision eligible.
type Rule string

const (
	RuleNone         Rule = ""
	RuleRecurring    Rule = "recurring"
	RuleSpecificDate Rule = "specific_date"
)

// Decision is the outcome of evaluating a schedule at one instant.
type Decision struct {
	Eligible bool
	PeriodID string
	Reason   Reason
	Rule     Rule
}

// Evaluate decides whether a monitor with schedule def should be checked at
// now. lastCheckedAt is nil when the monitor has never been checked. A
// definition that fails validation is never eligible.
func Evaluate(def Definition, now time.Time, lastCheckedAt *time.Time) Decision {
	if len(def.violations()) > 0 {
		return Decision{Reason: ReasonInvalidSchedule}
	}

	d := match(def, now)
	if !d.Eligible {
		return d
	}
	if lastCheckedAt != nil && now.Sub(*lastCheckedAt) < def.CheckInterval {
		d.Eligible = false
		d.Reason = ReasonTooSoon
	}
	return d
}

// PeriodID returns the quota period key for now: the ISO date of the day the
// current window instance began. It is empty for an invalid definition.
func PeriodID(def Definition, now time.Time) string {
	if len(def.violations()) > 0 {
		return ""
	}
	return match(def, now).PeriodID
}

// match applies the date rules and the time window, without throttling.
func match(def Definition, now time.Time) Decision {
	local := now.In(def.zone())
	minute := local.Hour()*60 + local.Minute()

	// The tail of a window that wrapped past midnight belongs to the day it started on.
	anchor := DateOf(local)
	if def.Window.CrossesMidnight() && minute < def.Window.End.Minutes() {
		anchor = DateOf(local.AddDate(0, 0, -1))
	}

	dateHit := def.Type.includesDates() && def.Dates.Contains(anchor)
	recurringHit := def.Type.includesRecurring() && def.Recurring.Days.Has(anchor.Weekday())

	d := Decision{PeriodID: anchor.String()}
	switch {
	case !dateHit && !recurringHit:
		d.Reason = ReasonDayNotScheduled
		if def.Type.includesDates() {
			d.Reason = ReasonDateNotScheduled
		}
	case !def.Window.Contains(minute):
		d.Reason = ReasonOutsideWindow
	default:
		d.Eligible = true
		d.Reason = ReasonInWindow
		// The narrower date rule owns the period when both rules match.
		d.Rule = RuleRecurring
		if dateHit {
			d.Rule = RuleSpecificDate
		}
	}
	return d
}
