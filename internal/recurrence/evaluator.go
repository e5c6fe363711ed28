// Package recurrence decides whether a schedule's rules are due at a given
// instant.
//
// A rule fires only when its calendar predicate matches and the instant's
// minute equals the rule's HH:MM exactly. The orchestrator is expected to
// run at minute cadence; a coarser cadence is tolerated only through the
// idempotency gate downstream, never by widening the match window here.
package recurrence

import (
	"time"

	"taskrota/internal/core"
)

// MonthlyClampPolicy controls monthly rules that name a day the evaluated
// month does not have (29/30/31 in shorter months).
type MonthlyClampPolicy string

const (
	// ClampSkip drops the entry for that month.
	ClampSkip MonthlyClampPolicy = "skip"
	// ClampLastDay moves the entry to the month's final day.
	ClampLastDay MonthlyClampPolicy = "clamp"
)

func (p MonthlyClampPolicy) Valid() bool {
	return p == ClampSkip || p == ClampLastDay
}

// HolidayResolver is the holiday lookup consumed by the evaluator.
type HolidayResolver interface {
	IsHoliday(core.Date) bool
}

type Evaluator struct {
	holidays HolidayResolver
	clamp    MonthlyClampPolicy
}

// NewEvaluator builds an evaluator. holidays may be nil when no holiday
// calendar is configured; clamp defaults to ClampSkip when unset.
func NewEvaluator(holidays HolidayResolver, clamp MonthlyClampPolicy) *Evaluator {
	if !clamp.Valid() {
		clamp = ClampSkip
	}
	return &Evaluator{holidays: holidays, clamp: clamp}
}

// Result is one evaluation of a rule set at an instant.
type Result struct {
	// Due is true when some rule fired and the occurrence should proceed.
	Due bool
	// Occurrence is the matched calendar date (always now's date).
	Occurrence core.Date
	// HolidaySkipped is true when a rule would have fired but the date is
	// a holiday and the schedule skips holidays. Distinct from a plain
	// mismatch so the caller can record the skip.
	HolidaySkipped bool
}

// Evaluate checks the OR-combined rules against now.
//
// Rules never produce two occurrences on the same day by themselves; that is
// enforced downstream by the idempotency gate, not here.
func (e *Evaluator) Evaluate(rules []core.Rule, now time.Time, skipHolidays bool) Result {
	res := Result{Occurrence: core.DateOf(now)}

	matched := false
	for _, r := range rules {
		if e.ruleMatches(r, now) {
			matched = true
			break
		}
	}
	if !matched {
		return res
	}

	if skipHolidays && e.holidays != nil && e.holidays.IsHoliday(res.Occurrence) {
		// No implicit rescheduling; the occurrence is dropped entirely.
		res.HolidaySkipped = true
		return res
	}

	res.Due = true
	return res
}

// IsDue is the boolean convenience form of Evaluate.
func (e *Evaluator) IsDue(rules []core.Rule, now time.Time, skipHolidays bool) (bool, core.Date) {
	res := e.Evaluate(rules, now, skipHolidays)
	return res.Due, res.Occurrence
}

func (e *Evaluator) ruleMatches(r core.Rule, now time.Time) bool {
	if !r.Time.Matches(now) {
		return false
	}
	switch r.Type {
	case core.RuleDaily:
		return true
	case core.RuleWeekly:
		wd := now.Weekday()
		for _, d := range r.Days {
			if d == wd {
				return true
			}
		}
		return false
	case core.RuleMonthly:
		day := now.Day()
		last := daysInMonth(now.Year(), now.Month())
		for _, d := range r.Dates {
			target := d
			switch {
			case d == core.LastDayOfMonth:
				target = last
			case d > last:
				if e.clamp == ClampSkip {
					continue
				}
				target = last
			}
			if day == target {
				return true
			}
		}
		return false
	default:
		// Unknown types are rejected at construction.
		return false
	}
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to this month's last day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
