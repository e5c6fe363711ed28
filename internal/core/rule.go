package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type RuleType string

const (
	RuleDaily   RuleType = "daily"
	RuleWeekly  RuleType = "weekly"
	RuleMonthly RuleType = "monthly"
)

// LastDayOfMonth is the day-of-month marker that resolves to the actual
// last day of the evaluated month (28/29/30/31 depending on the calendar).
const LastDayOfMonth = -1

// ClockTime is a minute-precision time of day (HH:MM).
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" with 24h hours.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: malformed time %q (want HH:MM)", ErrInvalidRule, s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Matches reports whether t falls on the same minute as c.
func (c ClockTime) Matches(t time.Time) bool {
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: time must be a string", ErrInvalidRule)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Rule is one recurrence entry of a schedule. Rules are OR-combined.
//
// The variant is selected by Type:
//   - daily:   fires every day at Time
//   - weekly:  fires at Time on the listed weekdays (0=Sunday .. 6=Saturday)
//   - monthly: fires at Time on the listed days of month (1..31, or
//     LastDayOfMonth for the month's final day)
//
// Construct rules through NewDailyRule/NewWeeklyRule/NewMonthlyRule or
// validate decoded values with Validate before use.
type Rule struct {
	Type  RuleType       `json:"type"`
	Time  ClockTime      `json:"time"`
	Days  []time.Weekday `json:"days,omitempty"`
	Dates []int          `json:"dates,omitempty"`
}

func NewDailyRule(at string) (Rule, error) {
	ct, err := ParseClock(at)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Type: RuleDaily, Time: ct}, nil
}

func NewWeeklyRule(at string, days ...time.Weekday) (Rule, error) {
	ct, err := ParseClock(at)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Type: RuleWeekly, Time: ct, Days: normalizeWeekdays(days)}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func NewMonthlyRule(at string, dates ...int) (Rule, error) {
	ct, err := ParseClock(at)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Type: RuleMonthly, Time: ct, Dates: normalizeDates(dates)}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func (r Rule) Validate() error {
	switch r.Type {
	case RuleDaily:
		if len(r.Days) != 0 || len(r.Dates) != 0 {
			return fmt.Errorf("%w: daily rule must not set days or dates", ErrInvalidRule)
		}
	case RuleWeekly:
		if len(r.Days) == 0 {
			return fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
		}
		if len(r.Dates) != 0 {
			return fmt.Errorf("%w: weekly rule must not set dates", ErrInvalidRule)
		}
		for _, d := range r.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range 0-6", ErrInvalidRule, int(d))
			}
		}
	case RuleMonthly:
		if len(r.Dates) == 0 {
			return fmt.Errorf("%w: monthly rule needs at least one day of month", ErrInvalidRule)
		}
		if len(r.Days) != 0 {
			return fmt.Errorf("%w: monthly rule must not set days", ErrInvalidRule)
		}
		for _, d := range r.Dates {
			if d == LastDayOfMonth {
				continue
			}
			if d < 1 || d > 31 {
				return fmt.Errorf("%w: day of month %d out of range 1-31", ErrInvalidRule, d)
			}
		}
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, string(r.Type))
	}
	return nil
}

// ParseRules decodes and validates the persisted JSON form of a rule list.
func ParseRules(raw []byte) ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: rule list must not be empty", ErrInvalidRule)
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return rules, nil
}

// EncodeRules is the inverse of ParseRules.
func EncodeRules(rules []Rule) ([]byte, error) {
	return json.Marshal(rules)
}

func normalizeWeekdays(days []time.Weekday) []time.Weekday {
	seen := map[time.Weekday]bool{}
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeDates(dates []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(dates))
	for _, d := range dates {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}
