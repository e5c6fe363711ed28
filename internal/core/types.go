package core

import (
	"fmt"
	"strings"
	"time"
)

type AssignmentMode string

const (
	// AssignFixed assigns every occurrence to the configured member list,
	// one materialized task per listed member.
	AssignFixed AssignmentMode = "fixed"
	// AssignRandom draws one member per occurrence, weighted toward members
	// with fewer historical successful assignments.
	AssignRandom AssignmentMode = "random"
)

// ScheduledTask is a recurring task template attached to a group.
type ScheduledTask struct {
	ID      string
	GroupID string

	// Template fields copied verbatim onto materialized tasks.
	Title            string
	Description      string
	Reward           int
	RequiresApproval bool
	RequiresImage    bool
	Tags             []string

	Rules    []Rule
	IsActive bool

	StartDate Date
	EndDate   *Date // nil = open-ended

	AssignmentMode  AssignmentMode
	FixedMembers    []string // fixed mode only; all must belong to the group
	ExcludedMembers []string // random mode: removed from the candidate pool

	SkipHolidays bool

	// DeleteIncompletePrevious soft-deletes the previous occurrence's tasks
	// that are still incomplete when a new occurrence materializes.
	DeleteIncompletePrevious bool

	// DueIn, when positive, sets the materialized task's due time to the
	// occurrence instant plus this offset.
	DueIn time.Duration

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the construction-time invariants. Anything that fails
// here never reaches the evaluator or the orchestrator.
func (t *ScheduledTask) Validate() error {
	if strings.TrimSpace(t.GroupID) == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidSchedule)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSchedule)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("%w: at least one rule is required", ErrInvalidSchedule)
	}
	for i, r := range t.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidSchedule)
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidSchedule, t.EndDate, t.StartDate)
	}
	switch t.AssignmentMode {
	case AssignFixed:
		if len(t.FixedMembers) == 0 {
			return fmt.Errorf("%w: fixed assignment needs at least one member", ErrInvalidSchedule)
		}
	case AssignRandom:
		// excluded list is optional; nothing else to check
	default:
		return fmt.Errorf("%w: unknown assignment mode %q", ErrInvalidSchedule, string(t.AssignmentMode))
	}
	if t.DueIn < 0 {
		return fmt.Errorf("%w: due offset must be >= 0", ErrInvalidSchedule)
	}
	return nil
}

// InActiveWindow reports whether d falls inside [StartDate, EndDate] and the
// schedule is not paused.
func (t *ScheduledTask) InActiveWindow(d Date) bool {
	if !t.IsActive {
		return false
	}
	if d.Before(t.StartDate) {
		return false
	}
	if t.EndDate != nil && d.After(*t.EndDate) {
		return false
	}
	return true
}

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionSkipped ExecutionStatus = "skipped"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ExecutionRecord is one appended evaluation outcome for a schedule.
// Records are append-only and retained for audit and fairness weighting.
//
// Invariant (store-enforced): at most one record with status=success exists
// per (ScheduleID, OccurrenceDate).
type ExecutionRecord struct {
	ID         int64
	ScheduleID string

	// OccurrenceDate is the matched calendar date, not the wall-clock
	// creation time.
	OccurrenceDate Date

	Status ExecutionStatus

	CreatedTaskID    string // empty when no task was created
	AssignedMemberID string // empty when nothing was assigned
	Note             string // skip reason, if any
	Error            string // failure message, if any

	CreatedAt time.Time
}

// Task is a materialized, assignable task record created from a template.
type Task struct {
	ID         string
	GroupID    string
	ScheduleID string // empty for ad hoc tasks

	Title            string
	Description      string
	Reward           int
	RequiresApproval bool
	RequiresImage    bool
	Tags             []string

	AssignedMemberID string
	AssignedBy       string

	DueAt       *time.Time
	CompletedAt *time.Time
	DeletedAt   *time.Time
	CreatedAt   time.Time
}

// Incomplete reports whether the task is still open (not completed, not
// soft-deleted).
func (t *Task) Incomplete() bool {
	return t.CompletedAt == nil && t.DeletedAt == nil
}

type Group struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type Member struct {
	ID          string
	GroupID     string
	DisplayName string
	IsActive    bool
	CreatedAt   time.Time
}
