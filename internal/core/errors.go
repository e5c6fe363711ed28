package core

import "errors"

// Expected non-exceptional outcomes. These are surfaced as "skipped"
// results with a reason, never as batch errors.
var (
	ErrNotDue            = errors.New("rule did not match")
	ErrAlreadyExecuted   = errors.New("already executed for this occurrence")
	ErrNoEligibleMembers = errors.New("no eligible members")
	ErrNotInActiveWindow = errors.New("not in active window")
)

var (
	// ErrInvalidRule marks a malformed recurrence rule. Rules are rejected
	// at create/update time and never reach the evaluator.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidSchedule marks a schedule that fails validation.
	ErrInvalidSchedule = errors.New("invalid schedule")

	ErrScheduleNotFound = errors.New("schedule not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrGroupNotFound    = errors.New("group not found")
)
