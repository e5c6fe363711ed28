package engine

import (
	"context"
	"time"

	"taskrota/internal/core"
	"taskrota/internal/store"
)

// Config controls the engine.
type Config struct {
	// Workers bounds the per-schedule fan-out of a batch pass.
	Workers int
	// HistoryWindow is the trailing record count fed to fairness weighting.
	HistoryWindow int
	// Location is the calendar in which rules are evaluated. Defaults to UTC.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 50
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Store is the persistence surface the engine consumes.
type Store interface {
	ListRunnable(ctx context.Context, d core.Date) ([]core.ScheduledTask, error)
	GetSchedule(ctx context.Context, id string) (*core.ScheduledTask, error)

	HasSucceeded(ctx context.Context, scheduleID string, d core.Date) (bool, error)
	History(ctx context.Context, scheduleID string, limit int) ([]core.ExecutionRecord, error)
	AppendExecution(ctx context.Context, rec *core.ExecutionRecord) error
	MaterializeOccurrence(ctx context.Context, rec *core.ExecutionRecord, tasks []*core.Task, deleteIncompletePrevious bool) error

	ActiveMembers(ctx context.Context, groupID string) ([]core.Member, error)
	AppendAudit(ctx context.Context, e store.AuditEntry) error
}

// Outcome is the terminal state of one schedule in one pass.
type Outcome struct {
	ScheduleID     string
	Title          string
	Status         core.ExecutionStatus
	Reason         string // skip reason or failure message
	OccurrenceDate core.Date

	CreatedTaskIDs  []string
	AssignedMembers []string
}

// BatchResult aggregates one full pass. One schedule's failure never aborts
// the batch; the report is always complete.
type BatchResult struct {
	Success int
	Failed  int
	Skipped int
	Details []Outcome
}

func (b *BatchResult) tally(out Outcome) {
	switch out.Status {
	case core.ExecutionSuccess:
		b.Success++
	case core.ExecutionFailed:
		b.Failed++
	default:
		b.Skipped++
	}
	b.Details = append(b.Details, out)
}

// OccurrenceEvent is the bus payload for occurrence lifecycle events.
type OccurrenceEvent struct {
	ScheduleID     string   `json:"schedule_id"`
	GroupID        string   `json:"group_id"`
	Title          string   `json:"title"`
	OccurrenceDate string   `json:"occurrence_date"`
	TaskIDs        []string `json:"task_ids,omitempty"`
	Members        []string `json:"members,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}
