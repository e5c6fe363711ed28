package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taskrota/internal/assign"
	"taskrota/internal/core"
	"taskrota/internal/eventbus"
	"taskrota/internal/recurrence"
	"taskrota/internal/store"
	"taskrota/pkg/logx"
)

type Engine struct {
	store    Store
	eval     *recurrence.Evaluator
	assigner *assign.Resolver
	bus      eventbus.Bus
	log      logx.Logger
	cfg      Config
}

func New(st Store, eval *recurrence.Evaluator, assigner *assign.Resolver, cfg Config, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:    st,
		eval:     eval,
		assigner: assigner,
		bus:      bus,
		log:      log,
		cfg:      cfg.withDefaults(),
	}
}

// ExecuteScheduledTasks runs one batch pass for the given instant over every
// runnable schedule. Schedules are evaluated independently; failures are
// collected, never propagated.
func (e *Engine) ExecuteScheduledTasks(ctx context.Context, now time.Time) (BatchResult, error) {
	now = now.In(e.cfg.Location)
	date := core.DateOf(now)

	scheds, err := e.store.ListRunnable(ctx, date)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		mu  sync.Mutex
		res BatchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range scheds {
		st := scheds[i]
		g.Go(func() error {
			out := e.runOne(gctx, &st, now)
			mu.Lock()
			res.tally(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	// Completion order is nondeterministic; keep the report stable.
	sort.Slice(res.Details, func(i, j int) bool {
		return res.Details[i].ScheduleID < res.Details[j].ScheduleID
	})

	e.log.Info("batch pass finished",
		logx.String("date", date.String()),
		logx.Int("schedules", len(scheds)),
		logx.Int("success", res.Success),
		logx.Int("failed", res.Failed),
		logx.Int("skipped", res.Skipped),
	)
	return res, nil
}

// ExecuteScheduledTaskByID runs the identical state machine for a single
// schedule (manual re-run / preview-then-run). The acting operator is
// explicit and audited.
func (e *Engine) ExecuteScheduledTaskByID(ctx context.Context, id string, now time.Time, actor string) (Outcome, error) {
	st, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.store.AppendAudit(ctx, store.AuditEntry{
		Actor:  actor,
		Action: "schedule.run",
		Target: id,
	}); err != nil {
		e.log.Warn("audit append failed", logx.String("schedule", id), logx.Err(err))
	}
	return e.runOne(ctx, st, now.In(e.cfg.Location)), nil
}

// PreviewDue reports which schedules would materialize at the given instant.
// It is read-only: no records are appended, no tasks created.
func (e *Engine) PreviewDue(ctx context.Context, now time.Time) ([]core.ScheduledTask, error) {
	now = now.In(e.cfg.Location)
	date := core.DateOf(now)

	scheds, err := e.store.ListRunnable(ctx, date)
	if err != nil {
		return nil, err
	}
	var due []core.ScheduledTask
	for _, st := range scheds {
		res := e.eval.Evaluate(st.Rules, now, st.SkipHolidays)
		if !res.Due {
			continue
		}
		done, err := e.store.HasSucceeded(ctx, st.ID, res.Occurrence)
		if err != nil {
			return nil, err
		}
		if !done {
			due = append(due, st)
		}
	}
	return due, nil
}

// runOne drives a single schedule through the per-pass state machine.
// Every path ends in one of {success, skipped, failed}.
func (e *Engine) runOne(ctx context.Context, st *core.ScheduledTask, now time.Time) Outcome {
	date := core.DateOf(now)
	out := Outcome{ScheduleID: st.ID, Title: st.Title, OccurrenceDate: date}

	// 1. inactive / outside the schedule's window
	if !st.InActiveWindow(date) {
		return e.skipped(out, core.ErrNotInActiveWindow.Error(), false)
	}

	// 2. recurrence
	res := e.eval.Evaluate(st.Rules, now, st.SkipHolidays)
	out.OccurrenceDate = res.Occurrence
	if res.HolidaySkipped {
		// Recorded: the occurrence was genuinely dropped, and fairness or
		// audit review may want to see it.
		e.appendSkip(ctx, st.ID, res.Occurrence, "holiday")
		return e.skipped(out, "holiday", true)
	}
	if !res.Due {
		return e.skipped(out, core.ErrNotDue.Error(), false)
	}

	// 3. idempotency gate (read side; the write side is the unique index)
	done, err := e.store.HasSucceeded(ctx, st.ID, res.Occurrence)
	if err != nil {
		return e.failed(ctx, st, out, err, false)
	}
	if done {
		return e.skipped(out, core.ErrAlreadyExecuted.Error(), false)
	}

	// 4. assignment
	members, err := e.store.ActiveMembers(ctx, st.GroupID)
	if err != nil {
		return e.failed(ctx, st, out, err, false)
	}
	history, err := e.store.History(ctx, st.ID, e.cfg.HistoryWindow)
	if err != nil {
		return e.failed(ctx, st, out, err, false)
	}
	assignees, err := e.assigner.Assign(st, members, history)
	if err != nil {
		if errors.Is(err, core.ErrNoEligibleMembers) {
			e.appendSkip(ctx, st.ID, res.Occurrence, core.ErrNoEligibleMembers.Error())
			return e.skipped(out, core.ErrNoEligibleMembers.Error(), true)
		}
		return e.failed(ctx, st, out, err, false)
	}

	// 5. materialization + history append, one atomic unit
	tasks := buildTasks(st, assignees, now)
	rec := &core.ExecutionRecord{
		ScheduleID:       st.ID,
		OccurrenceDate:   res.Occurrence,
		Status:           core.ExecutionSuccess,
		CreatedTaskID:    tasks[0].ID,
		AssignedMemberID: tasks[0].AssignedMemberID,
	}
	if err := e.store.MaterializeOccurrence(ctx, rec, tasks, st.DeleteIncompletePrevious); err != nil {
		if errors.Is(err, core.ErrAlreadyExecuted) {
			// A concurrent pass won the race; same terminal state as the
			// gate above, never an error.
			return e.skipped(out, core.ErrAlreadyExecuted.Error(), false)
		}
		return e.failed(ctx, st, out, err, true)
	}

	// 6. recorded
	out.Status = core.ExecutionSuccess
	for _, t := range tasks {
		out.CreatedTaskIDs = append(out.CreatedTaskIDs, t.ID)
		out.AssignedMembers = append(out.AssignedMembers, t.AssignedMemberID)
	}
	e.publish(eventbus.TypeOccurrenceMaterialized, st, out)
	e.log.Info("occurrence materialized",
		logx.String("schedule", st.ID),
		logx.String("date", out.OccurrenceDate.String()),
		logx.Int("tasks", len(tasks)),
	)
	return out
}

// buildTasks copies the template onto one task per assignee.
func buildTasks(st *core.ScheduledTask, assignees []string, now time.Time) []*core.Task {
	var dueAt *time.Time
	if st.DueIn > 0 {
		d := now.Add(st.DueIn)
		dueAt = &d
	}
	tasks := make([]*core.Task, 0, len(assignees))
	for _, member := range assignees {
		tasks = append(tasks, &core.Task{
			ID:               uuid.NewString(),
			GroupID:          st.GroupID,
			ScheduleID:       st.ID,
			Title:            st.Title,
			Description:      st.Description,
			Reward:           st.Reward,
			RequiresApproval: st.RequiresApproval,
			RequiresImage:    st.RequiresImage,
			Tags:             append([]string(nil), st.Tags...),
			AssignedMemberID: member,
			AssignedBy:       st.CreatedBy,
			DueAt:            dueAt,
			CreatedAt:        now.UTC(),
		})
	}
	return tasks
}

func (e *Engine) skipped(out Outcome, reason string, publish bool) Outcome {
	out.Status = core.ExecutionSkipped
	out.Reason = reason
	if publish && e.bus != nil {
		e.publish(eventbus.TypeOccurrenceSkipped, nil, out)
	}
	return out
}

func (e *Engine) failed(ctx context.Context, st *core.ScheduledTask, out Outcome, cause error, recorded bool) Outcome {
	out.Status = core.ExecutionFailed
	out.Reason = cause.Error()

	// No success record exists, so the next pass retries naturally; within
	// this pass the failure is terminal.
	if recorded {
		rec := &core.ExecutionRecord{
			ScheduleID:     st.ID,
			OccurrenceDate: out.OccurrenceDate,
			Status:         core.ExecutionFailed,
			Error:          cause.Error(),
		}
		if err := e.store.AppendExecution(ctx, rec); err != nil {
			e.log.Warn("failed-record append failed", logx.String("schedule", st.ID), logx.Err(err))
		}
	}

	e.publish(eventbus.TypeOccurrenceFailed, st, out)
	e.log.Error("schedule execution failed",
		logx.String("schedule", out.ScheduleID),
		logx.String("date", out.OccurrenceDate.String()),
		logx.Err(cause),
	)
	return out
}

// appendSkip best-effort records a meaningful skip (holiday, empty pool).
// Plain mismatches and replays are reported but not persisted.
func (e *Engine) appendSkip(ctx context.Context, scheduleID string, d core.Date, note string) {
	rec := &core.ExecutionRecord{
		ScheduleID:     scheduleID,
		OccurrenceDate: d,
		Status:         core.ExecutionSkipped,
		Note:           note,
	}
	if err := e.store.AppendExecution(ctx, rec); err != nil {
		e.log.Warn("skip-record append failed", logx.String("schedule", scheduleID), logx.Err(err))
	}
}

func (e *Engine) publish(typ string, st *core.ScheduledTask, out Outcome) {
	if e.bus == nil {
		return
	}
	ev := OccurrenceEvent{
		ScheduleID:     out.ScheduleID,
		Title:          out.Title,
		OccurrenceDate: out.OccurrenceDate.String(),
		TaskIDs:        out.CreatedTaskIDs,
		Members:        out.AssignedMembers,
		Reason:         out.Reason,
	}
	if st != nil {
		ev.GroupID = st.GroupID
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
