package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskrota/internal/core"
	logx "taskrota/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "rota.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedGroup creates a group with n active members named m1..mn.
func seedGroup(t *testing.T, s *Store, n int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	g := &core.Group{Name: "household"}
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		m := &core.Member{GroupID: g.ID, DisplayName: "member", IsActive: true}
		if err := s.CreateMember(ctx, m); err != nil {
			t.Fatalf("CreateMember: %v", err)
		}
		ids = append(ids, m.ID)
	}
	return g.ID, ids
}

func seedSchedule(t *testing.T, s *Store, groupID string) *core.ScheduledTask {
	t.Helper()
	daily, err := core.NewDailyRule("09:00")
	if err != nil {
		t.Fatalf("NewDailyRule: %v", err)
	}
	st := &core.ScheduledTask{
		GroupID:        groupID,
		Title:          "water the plants",
		Rules:          []core.Rule{daily},
		IsActive:       true,
		StartDate:      core.MustDate("2026-01-01"),
		AssignmentMode: core.AssignRandom,
		CreatedBy:      "admin",
	}
	if err := s.CreateSchedule(context.Background(), st); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	return st
}

func TestScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, memberIDs := seedGroup(t, s, 2)

	weekly, _ := core.NewWeeklyRule("18:30", time.Monday, time.Thursday)
	end := core.MustDate("2026-12-31")
	st := &core.ScheduledTask{
		GroupID:                  groupID,
		Title:                    "recycle run",
		Description:              "bins to the curb",
		Reward:                   5,
		RequiresApproval:         true,
		Tags:                     []string{"chore", "weekly"},
		Rules:                    []core.Rule{weekly},
		IsActive:                 true,
		StartDate:                core.MustDate("2026-01-01"),
		EndDate:                  &end,
		AssignmentMode:           core.AssignFixed,
		FixedMembers:             memberIDs,
		SkipHolidays:             true,
		DeleteIncompletePrevious: true,
		DueIn:                    6 * time.Hour,
		CreatedBy:                "admin",
	}
	if err := s.CreateSchedule(ctx, st); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if st.ID == "" {
		t.Fatal("CreateSchedule did not assign an id")
	}

	got, err := s.GetSchedule(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got.Title != st.Title || got.Reward != 5 || !got.RequiresApproval {
		t.Fatalf("template fields lost: %+v", got)
	}
	if len(got.Rules) != 1 || got.Rules[0].Type != core.RuleWeekly {
		t.Fatalf("rules lost: %+v", got.Rules)
	}
	if got.EndDate == nil || *got.EndDate != end {
		t.Fatalf("EndDate = %v, want %v", got.EndDate, end)
	}
	if got.DueIn != 6*time.Hour {
		t.Fatalf("DueIn = %v", got.DueIn)
	}
	if len(got.FixedMembers) != 2 || !got.SkipHolidays || !got.DeleteIncompletePrevious {
		t.Fatalf("flags lost: %+v", got)
	}
}

func TestCreateScheduleRejectsForeignMembers(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	groupID, _ := seedGroup(t, s, 1)

	daily, _ := core.NewDailyRule("09:00")
	st := &core.ScheduledTask{
		GroupID:        groupID,
		Title:          "dishes",
		Rules:          []core.Rule{daily},
		IsActive:       true,
		StartDate:      core.MustDate("2026-01-01"),
		AssignmentMode: core.AssignFixed,
		FixedMembers:   []string{"nobody"},
	}
	err := s.CreateSchedule(context.Background(), st)
	if !errors.Is(err, core.ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
}

func TestGetScheduleNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if _, err := s.GetSchedule(context.Background(), "missing"); !errors.Is(err, core.ErrScheduleNotFound) {
		t.Fatalf("err = %v, want ErrScheduleNotFound", err)
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, _ := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)

	if err := s.PauseSchedule(ctx, st.ID); err != nil {
		t.Fatalf("PauseSchedule: %v", err)
	}
	got, err := s.GetSchedule(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got.IsActive {
		t.Fatal("schedule still active after pause")
	}

	// Paused schedules drop out of the runnable set.
	runnable, err := s.ListRunnable(ctx, core.MustDate("2026-03-02"))
	if err != nil {
		t.Fatalf("ListRunnable: %v", err)
	}
	if len(runnable) != 0 {
		t.Fatalf("runnable = %d, want 0", len(runnable))
	}

	if err := s.ResumeSchedule(ctx, st.ID); err != nil {
		t.Fatalf("ResumeSchedule: %v", err)
	}
	runnable, err = s.ListRunnable(ctx, core.MustDate("2026-03-02"))
	if err != nil {
		t.Fatalf("ListRunnable: %v", err)
	}
	if len(runnable) != 1 {
		t.Fatalf("runnable = %d, want 1", len(runnable))
	}

	if err := s.PauseSchedule(ctx, "missing"); !errors.Is(err, core.ErrScheduleNotFound) {
		t.Fatalf("err = %v, want ErrScheduleNotFound", err)
	}
}

func TestListRunnableWindow(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, _ := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)

	end := core.MustDate("2026-06-30")
	st.EndDate = &end
	if err := s.UpdateSchedule(ctx, st); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	cases := []struct {
		day  string
		want int
	}{
		{"2025-12-31", 0},
		{"2026-01-01", 1},
		{"2026-06-30", 1},
		{"2026-07-01", 0},
	}
	for _, c := range cases {
		got, err := s.ListRunnable(ctx, core.MustDate(c.day))
		if err != nil {
			t.Fatalf("ListRunnable(%s): %v", c.day, err)
		}
		if len(got) != c.want {
			t.Fatalf("ListRunnable(%s) = %d, want %d", c.day, len(got), c.want)
		}
	}
}

func TestAppendExecutionIdempotency(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, memberIDs := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)
	day := core.MustDate("2026-03-02")

	first := &core.ExecutionRecord{
		ScheduleID:       st.ID,
		OccurrenceDate:   day,
		Status:           core.ExecutionSuccess,
		CreatedTaskID:    "t1",
		AssignedMemberID: memberIDs[0],
	}
	if err := s.AppendExecution(ctx, first); err != nil {
		t.Fatalf("AppendExecution: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("record id not set")
	}

	// Second success for the same occurrence trips the unique index.
	dup := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: day, Status: core.ExecutionSuccess}
	if err := s.AppendExecution(ctx, dup); !errors.Is(err, core.ErrAlreadyExecuted) {
		t.Fatalf("err = %v, want ErrAlreadyExecuted", err)
	}

	// Skip and failure records are exempt from the index.
	for _, status := range []core.ExecutionStatus{core.ExecutionSkipped, core.ExecutionFailed} {
		rec := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: day, Status: status}
		if err := s.AppendExecution(ctx, rec); err != nil {
			t.Fatalf("AppendExecution(%s): %v", status, err)
		}
	}
	// Success on another date is fine.
	next := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: core.MustDate("2026-03-03"), Status: core.ExecutionSuccess}
	if err := s.AppendExecution(ctx, next); err != nil {
		t.Fatalf("AppendExecution next day: %v", err)
	}

	done, err := s.HasSucceeded(ctx, st.ID, day)
	if err != nil || !done {
		t.Fatalf("HasSucceeded = %v, %v", done, err)
	}
	done, err = s.HasSucceeded(ctx, st.ID, core.MustDate("2026-03-04"))
	if err != nil || done {
		t.Fatalf("HasSucceeded(blank day) = %v, %v", done, err)
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, _ := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)

	days := []string{"2026-03-02", "2026-03-03", "2026-03-04"}
	for _, d := range days {
		rec := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: core.MustDate(d), Status: core.ExecutionSuccess, CreatedTaskID: "t-" + d}
		if err := s.AppendExecution(ctx, rec); err != nil {
			t.Fatalf("AppendExecution(%s): %v", d, err)
		}
	}

	got, err := s.History(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].OccurrenceDate.String() != "2026-03-04" || got[2].OccurrenceDate.String() != "2026-03-02" {
		t.Fatalf("history not newest-first: %v .. %v", got[0].OccurrenceDate, got[2].OccurrenceDate)
	}

	got, err = s.History(ctx, st.ID, 2)
	if err != nil {
		t.Fatalf("History(limit): %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	last, err := s.LastSuccessful(ctx, st.ID)
	if err != nil {
		t.Fatalf("LastSuccessful: %v", err)
	}
	if last == nil || last.OccurrenceDate.String() != "2026-03-04" {
		t.Fatalf("LastSuccessful = %+v", last)
	}
	none, err := s.LastSuccessful(ctx, "other")
	if err != nil || none != nil {
		t.Fatalf("LastSuccessful(other) = %+v, %v", none, err)
	}
}

func TestMaterializeOccurrence(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, memberIDs := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)
	day := core.MustDate("2026-03-02")

	task := &core.Task{
		ID:               "task-1",
		GroupID:          groupID,
		ScheduleID:       st.ID,
		Title:            st.Title,
		AssignedMemberID: memberIDs[0],
		AssignedBy:       "admin",
	}
	rec := &core.ExecutionRecord{
		ScheduleID:       st.ID,
		OccurrenceDate:   day,
		CreatedTaskID:    task.ID,
		AssignedMemberID: memberIDs[0],
	}
	if err := s.MaterializeOccurrence(ctx, rec, []*core.Task{task}, false); err != nil {
		t.Fatalf("MaterializeOccurrence: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ScheduleID != st.ID || got.AssignedMemberID != memberIDs[0] {
		t.Fatalf("task lost fields: %+v", got)
	}

	// A second materialization for the day conflicts and writes nothing.
	dupTask := &core.Task{ID: "task-2", GroupID: groupID, ScheduleID: st.ID, Title: st.Title, AssignedMemberID: memberIDs[0], AssignedBy: "admin"}
	dupRec := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: day}
	err = s.MaterializeOccurrence(ctx, dupRec, []*core.Task{dupTask}, false)
	if !errors.Is(err, core.ErrAlreadyExecuted) {
		t.Fatalf("err = %v, want ErrAlreadyExecuted", err)
	}
	if _, err := s.GetTask(ctx, "task-2"); !errors.Is(err, core.ErrTaskNotFound) {
		t.Fatalf("conflicting materialization leaked a task: %v", err)
	}

	if err := s.MaterializeOccurrence(ctx, &core.ExecutionRecord{ScheduleID: st.ID}, nil, false); err == nil {
		t.Fatal("expected error for empty task list")
	}
}

func TestMaterializeSoftDeletesIncomplete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, memberIDs := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)

	old := &core.Task{ID: "old", GroupID: groupID, ScheduleID: st.ID, Title: st.Title, AssignedMemberID: memberIDs[0], AssignedBy: "admin"}
	done := &core.Task{ID: "done", GroupID: groupID, ScheduleID: st.ID, Title: st.Title, AssignedMemberID: memberIDs[0], AssignedBy: "admin"}
	for _, task := range []*core.Task{old, done} {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask(%s): %v", task.ID, err)
		}
	}
	if err := s.CompleteTask(ctx, "done", time.Now()); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	fresh := &core.Task{ID: "fresh", GroupID: groupID, ScheduleID: st.ID, Title: st.Title, AssignedMemberID: memberIDs[0], AssignedBy: "admin"}
	rec := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: core.MustDate("2026-03-02"), CreatedTaskID: fresh.ID}
	if err := s.MaterializeOccurrence(ctx, rec, []*core.Task{fresh}, true); err != nil {
		t.Fatalf("MaterializeOccurrence: %v", err)
	}

	gotOld, err := s.GetTask(ctx, "old")
	if err != nil {
		t.Fatalf("GetTask(old): %v", err)
	}
	if gotOld.DeletedAt == nil {
		t.Fatal("incomplete previous task not soft-deleted")
	}
	gotDone, err := s.GetTask(ctx, "done")
	if err != nil {
		t.Fatalf("GetTask(done): %v", err)
	}
	if gotDone.DeletedAt != nil {
		t.Fatal("completed task must survive the sweep")
	}
	gotFresh, err := s.GetTask(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetTask(fresh): %v", err)
	}
	if gotFresh.DeletedAt != nil {
		t.Fatal("new occurrence task must not be swept")
	}
}

func TestActiveMembersFiltersInactive(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, memberIDs := seedGroup(t, s, 3)

	if err := s.SetMemberActive(ctx, memberIDs[1], false); err != nil {
		t.Fatalf("SetMemberActive: %v", err)
	}
	got, err := s.ActiveMembers(ctx, groupID)
	if err != nil {
		t.Fatalf("ActiveMembers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("active = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.ID == memberIDs[1] {
			t.Fatal("deactivated member still listed")
		}
	}
}

func TestDeleteScheduleCascades(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	groupID, _ := seedGroup(t, s, 1)
	st := seedSchedule(t, s, groupID)

	rec := &core.ExecutionRecord{ScheduleID: st.ID, OccurrenceDate: core.MustDate("2026-03-02"), Status: core.ExecutionSkipped, Note: "holiday"}
	if err := s.AppendExecution(ctx, rec); err != nil {
		t.Fatalf("AppendExecution: %v", err)
	}

	if err := s.DeleteSchedule(ctx, st.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	hist, err := s.History(ctx, st.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("history survived cascade: %d records", len(hist))
	}
}

func TestAppendAudit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	err := s.AppendAudit(context.Background(), AuditEntry{
		Actor:  "admin",
		Action: "schedule.run",
		Target: "sched-1",
	})
	if err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}
