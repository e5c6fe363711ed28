package core

import (
	"testing"
	"time"
)

func validSchedule() *ScheduledTask {
	daily, _ := NewDailyRule("09:00")
	return &ScheduledTask{
		GroupID:        "g1",
		Title:          "take out trash",
		Rules:          []Rule{daily},
		IsActive:       true,
		StartDate:      MustDate("2026-01-01"),
		AssignmentMode: AssignRandom,
	}
}

func TestScheduledTaskValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(st *ScheduledTask)
		wantErr bool
	}{
		{name: "valid", mutate: func(*ScheduledTask) {}},
		{name: "missing group", mutate: func(st *ScheduledTask) { st.GroupID = " " }, wantErr: true},
		{name: "missing title", mutate: func(st *ScheduledTask) { st.Title = "" }, wantErr: true},
		{name: "no rules", mutate: func(st *ScheduledTask) { st.Rules = nil }, wantErr: true},
		{name: "missing start", mutate: func(st *ScheduledTask) { st.StartDate = Date{} }, wantErr: true},
		{name: "end before start", mutate: func(st *ScheduledTask) {
			end := MustDate("2025-12-31")
			st.EndDate = &end
		}, wantErr: true},
		{name: "fixed without members", mutate: func(st *ScheduledTask) { st.AssignmentMode = AssignFixed }, wantErr: true},
		{name: "fixed with members", mutate: func(st *ScheduledTask) {
			st.AssignmentMode = AssignFixed
			st.FixedMembers = []string{"m1"}
		}},
		{name: "unknown mode", mutate: func(st *ScheduledTask) { st.AssignmentMode = "round-robin" }, wantErr: true},
		{name: "negative due offset", mutate: func(st *ScheduledTask) { st.DueIn = -time.Hour }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			st := validSchedule()
			tt.mutate(st)
			err := st.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestInActiveWindow(t *testing.T) {
	t.Parallel()
	st := validSchedule()
	end := MustDate("2026-06-30")
	st.EndDate = &end

	if st.InActiveWindow(MustDate("2025-12-31")) {
		t.Fatal("before start should be outside")
	}
	if !st.InActiveWindow(MustDate("2026-01-01")) {
		t.Fatal("start date should be inside")
	}
	if !st.InActiveWindow(MustDate("2026-06-30")) {
		t.Fatal("end date should be inside")
	}
	if st.InActiveWindow(MustDate("2026-07-01")) {
		t.Fatal("after end should be outside")
	}

	st.IsActive = false
	if st.InActiveWindow(MustDate("2026-03-01")) {
		t.Fatal("paused schedule should be outside")
	}
}

func TestDateOrderingAndTime(t *testing.T) {
	t.Parallel()
	a := MustDate("2026-02-28")
	b := MustDate("2026-03-01")
	if !a.Before(b) || b.Before(a) || !b.After(a) {
		t.Fatalf("ordering broken for %s vs %s", a, b)
	}

	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	at := b.Time(loc)
	if at.Hour() != 0 || at.Location() != loc {
		t.Fatalf("Time() = %v, want midnight in %v", at, loc)
	}
	if DateOf(at) != b {
		t.Fatalf("DateOf round trip = %v, want %v", DateOf(at), b)
	}
	if b.Weekday() != time.Sunday {
		t.Fatalf("Weekday = %v, want Sunday", b.Weekday())
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	d, err := ParseDate("2026-08-31")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d.String() != "2026-08-31" {
		t.Fatalf("String = %s", d)
	}
	if _, err := ParseDate("31-08-2026"); err == nil {
		t.Fatal("expected error for wrong layout")
	}
}

func TestTaskIncomplete(t *testing.T) {
	t.Parallel()
	now := time.Now()
	task := &Task{}
	if !task.Incomplete() {
		t.Fatal("fresh task should be incomplete")
	}
	task.CompletedAt = &now
	if task.Incomplete() {
		t.Fatal("completed task should not be incomplete")
	}
	task = &Task{DeletedAt: &now}
	if task.Incomplete() {
		t.Fatal("soft-deleted task should not be incomplete")
	}
}
