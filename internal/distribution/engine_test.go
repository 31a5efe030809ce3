package distribution

import (
	"testing"
	"time"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/models"
)

// Wednesday
var now = time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2024, 3, 6, h, m, 0, 0, time.UTC)
}

func newTask(id string, priority, duration int, status models.TaskStatus) models.Task {
	return models.Task{
		ID:                id,
		UserID:            "u1",
		Title:             "Task " + id,
		Priority:          priority,
		EstimatedDuration: duration,
		Complexity:        5,
		RequiredEnergy:    5,
		RequiredFocus:     5,
		Status:            status,
	}
}

func fixture() []models.Task {
	fixed := newTask("f", 3, 90, models.TaskStatusScheduled)
	fixed.ScheduledDates = []models.ScheduledOccurrence{{Date: at(0, 0), StartTime: at(9, 0), Duration: 90}}
	return []models.Task{
		newTask("a", 3, 60, models.TaskStatusPending),
		newTask("c", 5, 60, models.TaskStatusCompleted),
		fixed,
		newTask("g", 1, 60, models.TaskStatusInProgress),
	}
}

func state() models.UserState {
	return models.UserState{UserID: "u1", Energy: 50, Focus: 50, Stress: 20, Motivation: 50, CurrentTime: now}
}

func startOf(t *testing.T, res *models.DistributionResult, id string) time.Time {
	t.Helper()
	for _, task := range res.Scheduled {
		if task.ID == id {
			return task.ScheduledDates[0].StartTime
		}
	}
	t.Fatalf("task %s not scheduled: %+v", id, res.Unfeasible)
	return time.Time{}
}

func TestPlan(t *testing.T) {
	planning, fixed := Plan(fixture())
	if len(planning) != 2 || planning[0].ID != "a" || planning[1].ID != "g" {
		t.Errorf("unexpected planning set %+v", planning)
	}
	if len(fixed) != 1 || fixed[0].ID != "f" {
		t.Errorf("unexpected fixed set %+v", fixed)
	}
}

func TestDistribute(t *testing.T) {
	e := New(config.DefaultConfig(), nil)

	res := e.Distribute(fixture(), state(), Options{CorrelationID: "corr-1"})

	if res.Report.TotalTasks != 2 || res.Report.ScheduledCount != 2 || res.Report.UnfeasibleCount != 0 {
		t.Fatalf("unexpected report counts %+v", res.Report)
	}
	// 10:30-12:00 loses all effective time to interruptions and is skipped.
	if got := startOf(t, res, "a"); !got.Equal(at(13, 0)) {
		t.Errorf("Expected a at 13:00, got %s", got)
	}
	if got := startOf(t, res, "g"); !got.Equal(at(15, 45)) {
		t.Errorf("Expected g at 15:45, got %s", got)
	}

	wed := res.Report.Workload[0]
	if wed.Date != "2024-03-06" || wed.ScheduledMinutes != 210 {
		t.Errorf("Expected 210 scheduled minutes on Wednesday, got %+v", wed)
	}
	if len(res.Report.Workload) != 7 {
		t.Errorf("Expected a 7-day workload analysis, got %d", len(res.Report.Workload))
	}
	if res.MIT == nil || res.MIT.TaskID == "c" {
		t.Errorf("Expected an active MIT, got %+v", res.MIT)
	}
	if res.Metadata.CorrelationID != "corr-1" || res.Metadata.AlgorithmVersion != config.Version {
		t.Errorf("unexpected metadata %+v", res.Metadata)
	}
	if !res.Metadata.CalculatedAt.Equal(now) || res.UserID != "u1" {
		t.Errorf("unexpected result header %+v", res)
	}
}

func TestDistribute_Idempotent(t *testing.T) {
	e := New(config.DefaultConfig(), nil)

	first := e.Distribute(fixture(), state(), Options{})
	second := e.Distribute(fixture(), state(), Options{})

	if len(first.Scheduled) != len(second.Scheduled) || len(first.Unfeasible) != len(second.Unfeasible) {
		t.Fatalf("partitions differ: %d/%d vs %d/%d",
			len(first.Scheduled), len(first.Unfeasible), len(second.Scheduled), len(second.Unfeasible))
	}
	for i := range first.Scheduled {
		a, b := first.Scheduled[i], second.Scheduled[i]
		if a.ID != b.ID || !a.ScheduledDates[0].StartTime.Equal(b.ScheduledDates[0].StartTime) {
			t.Errorf("run differs at %d: %s@%s vs %s@%s", i,
				a.ID, a.ScheduledDates[0].StartTime, b.ID, b.ScheduledDates[0].StartTime)
		}
	}
	if first.Metadata.CorrelationID == "" || first.Metadata.CorrelationID == second.Metadata.CorrelationID {
		t.Error("Expected a fresh correlation id per run")
	}
}

func TestDistribute_Empty(t *testing.T) {
	e := New(config.DefaultConfig(), nil)

	res := e.Distribute(nil, state(), Options{})
	if res.Scheduled == nil || res.Unfeasible == nil || res.Recommendations == nil || res.Report.Warnings == nil {
		t.Errorf("Expected empty lists rather than nil: %+v", res)
	}
	if res.MIT != nil {
		t.Errorf("Expected no MIT, got %+v", res.MIT)
	}
}

func TestMIT_DerivesCircadian(t *testing.T) {
	e := New(config.DefaultConfig(), nil)
	st := state()
	st.CurrentTime = at(10, 0)

	got := e.MIT(fixture(), st)
	if got == nil || got.RecommendedTime != "now (peak time)" {
		t.Errorf("Expected a peak-time recommendation at 10:00, got %+v", got)
	}
}

func TestPrioritize_ActiveOnly(t *testing.T) {
	e := New(config.DefaultConfig(), nil)

	got := e.Prioritize(fixture(), state())
	if len(got) != 2 {
		t.Fatalf("Expected the 2 active tasks, got %d", len(got))
	}
	for _, p := range got {
		if !p.Task.Status.IsActive() {
			t.Errorf("inactive task %s ranked", p.Task.ID)
		}
	}
}

func TestSuggestTime(t *testing.T) {
	e := New(config.DefaultConfig(), nil)

	blocker := newTask("f", 3, 90, models.TaskStatusScheduled)
	blocker.ScheduledDates = []models.ScheduledOccurrence{{StartTime: at(9, 0), Duration: 90}}
	moving := newTask("x", 5, 60, models.TaskStatusScheduled)
	moving.ScheduledDates = []models.ScheduledOccurrence{{StartTime: at(9, 0), Duration: 60}}

	text, slot := e.SuggestTime(moving, state(), []models.Task{blocker, moving})
	if slot == nil {
		t.Fatalf("Expected a concrete slot, got %q", text)
	}
	if !slot.Start.Equal(at(10, 30)) || slot.Duration != 60 {
		t.Errorf("unexpected slot %+v", slot)
	}
	if text != "Wed 2024-03-06 10:30-11:30" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestSuggestTime_Fallback(t *testing.T) {
	e := New(config.DefaultConfig(), nil)

	huge := newTask("h", 3, 600, models.TaskStatusPending)
	huge.Complexity = 8
	text, slot := e.SuggestTime(huge, state(), nil)
	if slot != nil {
		t.Fatalf("Expected no slot, got %+v", slot)
	}
	if text != "08:00-12:00 (morning peak)" {
		t.Errorf("unexpected heuristic %q", text)
	}
}
