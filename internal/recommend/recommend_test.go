package recommend

import (
	"strings"
	"testing"
	"time"

	"github.com/fentz26/potok/internal/circadian"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/forecast"
	"github.com/fentz26/potok/internal/models"
)

// Wednesday
var now = time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)

func at(day, h, m int) time.Time {
	return time.Date(2024, 3, day, h, m, 0, 0, time.UTC)
}

func placed(id, title string, priority int, start time.Time, minutes int) models.Task {
	return models.Task{
		ID:                id,
		Title:             title,
		Priority:          priority,
		EstimatedDuration: minutes,
		Status:            models.TaskStatusScheduled,
		ScheduledDates:    []models.ScheduledOccurrence{{StartTime: start, Duration: minutes}},
	}
}

func project(cfg *config.Config, state models.UserState, tasks []models.Task, days int) *forecast.Set {
	return forecast.New(cfg, circadian.New(cfg)).Project(state, tasks, days)
}

func countBy(recs []models.Recommendation, typ models.RecommendationType, sev models.Severity) int {
	n := 0
	for _, r := range recs {
		if r.Type == typ && r.Priority == sev {
			n++
		}
	}
	return n
}

func TestRecommend_FullRun(t *testing.T) {
	cfg := config.DefaultConfig()
	e := New(cfg)
	state := models.UserState{Energy: 20, Focus: 50, Stress: 80, Motivation: 50, CurrentTime: now}

	call := placed("t3", "Call", 3, at(7, 9, 0), 30)
	call.Deadline = at(7, 20, 0)
	scheduled := []models.Task{
		placed("t2", "Review", 2, at(6, 10, 2), 45),
		placed("t1", "Write", 2, at(6, 9, 0), 60),
		call,
	}
	unfeasible := []models.UnfeasibleTask{
		{Task: models.Task{ID: "u1", Title: "Launch", Priority: 5}, Reason: "no suitable time slot found within 30 days"},
		{Task: models.Task{ID: "u2", Title: "Tidy", Priority: 2}, Reason: "task too short (minimum 15 minutes)"},
	}

	recs := e.Recommend(scheduled, unfeasible, state, project(cfg, state, scheduled, 2))

	for i := 1; i < len(recs); i++ {
		if recs[i-1].Priority.Rank() > recs[i].Priority.Rank() {
			t.Fatalf("recommendations not sorted by severity: %+v", recs)
		}
	}
	checks := []struct {
		typ  models.RecommendationType
		sev  models.Severity
		want int
	}{
		{models.RecommendationState, models.SeverityHigh, 2},
		{models.RecommendationState, models.SeverityMedium, 0},
		{models.RecommendationBreak, models.SeverityMedium, 1},
		{models.RecommendationBreak, models.SeverityHigh, 1},
		{models.RecommendationUnfeasible, models.SeverityCritical, 1},
		{models.RecommendationUnfeasible, models.SeverityHigh, 1},
		{models.RecommendationDeadline, models.SeverityHigh, 1},
		{models.RecommendationWorkload, models.SeverityLow, 2},
	}
	for _, c := range checks {
		if got := countBy(recs, c.typ, c.sev); got != c.want {
			t.Errorf("%s/%s: got %d, want %d", c.typ, c.sev, got, c.want)
		}
	}
	if recs[0].Type != models.RecommendationUnfeasible || !strings.Contains(recs[0].Message, "2 task(s)") {
		t.Errorf("Expected the aggregate unfeasible advisory first, got %+v", recs[0])
	}
}

func TestRecommend_BreakBlocks(t *testing.T) {
	cfg := config.DefaultConfig()
	e := New(cfg)
	state := models.UserState{Energy: 80, Focus: 80, Motivation: 80, CurrentTime: now}

	// 09:00-10:00, 10:10-11:10: the gap is a real break, no block exceeds 90.
	rested := []models.Task{
		placed("a", "A", 2, at(6, 9, 0), 60),
		placed("b", "B", 2, at(6, 10, 10), 60),
	}
	if got := countBy(e.Recommend(rested, nil, state, nil), models.RecommendationBreak, models.SeverityHigh); got != 0 {
		t.Errorf("Expected no focus advisory, got %d", got)
	}

	// A single 120-minute task exceeds the focus limit by itself.
	long := []models.Task{placed("c", "C", 2, at(6, 13, 0), 120)}
	recs := e.Recommend(long, nil, state, nil)
	if got := countBy(recs, models.RecommendationBreak, models.SeverityHigh); got != 1 {
		t.Fatalf("Expected one focus advisory, got %+v", recs)
	}

	// Back-to-back tasks on different days are checked separately.
	split := []models.Task{
		placed("d", "D", 2, at(6, 9, 0), 60),
		placed("e", "E", 2, at(7, 10, 0), 60),
	}
	if got := countBy(e.Recommend(split, nil, state, nil), models.RecommendationBreak, models.SeverityMedium); got != 0 {
		t.Errorf("Expected no gap advisory across days, got %d", got)
	}
}

func TestRecommend_Workload(t *testing.T) {
	cfg := config.DefaultConfig()
	e := New(cfg)
	state := models.UserState{Energy: 80, Focus: 80, Motivation: 80, CurrentTime: now}
	heavy := []models.Task{
		placed("h", "Heavy", 2, at(6, 9, 0), 500),
		placed("l", "Loaded", 2, at(7, 9, 0), 430),
	}

	// Wednesday to Saturday: Saturday has no working time and is skipped.
	recs := e.Recommend(nil, nil, state, project(cfg, state, heavy, 4))
	if got := countBy(recs, models.RecommendationWorkload, models.SeverityCritical); got != 1 {
		t.Errorf("Expected one overload advisory, got %d", got)
	}
	if got := countBy(recs, models.RecommendationWorkload, models.SeverityHigh); got != 1 {
		t.Errorf("Expected one heavy-load advisory, got %d", got)
	}
	if got := countBy(recs, models.RecommendationWorkload, models.SeverityLow); got != 1 {
		t.Errorf("Expected only Friday to be underloaded, got %d", got)
	}
	for _, r := range recs {
		if r.Date == "2024-03-09" {
			t.Errorf("Saturday should not get a workload advisory: %+v", r)
		}
	}
}

func TestRecommend_Calm(t *testing.T) {
	e := New(config.DefaultConfig())
	state := models.UserState{Energy: 30, Focus: 40, Stress: 70, Motivation: 40, CurrentTime: now}
	if got := e.Recommend(nil, nil, state, nil); len(got) != 0 {
		t.Errorf("Expected no advisories at the thresholds, got %+v", got)
	}
}

func TestWarnings(t *testing.T) {
	e := New(config.DefaultConfig())

	tight := placed("c", "Close", 3, at(6, 9, 0), 60)
	tight.Deadline = at(6, 18, 0)
	minor := placed("m", "Minor", 2, at(6, 10, 0), 60)
	minor.Deadline = at(6, 12, 0)
	relaxed := placed("r", "Relaxed", 5, at(6, 11, 0), 60)
	relaxed.Deadline = at(8, 11, 0)

	warnings := e.Warnings(
		[]models.Task{tight, minor, relaxed},
		[]models.UnfeasibleTask{
			{Task: models.Task{ID: "x", Title: "X", Priority: 5}, Reason: "no suitable time slot found within 30 days"},
			{Task: models.Task{ID: "y", Title: "Y", Priority: 3}},
		},
	)
	if len(warnings) != 3 {
		t.Fatalf("Expected 3 warnings, got %+v", warnings)
	}
	if warnings[0].Level != models.SeverityCritical || len(warnings[0].Alternatives) != 4 {
		t.Errorf("unexpected warning for x: %+v", warnings[0])
	}
	if warnings[0].Message != "no suitable time slot found within 30 days" {
		t.Errorf("Expected the scheduler reason, got %q", warnings[0].Message)
	}
	if warnings[1].Level != models.SeverityHigh || warnings[1].Message == "" {
		t.Errorf("unexpected warning for y: %+v", warnings[1])
	}
	if warnings[2].TaskID != "c" || warnings[2].Level != models.SeverityHigh {
		t.Errorf("Expected a last-moment warning for c, got %+v", warnings[2])
	}
}
